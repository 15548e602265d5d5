package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"voice-session-client/internal/app"
)

// NewRouter constructs the local observability and inspection router.
// Live conversation viewers are served by hub.
func NewRouter(application *app.Application, hub *Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Readiness: a session is connected and its agent is still there
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/conversation", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, application.Document.Snapshot())
		})
		if hub != nil {
			r.Get("/conversation/ws", hub.ServeHTTP)
		}
		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			s := application.Session()
			if s == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
				return
			}
			writeJSON(w, http.StatusOK, s.Info())
		})
		r.Get("/uptime", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"startupTime": application.StartupTime,
				"uptime":      time.Since(application.StartupTime).Round(time.Second).String(),
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing response")
	}
}
