package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"voice-session-client/internal/observability/metrics"
)

// RoundTripper logs and measures outgoing signaling requests.
type RoundTripper struct {
	next    http.RoundTripper
	metrics *metrics.Metrics
}

// NewRoundTripper wraps next. A nil next uses http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper, m *metrics.Metrics) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &RoundTripper{next: next, metrics: m}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := rt.next.RoundTrip(req)

	duration := time.Since(start)
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	rt.metrics.RecordSignaling(req.URL.Path, code, duration.Seconds())

	log.Info().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("code", code).
		Dur("duration", duration).
		Msg("signaling request")

	return resp, err
}

// NewHTTPClient returns an http.Client whose requests go through a
// RoundTripper.
func NewHTTPClient(timeout time.Duration, m *metrics.Metrics) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewRoundTripper(nil, m),
	}
}
