package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-session-client/internal/observability/metrics"
)

func TestRoundTripper_RecordsSignaling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/connect" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := NewHTTPClient(time.Second, m)

	for _, path := range []string{"/connect", "/api/offer"} {
		resp, err := client.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(m.SignalingRequests.WithLabelValues("/connect", "200")); got != 1 {
		t.Errorf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.SignalingRequests.WithLabelValues("/api/offer", "503")); got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
}

func TestRoundTripper_TransportError(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := NewHTTPClient(time.Second, m)

	if _, err := client.Get("http://127.0.0.1:1/connect"); err == nil {
		t.Fatal("expected dial error")
	}
	if got := testutil.ToFloat64(m.SignalingRequests.WithLabelValues("/connect", "error")); got != 1 {
		t.Errorf("expected 1 errored request, got %v", got)
	}
}

func TestServer_RunAndShutdown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	srv := NewServer(addr, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	var body []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			body, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if string(body) != "ok" {
		t.Errorf("expected ok, got %q", body)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("unexpected shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
