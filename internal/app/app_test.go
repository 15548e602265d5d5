package app

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voice-session-client/internal/config"
	"voice-session-client/internal/events"
	"voice-session-client/internal/service/rtvi/mock"
	"voice-session-client/internal/service/rtvi/webrtc"
	"voice-session-client/internal/service/rtvi/websocket"
)

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name  string
		check func(any) bool
	}{
		{"websocket", func(v any) bool { _, ok := v.(*websocket.Transport); return ok }},
		{"webrtc", func(v any) bool { _, ok := v.(*webrtc.Transport); return ok }},
		{"mock", func(v any) bool { _, ok := v.(*mock.Transport); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(config.ClientConfig{Transport: tt.name})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(tr) {
				t.Errorf("unexpected transport type %T", tr)
			}
		})
	}

	if _, err := NewTransport(config.ClientConfig{Transport: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewPublisher(t *testing.T) {
	cfg := config.Defaults().Export

	pub, err := NewPublisher(cfg, nil)
	if err != nil || pub != nil {
		t.Errorf("expected no publisher for backend none, got %v, %v", pub, err)
	}

	cfg.Backend = "kafka"
	pub, err = NewPublisher(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.(*events.KafkaPublisher); !ok {
		t.Errorf("expected kafka publisher, got %T", pub)
	}
	_ = pub.Close()

	cfg.Backend = "nats"
	cfg.NATS.URL = "nats://127.0.0.1:1"
	if _, err := NewPublisher(cfg, nil); err == nil {
		t.Error("expected error for unreachable nats server")
	}

	cfg.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := NewPublisher(cfg, nil); err == nil {
		t.Error("expected error for unreachable redis server")
	}
}

func TestNew_LogFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Observability.LogFile = filepath.Join(t.TempDir(), "client.log")

	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready without a session")
	}
	a.Shutdown()

	data, err := os.ReadFile(cfg.Observability.LogFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), "voice session client starting") {
		t.Errorf("expected startup line in log file, got %q", data)
	}
}

func TestNew_BadLogFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Observability.LogFile = filepath.Join(t.TempDir(), "missing", "client.log")
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unwritable log file")
	}
	// leave the global logger quiet for other tests
	if _, err := New(config.Defaults(), io.Discard); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSubscriber(t *testing.T) {
	cfg := config.Defaults().Export
	if _, err := NewSubscriber(cfg, time.Hour); err == nil {
		t.Error("expected error for backend none")
	}

	cfg.Backend = "kafka"
	if _, err := NewSubscriber(cfg, time.Hour); err == nil {
		t.Error("expected error without brokers")
	}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	sub, err := NewSubscriber(cfg, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sub.(*events.KafkaSubscriber); !ok {
		t.Errorf("expected kafka subscriber, got %T", sub)
	}
	_ = sub.Close()
}
