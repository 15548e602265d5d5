package events

import (
	"testing"
	"time"
)

func TestSubjects(t *testing.T) {
	partial, final := Subjects("voice.transcript")
	if partial != "voice.transcript.partial" {
		t.Errorf("unexpected partial subject %s", partial)
	}
	if final != "voice.transcript.final" {
		t.Errorf("unexpected final subject %s", final)
	}
}

func TestDefaultNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	if cfg.URL != "nats://127.0.0.1:4222" {
		t.Errorf("unexpected url %s", cfg.URL)
	}
	if cfg.SubjectPrefix != "voice.transcript" {
		t.Errorf("unexpected prefix %s", cfg.SubjectPrefix)
	}
}

func TestNewNATS_Unreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.ReconnectWait = 10 * time.Millisecond

	if _, err := NewNATS(cfg, testMetrics()); err == nil {
		t.Error("expected connect error for unreachable server")
	}
}

func TestNATSPublisher_CloseWithoutConn(t *testing.T) {
	if err := (&NATSPublisher{}).Close(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
