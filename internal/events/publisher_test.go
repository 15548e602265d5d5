package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/metrics"
)

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func TestNewKafka_LogOnlyMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *KafkaConfig
	}{
		{"nil config", nil},
		{"disabled", &KafkaConfig{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &KafkaConfig{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &KafkaConfig{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewKafka(tt.cfg, testMetrics())
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil || p.writerFinal != nil {
				t.Error("expected no writers in log-only mode")
			}
		})
	}
}

func TestNewKafka_Enabled(t *testing.T) {
	p := NewKafka(&KafkaConfig{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "voice.transcript.partial",
		TopicFinal:   "voice.transcript.final",
		Principal:    "svc-test",
	}, testMetrics())
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerPartial.Topic != "voice.transcript.partial" {
		t.Errorf("unexpected partial topic %s", p.writerPartial.Topic)
	}
	if p.writerFinal.Topic != "voice.transcript.final" {
		t.Errorf("unexpected final topic %s", p.writerFinal.Topic)
	}
}

func TestKafkaPublisher_LogOnlyPublish(t *testing.T) {
	m := testMetrics()
	p := NewKafka(&KafkaConfig{TopicPartial: "test.partial", TopicFinal: "test.final"}, m)

	rec := models.TranscriptRecord{
		EventType:   models.EventUserPartial,
		SessionID:   "sess-1",
		UtteranceID: "sess-1-user-1",
		Speaker:     models.SpeakerUser,
		Text:        "hel",
	}
	if err := p.PublishPartial(context.Background(), "sess-1", rec); err != nil {
		t.Errorf("expected no error in log-only mode, got %v", err)
	}
	rec.EventType, rec.Final, rec.Text = models.EventUserFinal, true, "hello"
	if err := p.PublishFinal(context.Background(), "sess-1", rec); err != nil {
		t.Errorf("expected no error in log-only mode, got %v", err)
	}

	if got := testutil.ToFloat64(m.ExportPublishTotal.WithLabelValues("kafka", "test.partial")); got != 1 {
		t.Errorf("expected 1 partial publish, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExportPublishTotal.WithLabelValues("kafka", "test.final")); got != 1 {
		t.Errorf("expected 1 final publish, got %v", got)
	}
}

func TestKafkaPublisher_UnmarshalableEvent(t *testing.T) {
	p := NewKafka(&KafkaConfig{}, testMetrics())

	if err := p.PublishPartial(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable partial")
	}
	if err := p.PublishFinal(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable final")
	}
}

func TestKafkaPublisher_CloseWithoutWriters(t *testing.T) {
	if err := NewKafka(nil, testMetrics()).Close(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := (&KafkaPublisher{}).Close(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
