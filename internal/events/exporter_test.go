package events

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-session-client/internal/models"
)

// recordingPublisher keeps everything it is asked to publish
type recordingPublisher struct {
	mu      sync.Mutex
	records []models.TranscriptRecord
	keys    []string
	closed  bool
}

func (p *recordingPublisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.add(key, event)
}

func (p *recordingPublisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.add(key, event)
}

func (p *recordingPublisher) add(key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, event.(models.TranscriptRecord))
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestExporter_UserUtterances(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewExporter(pub, "sess-1", testMetrics())

	e.UserTranscript(models.TranscriptData{Text: "hel"})
	e.UserTranscript(models.TranscriptData{Text: "hello", Final: true, UserID: "u-1"})
	e.UserTranscript(models.TranscriptData{Text: "again"})
	if err := e.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pub.closed {
		t.Error("expected publisher to be closed")
	}
	if len(pub.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(pub.records))
	}

	first, final, next := pub.records[0], pub.records[1], pub.records[2]
	if first.EventType != models.EventUserPartial || first.Text != "hel" {
		t.Errorf("unexpected partial %+v", first)
	}
	if final.EventType != models.EventUserFinal || !final.Final || final.UserID != "u-1" {
		t.Errorf("unexpected final %+v", final)
	}
	if first.UtteranceID != final.UtteranceID {
		t.Errorf("expected partial and final to share an utterance, got %s and %s", first.UtteranceID, final.UtteranceID)
	}
	if next.UtteranceID == final.UtteranceID {
		t.Error("expected a new utterance after the final")
	}
	for i, key := range pub.keys {
		if key != "sess-1" {
			t.Errorf("record %d: expected session key, got %s", i, key)
		}
	}
}

func TestExporter_BotTurnAssembled(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewExporter(pub, "sess-1", testMetrics())

	e.BotText("ignored before start")
	e.BotStarted()
	e.BotText("Hi")
	e.BotText(" there")
	e.BotStopped()
	e.BotStopped()
	_ = e.Close()

	if len(pub.records) != 3 {
		t.Fatalf("expected 2 partials and 1 final, got %d records", len(pub.records))
	}
	if pub.records[1].Text != "Hi there" || pub.records[1].Final {
		t.Errorf("expected cumulative partial, got %+v", pub.records[1])
	}
	final := pub.records[2]
	if final.EventType != models.EventBotFinal || final.Text != "Hi there" || !final.Final {
		t.Errorf("unexpected bot final %+v", final)
	}
}

func TestExporter_BotStartFinalizesPreviousTurn(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewExporter(pub, "sess-1", testMetrics())

	e.BotStarted()
	e.BotText("one")
	e.BotStarted()
	e.BotText("two")
	_ = e.Close()

	var finals []string
	for _, r := range pub.records {
		if r.Final {
			finals = append(finals, r.Text)
		}
	}
	if len(finals) != 1 || finals[0] != "one" {
		t.Errorf("expected only the completed turn to be final, got %v", finals)
	}
}

func TestExporter_EmptyBotTurnHasNoFinal(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewExporter(pub, "sess-1", testMetrics())

	e.BotStarted()
	e.BotStopped()
	_ = e.Close()

	if len(pub.records) != 0 {
		t.Errorf("expected no records, got %+v", pub.records)
	}
}

func TestExporter_RejectsInvalidRecords(t *testing.T) {
	pub := &recordingPublisher{}
	m := testMetrics()
	e := NewExporter(pub, "sess-1", m)

	e.UserTranscript(models.TranscriptData{Text: "", Final: true})
	_ = e.Close()

	if len(pub.records) != 0 {
		t.Errorf("expected empty final to be rejected, got %+v", pub.records)
	}
	if got := testutil.ToFloat64(m.ExportRejected.WithLabelValues("text")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestExporter_CloseIsIdempotent(t *testing.T) {
	e := NewExporter(&recordingPublisher{}, "sess-1", testMetrics())
	if err := e.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	// events after close are ignored
	e.UserTranscript(models.TranscriptData{Text: "late"})
}
