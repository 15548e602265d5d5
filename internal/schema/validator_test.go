package schema

import (
	"errors"
	"testing"

	"voice-session-client/internal/models"
)

func validRecord() models.TranscriptRecord {
	return models.TranscriptRecord{
		EventType:   models.EventUserFinal,
		SessionID:   "sess-1",
		UtteranceID: "sess-1-user-1",
		Speaker:     models.SpeakerUser,
		Text:        "hello",
		Final:       true,
		Timestamp:   1730541600000,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := New().Validate(validRecord()); err != nil {
		t.Errorf("expected valid record, got %v", err)
	}

	partial := validRecord()
	partial.EventType = models.EventBotPartial
	partial.Speaker = models.SpeakerBot
	partial.Final = false
	partial.Text = ""
	if err := New().Validate(partial); err != nil {
		t.Errorf("expected empty partial to be valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TranscriptRecord)
		field  string
	}{
		{"no session", func(r *models.TranscriptRecord) { r.SessionID = "" }, "sessionId"},
		{"no utterance", func(r *models.TranscriptRecord) { r.UtteranceID = "" }, "utteranceId"},
		{"unknown type", func(r *models.TranscriptRecord) { r.EventType = "session.transcript.other" }, "eventType"},
		{"speaker mismatch", func(r *models.TranscriptRecord) { r.Speaker = models.SpeakerBot }, "speaker"},
		{"final mismatch", func(r *models.TranscriptRecord) { r.Final = false }, "final"},
		{"empty final", func(r *models.TranscriptRecord) { r.Text = "" }, "text"},
		{"no timestamp", func(r *models.TranscriptRecord) { r.Timestamp = 0 }, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)

			err := New().Validate(rec)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}
