// Package schema checks exported transcript records before they leave the
// process.
package schema

import (
	"fmt"

	"voice-session-client/internal/models"
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// eventShape is the speaker and finality each event type implies.
type eventShape struct {
	speaker string
	final   bool
}

var eventTypes = map[string]eventShape{
	models.EventUserPartial: {models.SpeakerUser, false},
	models.EventUserFinal:   {models.SpeakerUser, true},
	models.EventBotPartial:  {models.SpeakerBot, false},
	models.EventBotFinal:    {models.SpeakerBot, true},
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns a *ValidationError for the first problem found.
func (v *Validator) Validate(rec models.TranscriptRecord) error {
	if rec.SessionID == "" {
		return &ValidationError{Field: "sessionId", Reason: "empty"}
	}
	if rec.UtteranceID == "" {
		return &ValidationError{Field: "utteranceId", Reason: "empty"}
	}
	shape, ok := eventTypes[rec.EventType]
	if !ok {
		return &ValidationError{Field: "eventType", Reason: fmt.Sprintf("unknown %q", rec.EventType)}
	}
	if rec.Speaker != shape.speaker {
		return &ValidationError{Field: "speaker", Reason: fmt.Sprintf("%q does not match %s", rec.Speaker, rec.EventType)}
	}
	if rec.Final != shape.final {
		return &ValidationError{Field: "final", Reason: fmt.Sprintf("%t does not match %s", rec.Final, rec.EventType)}
	}
	if rec.Final && rec.Text == "" {
		return &ValidationError{Field: "text", Reason: "empty final"}
	}
	if rec.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Reason: "not set"}
	}
	return nil
}
