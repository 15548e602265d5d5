// Package models defines the payloads exchanged with the voice agent and the
// transcript records exported from a session.
package models

// TranscriptData is a user speech-to-text result. Interim results (Final
// false) are superseded by later results for the same utterance.
type TranscriptData struct {
	Text      string `json:"text"`
	Final     bool   `json:"final"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// BotTextData is a chunk of text produced by the bot.
type BotTextData struct {
	Text string `json:"text"`
}

// MetricValue is a single processor measurement in seconds.
type MetricValue struct {
	Processor string  `json:"processor"`
	Model     string  `json:"model,omitempty"`
	Value     float64 `json:"value"`
}

// MetricsData carries pipeline metrics reported by the bot.
type MetricsData struct {
	TTFB       []MetricValue `json:"ttfb,omitempty"`
	Processing []MetricValue `json:"processing,omitempty"`
}

// ErrorData is the payload of error and error-response messages.
type ErrorData struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// Participant identifies who owns a media track.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Local bool   `json:"local"`
}

// Speaker values used in exported records.
const (
	SpeakerUser = "user"
	SpeakerBot  = "bot"
)

// Event types used in exported records.
const (
	EventUserPartial = "session.transcript.user.partial"
	EventUserFinal   = "session.transcript.user.final"
	EventBotPartial  = "session.transcript.bot.partial"
	EventBotFinal    = "session.transcript.bot.final"
)

// TranscriptRecord is one exported transcript event.
type TranscriptRecord struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	UtteranceID string `json:"utteranceId"`
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Final       bool   `json:"final"`
	UserID      string `json:"userId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}
