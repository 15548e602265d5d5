package rtvi

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"voice-session-client/internal/models"
)

// Label marks every RTVI envelope.
const Label = "rtvi-ai"

// ProtocolVersion is announced in client-ready.
const ProtocolVersion = "0.3.0"

// Message types exchanged with the bot.
const (
	MsgClientReady         = "client-ready"
	MsgBotReady            = "bot-ready"
	MsgError               = "error"
	MsgErrorResponse       = "error-response"
	MsgUserStartedSpeaking = "user-started-speaking"
	MsgUserStoppedSpeaking = "user-stopped-speaking"
	MsgBotStartedSpeaking  = "bot-started-speaking"
	MsgBotStoppedSpeaking  = "bot-stopped-speaking"
	MsgUserTranscription   = "user-transcription"
	MsgBotTranscription    = "bot-transcription"
	MsgBotLLMText          = "bot-llm-text"
	MsgBotTTSText          = "bot-tts-text"
	MsgMetrics             = "metrics"
)

var (
	ErrInvalidLabel       = errors.New("message is not an rtvi envelope")
	ErrUnknownMessageType = errors.New("unknown rtvi message type")
)

// Message is the RTVI JSON envelope.
type Message struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope with a fresh id.
func NewMessage(msgType string, data any) (Message, error) {
	msg := Message{
		Label: Label,
		Type:  msgType,
		ID:    uuid.NewString()[:8],
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, errors.Wrapf(err, "encoding %s payload", msgType)
		}
		msg.Data = raw
	}
	return msg, nil
}

// ClientReadyMessage announces the client to the bot.
func ClientReadyMessage() (Message, error) {
	return NewMessage(MsgClientReady, map[string]any{
		"version": ProtocolVersion,
		"about": map[string]string{
			"library":  "voice-session-client",
			"platform": "go",
		},
	})
}

// Encode marshals the envelope.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an envelope and checks its label.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errors.Wrap(err, "decoding rtvi envelope")
	}
	if msg.Label != Label {
		return Message{}, ErrInvalidLabel
	}
	return msg, nil
}

// DecodeEvent parses raw bytes straight into an Event.
func DecodeEvent(raw []byte) (Event, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return msg.Event()
}

// Event converts a bot-to-client message into the event handlers receive.
func (m Message) Event() (Event, error) {
	switch m.Type {
	case MsgBotReady:
		var data struct {
			Version string         `json:"version"`
			About   map[string]any `json:"about"`
		}
		if err := m.decodeData(&data); err != nil {
			return nil, err
		}
		return BotReadyEvent{Version: data.Version, About: data.About}, nil

	case MsgError, MsgErrorResponse:
		var data models.ErrorData
		if err := m.decodeData(&data); err != nil {
			return nil, err
		}
		kind := EventError
		if m.Type == MsgErrorResponse {
			kind = EventMessageError
		}
		return ErrorEvent{kind: kind, Message: m, Data: data}, nil

	case MsgUserStartedSpeaking:
		return NewSpeechEvent(EventUserStartedSpeaking), nil
	case MsgUserStoppedSpeaking:
		return NewSpeechEvent(EventUserStoppedSpeaking), nil
	case MsgBotStartedSpeaking:
		return NewSpeechEvent(EventBotStartedSpeaking), nil
	case MsgBotStoppedSpeaking:
		return NewSpeechEvent(EventBotStoppedSpeaking), nil

	case MsgUserTranscription:
		var data models.TranscriptData
		if err := m.decodeData(&data); err != nil {
			return nil, err
		}
		return UserTranscriptEvent{Transcript: data}, nil

	case MsgBotTranscription, MsgBotLLMText, MsgBotTTSText:
		var data models.BotTextData
		if err := m.decodeData(&data); err != nil {
			return nil, err
		}
		kind := EventBotTranscript
		switch m.Type {
		case MsgBotLLMText:
			kind = EventBotLLMText
		case MsgBotTTSText:
			kind = EventBotTTSText
		}
		return BotTextEvent{kind: kind, Data: data}, nil

	case MsgMetrics:
		var data models.MetricsData
		if err := m.decodeData(&data); err != nil {
			return nil, err
		}
		return MetricsEvent{Data: data}, nil
	}
	return nil, errors.Wrap(ErrUnknownMessageType, m.Type)
}

func (m Message) decodeData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.Wrapf(err, "decoding %s payload", m.Type)
	}
	return nil
}
