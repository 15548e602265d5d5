package rtvi

import (
	"fmt"

	"github.com/pion/rtp"

	"voice-session-client/internal/models"
)

// EventKind identifies an event delivered by the client.
type EventKind int

const (
	EventTransportStateChanged EventKind = iota
	EventConnected
	EventDisconnected
	EventBotConnected
	EventBotDisconnected
	EventBotReady
	EventTrackStarted
	EventTrackStopped
	EventUserStartedSpeaking
	EventUserStoppedSpeaking
	EventBotStartedSpeaking
	EventBotStoppedSpeaking
	EventUserTranscript
	EventBotTranscript
	EventBotLLMText
	EventBotTTSText
	EventMetrics
	EventError
	EventMessageError
)

var eventKindNames = map[EventKind]string{
	EventTransportStateChanged: "transportStateChanged",
	EventConnected:             "connected",
	EventDisconnected:          "disconnected",
	EventBotConnected:          "botConnected",
	EventBotDisconnected:       "botDisconnected",
	EventBotReady:              "botReady",
	EventTrackStarted:          "trackStarted",
	EventTrackStopped:          "trackStopped",
	EventUserStartedSpeaking:   "userStartedSpeaking",
	EventUserStoppedSpeaking:   "userStoppedSpeaking",
	EventBotStartedSpeaking:    "botStartedSpeaking",
	EventBotStoppedSpeaking:    "botStoppedSpeaking",
	EventUserTranscript:        "userTranscript",
	EventBotTranscript:         "botTranscript",
	EventBotLLMText:            "botLlmText",
	EventBotTTSText:            "botTtsText",
	EventMetrics:               "metrics",
	EventError:                 "error",
	EventMessageError:          "messageError",
}

// String returns the string representation of the kind.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(k))
}

// TransportState is the connection lifecycle state reported by a transport.
type TransportState string

const (
	StateDisconnected   TransportState = "disconnected"
	StateInitializing   TransportState = "initializing"
	StateInitialized    TransportState = "initialized"
	StateAuthenticating TransportState = "authenticating"
	StateConnecting     TransportState = "connecting"
	StateConnected      TransportState = "connected"
	StateReady          TransportState = "ready"
	StateDisconnecting  TransportState = "disconnecting"
	StateError          TransportState = "error"
)

// Event is anything delivered to a Handler. Handlers switch on the concrete
// type or on Kind.
type Event interface {
	Kind() EventKind
}

// Handler receives events of the kind it was registered for.
type Handler func(Event)

// RTPReader yields RTP packets from a remote track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, error)
}

// Track describes a media track. Source is nil for local tracks.
type Track struct {
	ID     string
	Kind   string // audio, video
	Source RTPReader
}

type TransportStateEvent struct {
	State TransportState
}

func (TransportStateEvent) Kind() EventKind { return EventTransportStateChanged }

type ConnectedEvent struct{}

func (ConnectedEvent) Kind() EventKind { return EventConnected }

type DisconnectedEvent struct {
	Reason string
}

func (DisconnectedEvent) Kind() EventKind { return EventDisconnected }

// ParticipantEvent reports the bot joining or leaving.
type ParticipantEvent struct {
	Joined      bool
	Participant models.Participant
}

func (e ParticipantEvent) Kind() EventKind {
	if e.Joined {
		return EventBotConnected
	}
	return EventBotDisconnected
}

type BotReadyEvent struct {
	Version string
	About   map[string]any
}

func (BotReadyEvent) Kind() EventKind { return EventBotReady }

// TrackEvent reports a media track starting or stopping.
type TrackEvent struct {
	Started     bool
	Track       Track
	Participant models.Participant
}

func (e TrackEvent) Kind() EventKind {
	if e.Started {
		return EventTrackStarted
	}
	return EventTrackStopped
}

// SpeechEvent reports speech activity of the user or the bot.
type SpeechEvent struct {
	kind EventKind
}

func (e SpeechEvent) Kind() EventKind { return e.kind }

// NewSpeechEvent returns a speech activity event of the given kind.
func NewSpeechEvent(kind EventKind) SpeechEvent {
	return SpeechEvent{kind: kind}
}

type UserTranscriptEvent struct {
	Transcript models.TranscriptData
}

func (UserTranscriptEvent) Kind() EventKind { return EventUserTranscript }

// BotTextEvent carries bot transcript, LLM or TTS text.
type BotTextEvent struct {
	kind EventKind
	Data models.BotTextData
}

func (e BotTextEvent) Kind() EventKind { return e.kind }

// NewBotTextEvent returns a bot text event of the given kind.
func NewBotTextEvent(kind EventKind, text string) BotTextEvent {
	return BotTextEvent{kind: kind, Data: models.BotTextData{Text: text}}
}

type MetricsEvent struct {
	Data models.MetricsData
}

func (MetricsEvent) Kind() EventKind { return EventMetrics }

// ErrorEvent carries an error or error-response message.
type ErrorEvent struct {
	kind    EventKind
	Message Message
	Data    models.ErrorData
}

func (e ErrorEvent) Kind() EventKind { return e.kind }
