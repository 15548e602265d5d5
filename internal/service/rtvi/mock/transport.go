// Package mock provides a scripted RTVI transport for running the client
// without a voice agent. It replays recorded or simulated bot messages with
// realistic pacing: a user turn with progressive interim transcripts and one
// final transcript, followed by a streamed bot reply.
package mock

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"voice-session-client/internal/models"
	"voice-session-client/internal/service/rtvi"
)

// SimulatedTurn is one user utterance and the bot's reply.
type SimulatedTurn struct {
	Interims  []string             // Progressive interim transcripts
	Final     string               // Final transcript text
	BotChunks []string             // Streamed bot text
	TTFB      []models.MetricValue // Reported after the bot starts speaking
}

// DefaultTurns provides a sample conversation for simulation.
var DefaultTurns = []SimulatedTurn{
	{
		Interims:  []string{"I want", "I want to renew", "I want to renew my"},
		Final:     "I want to renew my driving licence",
		BotChunks: []string{"Sure.", " I can help", " you renew", " your licence."},
		TTFB: []models.MetricValue{
			{Processor: "GeminiMultimodalLiveLLMService#0", Value: 0.42},
		},
	},
	{
		Interims:  []string{"How long", "How long does it"},
		Final:     "How long does it take",
		BotChunks: []string{"It usually", " takes five", " working days."},
		TTFB: []models.MetricValue{
			{Processor: "GeminiMultimodalLiveLLMService#0", Value: 0.38},
		},
	},
	{
		Interims:  []string{"Thank"},
		Final:     "Thank you",
		BotChunks: []string{"You're welcome!"},
	},
}

// Step is one scripted message and the pause before it.
type Step struct {
	Delay   time.Duration
	Message rtvi.Message
}

// ScriptFromTurns expands turns into the message sequence a bot would send.
// pace is the pause between consecutive messages.
func ScriptFromTurns(turns []SimulatedTurn, pace time.Duration) ([]Step, error) {
	var steps []Step
	add := func(msgType string, data any) error {
		msg, err := rtvi.NewMessage(msgType, data)
		if err != nil {
			return err
		}
		steps = append(steps, Step{Delay: pace, Message: msg})
		return nil
	}

	if err := add(rtvi.MsgBotReady, map[string]string{"version": rtvi.ProtocolVersion}); err != nil {
		return nil, err
	}
	for _, turn := range turns {
		if err := add(rtvi.MsgUserStartedSpeaking, nil); err != nil {
			return nil, err
		}
		for _, text := range turn.Interims {
			if err := add(rtvi.MsgUserTranscription, transcript(text, false)); err != nil {
				return nil, err
			}
		}
		if err := add(rtvi.MsgUserStoppedSpeaking, nil); err != nil {
			return nil, err
		}
		if err := add(rtvi.MsgUserTranscription, transcript(turn.Final, true)); err != nil {
			return nil, err
		}
		if err := add(rtvi.MsgBotStartedSpeaking, nil); err != nil {
			return nil, err
		}
		if len(turn.TTFB) > 0 {
			if err := add(rtvi.MsgMetrics, models.MetricsData{TTFB: turn.TTFB}); err != nil {
				return nil, err
			}
		}
		for _, chunk := range turn.BotChunks {
			if err := add(rtvi.MsgBotTranscription, models.BotTextData{Text: chunk}); err != nil {
				return nil, err
			}
		}
		if err := add(rtvi.MsgBotStoppedSpeaking, nil); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func transcript(text string, final bool) models.TranscriptData {
	return models.TranscriptData{
		Text:      text,
		Final:     final,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    "local",
	}
}

// LoadScript reads a JSON-lines recording. Each line is an RTVI envelope
// with an optional "delay_ms" field. Blank lines and lines starting with #
// are skipped.
func LoadScript(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var entry struct {
			DelayMs int64 `json:"delay_ms"`
			rtvi.Message
		}
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if entry.Label != rtvi.Label {
			return nil, errors.Wrapf(rtvi.ErrInvalidLabel, "line %d", line)
		}
		steps = append(steps, Step{
			Delay:   time.Duration(entry.DelayMs) * time.Millisecond,
			Message: entry.Message,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading script")
	}
	return steps, nil
}

// Transport implements rtvi.Transport by replaying a script once the client
// announces itself with client-ready.
type Transport struct {
	// InitErr and ConnectErr, when set, are returned by the matching call.
	InitErr    error
	ConnectErr error
	// DisconnectWhenDone ends the session after the last step.
	DisconnectWhenDone bool

	mu        sync.Mutex
	opts      rtvi.Options
	emit      rtvi.Emitter
	steps     []Step
	calls     []string
	sent      []rtvi.Message
	connected bool
	playing   bool
	closed    bool
	done      chan struct{}
	finished  chan struct{}
}

// New creates a mock transport for steps. A bot-ready message is played
// first when the script does not contain one.
func New(steps []Step) *Transport {
	hasReady := false
	for _, s := range steps {
		if s.Message.Type == rtvi.MsgBotReady {
			hasReady = true
			break
		}
	}
	if !hasReady {
		ready, _ := rtvi.NewMessage(rtvi.MsgBotReady, map[string]string{"version": rtvi.ProtocolVersion})
		steps = append([]Step{{Message: ready}}, steps...)
	}
	return &Transport{
		steps:    steps,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// NewDefault creates a mock transport replaying DefaultTurns.
func NewDefault(pace time.Duration) *Transport {
	steps, err := ScriptFromTurns(DefaultTurns, pace)
	if err != nil {
		// DefaultTurns only holds plain strings and numbers
		panic(err)
	}
	return New(steps)
}

func (t *Transport) Initialize(opts rtvi.Options, emit rtvi.Emitter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts = opts
	t.emit = emit
}

func (t *Transport) InitDevices(ctx context.Context) error {
	t.record("initDevices")
	if t.InitErr != nil {
		return t.InitErr
	}
	t.state(rtvi.StateInitializing)
	if t.opts.EnableMic {
		t.emit(rtvi.TrackEvent{
			Started:     true,
			Track:       rtvi.Track{ID: "local-mic", Kind: "audio"},
			Participant: models.Participant{ID: "local", Name: "local", Local: true},
		})
	}
	t.state(rtvi.StateInitialized)
	return nil
}

func (t *Transport) Connect(ctx context.Context) error {
	t.record("connect")
	if t.ConnectErr != nil {
		t.state(rtvi.StateError)
		return t.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.state(rtvi.StateConnecting)
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.state(rtvi.StateConnected)

	bot := models.Participant{ID: "bot", Name: "bot"}
	t.emit(rtvi.ConnectedEvent{})
	t.emit(rtvi.ParticipantEvent{Joined: true, Participant: bot})
	t.emit(rtvi.TrackEvent{
		Started:     true,
		Track:       rtvi.Track{ID: "bot-audio", Kind: "audio"},
		Participant: bot,
	})
	return nil
}

func (t *Transport) SendMessage(msg rtvi.Message) error {
	t.mu.Lock()
	if !t.connected || t.closed {
		t.mu.Unlock()
		return errors.New("mock transport not connected")
	}
	t.sent = append(t.sent, msg)
	start := msg.Type == rtvi.MsgClientReady && !t.playing
	if start {
		t.playing = true
	}
	t.mu.Unlock()

	if start {
		go t.play()
	}
	return nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	wasConnected := t.connected
	t.connected = false
	close(t.done)
	t.mu.Unlock()

	if wasConnected {
		t.state(rtvi.StateDisconnecting)
		t.emit(rtvi.ParticipantEvent{Joined: false, Participant: models.Participant{ID: "bot", Name: "bot"}})
	}
	t.state(rtvi.StateDisconnected)
	t.emit(rtvi.DisconnectedEvent{Reason: "client disconnect"})
	return nil
}

// Calls returns the lifecycle calls made on the transport in order.
func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.calls...)
}

// Sent returns the messages the client sent.
func (t *Transport) Sent() []rtvi.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]rtvi.Message{}, t.sent...)
}

// Finished is closed when every step has been played.
func (t *Transport) Finished() <-chan struct{} {
	return t.finished
}

func (t *Transport) play() {
	defer close(t.finished)
	for _, step := range t.steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-t.done:
				return
			}
		}
		select {
		case <-t.done:
			return
		default:
		}

		ev, err := step.Message.Event()
		if err != nil {
			log.Debug().Err(err).Str("type", step.Message.Type).Msg("mock transport skipped message")
			continue
		}
		t.emit(ev)
	}
	if t.DisconnectWhenDone {
		_ = t.Disconnect()
	}
}

func (t *Transport) state(s rtvi.TransportState) {
	t.emit(rtvi.TransportStateEvent{State: s})
}

func (t *Transport) record(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}
