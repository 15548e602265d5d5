// Package websocket implements an RTVI transport that exchanges JSON
// envelopes with the bot over a single websocket connection. The connection
// URL is obtained from the runner's connect endpoint.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/service/rtvi"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 2 * time.Second
)

var botParticipant = models.Participant{ID: "bot", Name: "bot"}

// Transport implements rtvi.Transport over gorilla/websocket.
type Transport struct {
	dialer *ws.Dialer
	logger zerolog.Logger

	opts rtvi.Options
	emit rtvi.Emitter

	mu       sync.Mutex
	conn     *ws.Conn
	closing  bool
	readDone chan struct{}

	writeMu sync.Mutex
}

// New creates a websocket transport.
func New() *Transport {
	return &Transport{
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logging.WithComponent("transport-websocket"),
	}
}

func (t *Transport) Initialize(opts rtvi.Options, emit rtvi.Emitter) {
	t.opts = opts
	t.emit = emit
}

// InitDevices announces the local microphone. No device is opened and no
// audio is sent; the track event only tells handlers a mic was requested.
func (t *Transport) InitDevices(ctx context.Context) error {
	t.state(rtvi.StateInitializing)
	if t.opts.EnableCam {
		t.logger.Warn().Msg("camera is not carried over websocket; ignoring enableCam")
	}
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

// Connect asks the runner for a session URL and dials it.
func (t *Transport) Connect(ctx context.Context) error {
	t.state(rtvi.StateAuthenticating)
	signaler := rtvi.NewSignaler(t.opts.BaseURL, t.opts.HTTPClient)
	resp, err := signaler.Connect(ctx)
	if err != nil {
		t.state(rtvi.StateError)
		return errors.Wrap(err, "requesting session")
	}

	target := resp.WSURL
	if target == "" {
		target = resp.RoomURL
	}
	header := http.Header{}
	if resp.Token != "" {
		header.Set("Authorization", "Bearer "+resp.Token)
	}

	t.state(rtvi.StateConnecting)
	conn, _, err := t.dialer.DialContext(ctx, target, header)
	if err != nil {
		t.state(rtvi.StateError)
		return errors.Wrapf(err, "dialing %s", target)
	}

	t.mu.Lock()
	t.conn = conn
	t.closing = false
	t.readDone = make(chan struct{})
	readDone := t.readDone
	t.mu.Unlock()

	t.logger.Info().Str("url", target).Msg("websocket connected")
	t.state(rtvi.StateConnected)
	t.emit(rtvi.ConnectedEvent{})
	t.emit(rtvi.ParticipantEvent{Joined: true, Participant: botParticipant})

	go t.readLoop(conn, readDone)
	return nil
}

// SendMessage writes one envelope as a text frame.
func (t *Transport) SendMessage(msg rtvi.Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("websocket not connected")
	}

	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
		return errors.Wrapf(err, "writing %s", msg.Type)
	}
	return nil
}

// Disconnect sends a close frame and waits briefly for the read loop to
// observe it.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil || t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	readDone := t.readDone
	t.mu.Unlock()

	t.state(rtvi.StateDisconnecting)

	t.writeMu.Lock()
	closeMsg := ws.FormatCloseMessage(ws.CloseNormalClosure, "client disconnect")
	if err := conn.WriteControl(ws.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		t.logger.Debug().Err(err).Msg("close frame not sent")
	}
	t.writeMu.Unlock()

	select {
	case <-readDone:
		return nil
	case <-time.After(shutdownTimeout):
		t.logger.Warn().Msg("websocket close handshake timed out")
	}
	// unblocks the read loop, which reports the disconnect
	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "closing websocket")
	}
	return nil
}

func (t *Transport) readLoop(conn *ws.Conn, done chan struct{}) {
	reason := "connection closed"
	defer func() {
		_ = conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()

		t.emit(rtvi.ParticipantEvent{Joined: false, Participant: botParticipant})
		t.state(rtvi.StateDisconnected)
		t.emit(rtvi.DisconnectedEvent{Reason: reason})
		close(done)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				t.logger.Info().Msg("websocket closed")
			} else {
				t.mu.Lock()
				closing := t.closing
				t.mu.Unlock()
				if !closing {
					t.logger.Error().Err(err).Msg("websocket read failed")
					reason = err.Error()
				}
			}
			return
		}
		if msgType != ws.TextMessage {
			continue
		}

		ev, err := rtvi.DecodeEvent(data)
		if err != nil {
			t.logger.Debug().Err(err).Msg("ignoring message")
			continue
		}
		t.emit(ev)
	}
}

func (t *Transport) state(s rtvi.TransportState) {
	t.emit(rtvi.TransportStateEvent{State: s})
}
