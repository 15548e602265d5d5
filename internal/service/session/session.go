// Package session runs one voice conversation: it builds the RTVI client on
// a transport, routes its events into the conversation view, the media
// attacher and the transcript exporter, and tears everything down again.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/events"
	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/service/conversation"
	"voice-session-client/internal/service/media"
	"voice-session-client/internal/service/rtvi"
)

var ErrAlreadyStarted = errors.New("session already started")

// Config wires a session together. Attacher and Publisher are optional.
type Config struct {
	Options       rtvi.Options
	Transport     rtvi.Transport
	TransportName string
	Sink          conversation.Sink
	Attacher      *media.Attacher
	Publisher     events.Publisher
	Metrics       *metrics.Metrics
}

// Info is a point-in-time summary of the session.
type Info struct {
	ID        string             `json:"id"`
	Transport string             `json:"transport,omitempty"`
	State     string             `json:"state"`
	Phase     string             `json:"phase"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	Active    bool               `json:"active"`
	Tracks    []media.TrackStats `json:"tracks,omitempty"`
}

// Session owns a client and everything hanging off its events.
type Session struct {
	id       string
	cfg      Config
	view     *conversation.View
	router   *Router
	exporter *events.Exporter
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu        sync.Mutex
	client    *rtvi.Client
	state     rtvi.TransportState
	startedAt time.Time
	connected bool
	closed    bool
}

// New creates a session. Nothing is connected until Start.
func New(cfg Config) *Session {
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	id := uuid.NewString()

	s := &Session{
		id:      id,
		cfg:     cfg,
		view:    conversation.NewView(cfg.Sink, m),
		metrics: m,
		logger:  logging.WithTransport(id, cfg.TransportName),
	}
	if cfg.Publisher != nil {
		s.exporter = events.NewExporter(cfg.Publisher, id, m)
	}
	s.router = NewRouter(s.view, cfg.Attacher, s.exporter, m, s.logger)
	s.router.OnState(s.setState)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) View() *conversation.View { return s.view }

func (s *Session) setState(state rtvi.TransportState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start creates the client, registers every handler, initializes devices
// and connects. A failure at either step is logged and returned; there is
// no retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.client != nil || s.closed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	client := rtvi.NewClient(s.cfg.Transport, s.cfg.Options, s.metrics)
	s.client = client
	s.mu.Unlock()

	s.router.Register(client)
	s.logger.Info().Str("baseUrl", s.cfg.Options.BaseURL).Msg("starting session")

	if err := client.InitDevices(ctx); err != nil {
		s.metrics.RecordConnectFailure("init_devices")
		s.logger.Error().Err(err).Msg("error connecting")
		return err
	}
	if err := client.Connect(ctx); err != nil {
		s.metrics.RecordConnectFailure("connect")
		s.logger.Error().Err(err).Msg("error connecting")
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.metrics.RecordSessionStart()
	if isClosed(client.Disconnected()) {
		// the transport can finish before Connect returns
		s.logger.Info().Msg("session connected and already ended")
		return nil
	}
	s.logger.Info().Msg("session connected")
	return nil
}

// Ready reports whether the session has connected and the transport has
// not disconnected since.
func (s *Session) Ready() bool {
	s.mu.Lock()
	client, connected, closed := s.client, s.connected, s.closed
	s.mu.Unlock()
	return connected && !closed && !isClosed(client.Disconnected())
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the transport disconnects or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return errors.New("session not started")
	}

	select {
	case <-client.Disconnected():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the client, waits for queued events to be handled and
// releases the attacher and exporter. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	client := s.client
	connected := s.connected
	startedAt := s.startedAt
	s.mu.Unlock()

	var firstErr error
	if client != nil {
		if err := client.Disconnect(); err != nil {
			s.logger.Warn().Err(err).Msg("transport disconnect failed")
			firstErr = err
		}
		<-client.Done()
	}
	if s.cfg.Attacher != nil {
		s.cfg.Attacher.Close()
	}
	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("closing exporter failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if connected {
		duration := time.Since(startedAt)
		s.metrics.RecordSessionEnd(duration.Seconds())
		s.logger.Info().Dur("duration", duration).Msg("session closed")
	}
	return firstErr
}

// Info reports the session's current state.
func (s *Session) Info() Info {
	s.mu.Lock()
	info := Info{
		ID:        s.id,
		Transport: s.cfg.TransportName,
		State:     string(s.state),
		Phase:     s.view.Phase().String(),
	}
	if s.connected {
		started := s.startedAt
		info.StartedAt = &started
	}
	s.mu.Unlock()

	if info.State == "" {
		info.State = "new"
	}
	info.Active = s.Ready()
	if s.cfg.Attacher != nil {
		info.Tracks = s.cfg.Attacher.Stats()
	}
	return info
}
