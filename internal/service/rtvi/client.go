// Package rtvi implements a client for RTVI voice agents: the event model,
// the JSON wire format, signaling helpers and the dispatching client that
// sits on top of a pluggable Transport.
package rtvi

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
)

const eventBufferSize = 256

var (
	ErrDevicesNotInitialized = errors.New("devices not initialized")
	ErrConnectTimeout        = errors.New("timed out waiting for bot ready")
	ErrClosed                = errors.New("client closed")
)

// Client owns one RTVI session. Events reported by the transport are queued
// and dispatched by a single goroutine, so handlers never run concurrently
// with each other and always see events in delivery order.
type Client struct {
	transport Transport
	opts      Options
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu           sync.RWMutex
	handlers     map[EventKind]Handler
	devicesReady bool

	events  chan Event
	closing chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closingOnce      sync.Once
	closeOnce        sync.Once
	ready            chan struct{}
	readyOnce        sync.Once
	disconnected     chan struct{}
	disconnectedOnce sync.Once
}

// NewClient wires transport to a new client and starts the dispatcher.
// A nil m uses metrics.DefaultMetrics.
func NewClient(transport Transport, opts Options, m *metrics.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions(opts.BaseURL).Timeout
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	c := &Client{
		transport:    transport,
		opts:         opts,
		logger:       logging.WithComponent("rtvi-client"),
		metrics:      m,
		handlers:     make(map[EventKind]Handler),
		events:       make(chan Event, eventBufferSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		ready:        make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	transport.Initialize(opts, c.emit)
	go c.run()
	return c
}

// Options returns the options the client was built with.
func (c *Client) Options() Options {
	return c.opts
}

// On registers the handler for kind. Only one handler per kind is kept;
// registering again replaces the previous one.
func (c *Client) On(kind EventKind, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = handler
}

// InitDevices prepares local media. It must succeed before Connect.
func (c *Client) InitDevices(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.transport.InitDevices(ctx); err != nil {
		return errors.Wrap(err, "initializing devices")
	}
	c.mu.Lock()
	c.devicesReady = true
	c.mu.Unlock()
	return nil
}

// Connect establishes the transport, announces the client and waits for the
// bot to report ready. The whole exchange is bounded by Options.Timeout.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mu.RLock()
	devicesReady := c.devicesReady
	c.mu.RUnlock()
	if !devicesReady {
		return ErrDevicesNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	start := time.Now()

	if err := c.transport.Connect(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrap(ErrConnectTimeout, err.Error())
		}
		return errors.Wrap(err, "connecting transport")
	}

	msg, err := ClientReadyMessage()
	if err != nil {
		return err
	}
	if err := c.transport.SendMessage(msg); err != nil {
		return errors.Wrap(err, "sending client-ready")
	}

	select {
	case <-c.ready:
		c.metrics.RecordConnectLatency(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrConnectTimeout
		}
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// SendMessage sends a client-to-bot message of the given type.
func (c *Client) SendMessage(msgType string, data any) error {
	if c.isClosed() {
		return ErrClosed
	}
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return err
	}
	return c.transport.SendMessage(msg)
}

// Disconnect tears down the transport and stops the dispatcher once the
// events already queued have been delivered. Safe to call more than once,
// including from inside a handler.
func (c *Client) Disconnect() error {
	// From here on emit never blocks: a handler calling Disconnect is the
	// goroutine that would drain the queue.
	c.closingOnce.Do(func() {
		close(c.closing)
	})
	err := c.transport.Disconnect()
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return err
}

// Ready is closed when the bot reports ready.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Disconnected is closed when the transport reports a disconnect.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Done is closed when the dispatcher has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.stopped
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) emit(ev Event) {
	if ev == nil {
		return
	}
	if c.isClosed() {
		c.drop(ev)
		return
	}
	select {
	case c.events <- ev:
	case <-c.closing:
		select {
		case c.events <- ev:
		default:
			c.drop(ev)
		}
	case <-c.done:
		c.drop(ev)
	}
}

func (c *Client) drop(ev Event) {
	c.metrics.RecordEventDropped()
	c.logger.Debug().Str("kind", ev.Kind().String()).Msg("event dropped during shutdown")
	// Disconnected() still closes when the disconnect itself is not queued
	if _, ok := ev.(DisconnectedEvent); ok {
		c.disconnectedOnce.Do(func() { close(c.disconnected) })
	}
}

func (c *Client) run() {
	defer close(c.stopped)
	for {
		select {
		case ev := <-c.events:
			c.dispatch(ev)
		case <-c.done:
			for {
				select {
				case ev := <-c.events:
					c.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) dispatch(ev Event) {
	switch ev.(type) {
	case BotReadyEvent:
		// the transport only knows the bot is reachable; ready is
		// signalled by the bot itself
		c.invoke(TransportStateEvent{State: StateReady})
		c.readyOnce.Do(func() { close(c.ready) })
	case DisconnectedEvent:
		c.disconnectedOnce.Do(func() { close(c.disconnected) })
	}
	c.invoke(ev)
}

func (c *Client) invoke(ev Event) {
	kind := ev.Kind()
	c.metrics.RecordEvent(kind.String())

	c.mu.RLock()
	handler := c.handlers[kind]
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordHandlerPanic(kind.String())
			c.logger.Error().
				Str("kind", kind.String()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	handler(ev)
}
