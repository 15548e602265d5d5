package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
)

const backendNATS = "nats"

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultNATSConfig returns local defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "voice.transcript",
		Name:          "voice-session-client",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Subjects returns the partial and final subjects for prefix.
func Subjects(prefix string) (partial, final string) {
	return prefix + ".partial", prefix + ".final"
}

// NATSPublisher publishes records to <prefix>.partial and <prefix>.final.
type NATSPublisher struct {
	conn           *nats.Conn
	subjectPartial string
	subjectFinal   string
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewNATS connects to NATS. The initial connection must succeed.
func NewNATS(cfg NATSConfig, m *metrics.Metrics) (*NATSPublisher, error) {
	logger := logging.WithComponent("events-nats")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("nats publisher initialized")
	return NewNATSWithConn(nc, cfg.SubjectPrefix, m), nil
}

// NewNATSWithConn wraps an existing connection.
func NewNATSWithConn(nc *nats.Conn, prefix string, m *metrics.Metrics) *NATSPublisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	partial, final := Subjects(prefix)
	return &NATSPublisher{
		conn:           nc,
		subjectPartial: partial,
		subjectFinal:   final,
		metrics:        m,
		logger:         logging.WithComponent("events-nats"),
	}
}

func (p *NATSPublisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.subjectPartial, key, event)
}

func (p *NATSPublisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.subjectFinal, key, event)
}

func (p *NATSPublisher) publish(ctx context.Context, subject, key string, event any) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshaling event")
	}

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set("key", key)

	err = p.conn.PublishMsg(msg)
	p.metrics.RecordExportPublish(backendNATS, subject, err, time.Since(start).Seconds())
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Str("key", key).Msg("nats publish failed")
		return errors.Wrapf(err, "publishing to %s", subject)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return errors.Wrap(err, "draining nats connection")
	}
	return nil
}
