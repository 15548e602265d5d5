package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
)

const backendRedis = "redis"

// RedisConfig holds Redis Streams publisher settings.
type RedisConfig struct {
	Addr         string
	StreamPrefix string
	// MaxLen caps each stream approximately; zero keeps everything.
	MaxLen int64
}

// RedisPublisher appends records to the <prefix>.partial and
// <prefix>.final streams.
type RedisPublisher struct {
	client        *redis.Client
	streamPartial string
	streamFinal   string
	maxLen        int64
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig, m *metrics.Metrics) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis connection failed")
	}

	p := NewRedisWithClient(client, cfg.StreamPrefix, cfg.MaxLen, m)
	p.logger.Info().Str("addr", cfg.Addr).Str("prefix", cfg.StreamPrefix).Msg("redis publisher initialized")
	return p, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, maxLen int64, m *metrics.Metrics) *RedisPublisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	partial, final := Subjects(prefix)
	return &RedisPublisher{
		client:        client,
		streamPartial: partial,
		streamFinal:   final,
		maxLen:        maxLen,
		metrics:       m,
		logger:        logging.WithComponent("events-redis"),
	}
}

func (p *RedisPublisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.streamPartial, key, event)
}

func (p *RedisPublisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.streamFinal, key, event)
}

func (p *RedisPublisher) publish(ctx context.Context, stream, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshaling event")
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	err = p.client.XAdd(ctx, args).Err()
	p.metrics.RecordExportPublish(backendRedis, stream, err, time.Since(start).Seconds())
	if err != nil {
		p.logger.Error().Err(err).Str("stream", stream).Str("key", key).Msg("redis publish failed")
		return errors.Wrapf(err, "appending to %s", stream)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
