package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/logging"
)

// Subscriber reads exported transcript records back from a broker.
type Subscriber interface {
	// Subscribe calls handle for every record until ctx is done.
	Subscribe(ctx context.Context, handle func(models.TranscriptRecord)) error
	Close() error
}

func decodeRecord(logger zerolog.Logger, data []byte) (models.TranscriptRecord, bool) {
	var rec models.TranscriptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn().Err(err).Msg("skipping undecodable record")
		return rec, false
	}
	return rec, true
}

// KafkaSubscriber reads every partition of the partial and final topics,
// starting from the given lookback.
type KafkaSubscriber struct {
	brokers  []string
	topics   []string
	lookback time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaSubscriber validates cfg. Partitions are looked up on Subscribe.
func NewKafkaSubscriber(cfg *KafkaConfig, lookback time.Duration) (*KafkaSubscriber, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &KafkaSubscriber{
		brokers:  cfg.Brokers,
		topics:   []string{cfg.TopicPartial, cfg.TopicFinal},
		lookback: lookback,
		logger:   logging.WithComponent("events-kafka-subscriber"),
	}, nil
}

// partitions returns the partition ids of topic. Records are keyed by
// session and spread across all of them.
func (s *KafkaSubscriber) partitions(ctx context.Context, topic string) ([]int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", s.brokers[0])
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", s.brokers[0])
	}
	defer conn.Close()

	parts, err := conn.ReadPartitions(topic)
	if err != nil {
		return nil, errors.Wrapf(err, "reading partitions of %s", topic)
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *KafkaSubscriber) newReaders(ctx context.Context) ([]*kafka.Reader, error) {
	var readers []*kafka.Reader
	for _, topic := range s.topics {
		ids, err := s.partitions(ctx, topic)
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, err
		}
		for _, id := range ids {
			readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
				Brokers:   s.brokers,
				Topic:     topic,
				Partition: id,
				MinBytes:  1,
				MaxBytes:  10e6,
			}))
		}
	}
	s.logger.Info().Int("readers", len(readers)).Strs("topics", s.topics).Msg("kafka subscriber started")
	return readers, nil
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, handle func(models.TranscriptRecord)) error {
	readers, err := s.newReaders(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.readers = append(s.readers, readers...)
	s.mu.Unlock()

	// handle is called from one goroutine per partition
	var handleMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range readers {
		g.Go(func() error {
			cfg := r.Config()
			if err := r.SetOffsetAt(ctx, time.Now().Add(-s.lookback)); err != nil {
				return errors.Wrapf(err, "seeking %s/%d", cfg.Topic, cfg.Partition)
			}
			for {
				msg, err := r.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.logger.Warn().Err(err).Str("topic", cfg.Topic).Int("partition", cfg.Partition).Msg("kafka read failed")
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return nil
					}
					continue
				}
				if rec, ok := decodeRecord(s.logger, msg.Value); ok {
					handleMu.Lock()
					handle(rec)
					handleMu.Unlock()
				}
			}
		})
	}
	return g.Wait()
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, r := range s.readers {
		if e := r.Close(); e != nil {
			err = e
		}
	}
	s.readers = nil
	return err
}

// NATSSubscriber listens on <prefix>.partial and <prefix>.final.
type NATSSubscriber struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSSubscriber connects to NATS.
func NewNATSSubscriber(cfg NATSConfig) (*NATSSubscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.Name+"-tail"))
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &NATSSubscriber{
		conn:   nc,
		prefix: cfg.SubjectPrefix,
		logger: logging.WithComponent("events-nats-subscriber"),
	}, nil
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, handle func(models.TranscriptRecord)) error {
	records := make(chan models.TranscriptRecord, 64)
	sub, err := s.conn.Subscribe(s.prefix+".*", func(msg *nats.Msg) {
		if rec, ok := decodeRecord(s.logger, msg.Data); ok {
			select {
			case records <- rec:
			case <-ctx.Done():
			}
		}
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing to %s.*", s.prefix)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case rec := <-records:
			handle(rec)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *NATSSubscriber) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// RedisSubscriber tails the partial and final streams with XREAD.
type RedisSubscriber struct {
	client  *redis.Client
	streams []string
	logger  zerolog.Logger
}

// NewRedisSubscriber connects to Redis and verifies the connection.
func NewRedisSubscriber(cfg RedisConfig) (*RedisSubscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis connection failed")
	}
	return NewRedisSubscriberWithClient(client, cfg.StreamPrefix), nil
}

// NewRedisSubscriberWithClient wraps an existing client.
func NewRedisSubscriberWithClient(client *redis.Client, prefix string) *RedisSubscriber {
	partial, final := Subjects(prefix)
	return &RedisSubscriber{
		client:  client,
		streams: []string{partial, final},
		logger:  logging.WithComponent("events-redis-subscriber"),
	}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, handle func(models.TranscriptRecord)) error {
	// only entries added after subscribing
	start := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
	last := map[string]string{}
	for _, stream := range s.streams {
		last[stream] = start
	}

	for {
		args := make([]string, 0, 2*len(s.streams))
		args = append(args, s.streams...)
		for _, stream := range s.streams {
			args = append(args, last[stream])
		}

		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: args,
			Block:   time.Second,
		}).Result()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "reading streams")
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				last[stream.Stream] = msg.ID
				payload, _ := msg.Values["payload"].(string)
				if rec, ok := decodeRecord(s.logger, []byte(payload)); ok {
					handle(rec)
				}
			}
		}
	}
}

func (s *RedisSubscriber) Close() error {
	return s.client.Close()
}
