package events

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"voice-session-client/internal/models"
)

// newTestRedis needs a Redis on localhost:6379 and skips otherwise.
func newTestRedis(t *testing.T, prefix string) (*RedisPublisher, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	partial, final := Subjects(prefix)
	client.Del(ctx, partial, final)
	t.Cleanup(func() {
		client.Del(context.Background(), partial, final)
	})

	reader := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	t.Cleanup(func() { reader.Close() })
	return NewRedisWithClient(client, prefix, 100, testMetrics()), reader
}

func TestRedisPublisher_AppendsToStreams(t *testing.T) {
	p, reader := newTestRedis(t, "test.voice.transcript")
	ctx := context.Background()

	rec := models.TranscriptRecord{
		EventType:   models.EventUserFinal,
		SessionID:   "sess-1",
		UtteranceID: "sess-1-user-1",
		Speaker:     models.SpeakerUser,
		Text:        "hello",
		Final:       true,
		Timestamp:   1,
	}
	if err := p.PublishFinal(ctx, "sess-1", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	msgs, err := reader.XRange(ctx, "test.voice.transcript.final", "-", "+").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(msgs))
	}
	if msgs[0].Values["key"] != "sess-1" {
		t.Errorf("unexpected key %v", msgs[0].Values["key"])
	}
	if n, _ := reader.XLen(ctx, "test.voice.transcript.partial").Result(); n != 0 {
		t.Errorf("expected empty partial stream, got %d", n)
	}
}

func TestNewRedis_Unreachable(t *testing.T) {
	if _, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1", StreamPrefix: "x"}, testMetrics()); err == nil {
		t.Error("expected connect error for unreachable server")
	}
}
