package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"voice-session-client/internal/models"
)

func TestDecodeRecord(t *testing.T) {
	rec, ok := decodeRecord(zerolog.Nop(), []byte(`{"eventType":"session.transcript.user.final","sessionId":"s","text":"hi","final":true}`))
	if !ok {
		t.Fatal("expected record to decode")
	}
	if rec.EventType != models.EventUserFinal || rec.Text != "hi" || !rec.Final {
		t.Errorf("unexpected record %+v", rec)
	}
	if _, ok := decodeRecord(zerolog.Nop(), []byte("not json")); ok {
		t.Error("expected garbage to be skipped")
	}
}

func TestNewKafkaSubscriber_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaSubscriber(&KafkaConfig{TopicFinal: "f"}, time.Hour); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaSubscriber(nil, time.Hour); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestKafkaSubscriber_UnreachableBroker(t *testing.T) {
	sub, err := NewKafkaSubscriber(&KafkaConfig{
		Brokers:      []string{"127.0.0.1:1"},
		TopicPartial: "p",
		TopicFinal:   "f",
	}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sub.Subscribe(ctx, func(models.TranscriptRecord) {}); err == nil {
		t.Error("expected partition lookup to fail")
	}
	if err := sub.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

// newTestKafkaTopic needs a single Kafka broker on localhost:9092 and skips
// otherwise.
func newTestKafkaTopic(t *testing.T, partitions int) string {
	t.Helper()
	conn, err := kafka.Dial("tcp", "localhost:9092")
	if err != nil {
		t.Skipf("kafka not available: %v", err)
	}
	defer conn.Close()

	topic := fmt.Sprintf("test.voice.tail.%d", time.Now().UnixNano())
	if err := conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}); err != nil {
		t.Skipf("cannot create topic: %v", err)
	}
	t.Cleanup(func() {
		if c, err := kafka.Dial("tcp", "localhost:9092"); err == nil {
			c.DeleteTopics(topic)
			c.Close()
		}
	})
	return topic
}

func TestKafkaSubscriber_ReadsEveryPartition(t *testing.T) {
	const partitions = 3
	topic := newTestKafkaTopic(t, partitions)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	for p := 0; p < partitions; p++ {
		rec := models.TranscriptRecord{
			EventType:   models.EventUserFinal,
			SessionID:   fmt.Sprintf("sess-%d", p),
			UtteranceID: fmt.Sprintf("sess-%d-user-1", p),
			Speaker:     models.SpeakerUser,
			Text:        fmt.Sprintf("partition %d", p),
			Final:       true,
			Timestamp:   time.Now().UnixMilli(),
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// a fresh topic may not have elected its leaders yet
		var leader *kafka.Conn
		for attempt := 0; attempt < 20; attempt++ {
			if leader, err = kafka.DialLeader(ctx, "tcp", "localhost:9092", topic, p); err == nil {
				break
			}
			time.Sleep(250 * time.Millisecond)
		}
		if err != nil {
			t.Fatalf("dialing leader of partition %d: %v", p, err)
		}
		if _, err := leader.WriteMessages(kafka.Message{Key: []byte(rec.SessionID), Value: payload}); err != nil {
			t.Fatalf("writing partition %d: %v", p, err)
		}
		leader.Close()
	}

	sub, err := NewKafkaSubscriber(&KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		TopicPartial: topic,
		TopicFinal:   topic,
	}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Close()

	var mu sync.Mutex
	seen := map[string]bool{}
	go func() {
		_ = sub.Subscribe(ctx, func(rec models.TranscriptRecord) {
			mu.Lock()
			defer mu.Unlock()
			seen[rec.Text] = true
			if len(seen) == partitions {
				cancel()
			}
		})
	}()

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < partitions; p++ {
		if !seen[fmt.Sprintf("partition %d", p)] {
			t.Errorf("record on partition %d was not read, saw %v", p, seen)
		}
	}
}

func TestRedisSubscriber_ReceivesPublishedRecords(t *testing.T) {
	pub, reader := newTestRedis(t, "test.voice.tail")
	sub := NewRedisSubscriberWithClient(reader, "test.voice.tail")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan models.TranscriptRecord, 1)
	go func() {
		_ = sub.Subscribe(ctx, func(rec models.TranscriptRecord) {
			got <- rec
			cancel()
		})
	}()

	// let the subscriber issue its first XREAD
	time.Sleep(100 * time.Millisecond)
	rec := models.TranscriptRecord{
		EventType:   models.EventBotFinal,
		SessionID:   "sess-1",
		UtteranceID: "sess-1-bot-1",
		Speaker:     models.SpeakerBot,
		Text:        "Hi there",
		Final:       true,
		Timestamp:   1,
	}
	if err := pub.PublishFinal(context.Background(), "sess-1", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case r := <-got:
		if r.Text != "Hi there" || r.Speaker != models.SpeakerBot {
			t.Errorf("unexpected record %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("record not received")
	}
}
