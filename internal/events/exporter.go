package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/schema"
	"voice-session-client/internal/utterance"
)

const (
	exportQueueSize = 256
	publishTimeout  = 5 * time.Second
)

type job struct {
	record models.TranscriptRecord
}

// Exporter turns conversation events into transcript records and publishes
// them, in arrival order, from a background goroutine.
//
//	user interim     → user partial
//	user final       → user final (closes the utterance)
//	bot text chunk   → bot partial with the text so far
//	bot stopped      → bot final with the whole turn
type Exporter struct {
	pub       Publisher
	validator *schema.Validator
	ids       *utterance.Generator
	sessionID string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	user    *utterance.Lifecycle
	bot     *utterance.Lifecycle
	botText strings.Builder
	closed  bool

	queue chan job
	done  chan struct{}
}

// NewExporter starts an exporter for one session.
func NewExporter(pub Publisher, sessionID string, m *metrics.Metrics) *Exporter {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	e := &Exporter{
		pub:       pub,
		validator: schema.New(),
		ids:       utterance.NewGenerator(),
		sessionID: sessionID,
		metrics:   m,
		logger:    logging.WithSession(sessionID).With().Str("component", "exporter").Logger(),
		now:       time.Now,
		queue:     make(chan job, exportQueueSize),
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

// UserTranscript exports an interim or final user transcript.
func (e *Exporter) UserTranscript(data models.TranscriptData) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.user == nil || !e.user.IsOpen() {
		e.user = utterance.NewLifecycle(e.ids.Next(e.sessionID, models.SpeakerUser), models.SpeakerUser)
	}

	rec := models.TranscriptRecord{
		SessionID:   e.sessionID,
		UtteranceID: e.user.ID(),
		Speaker:     models.SpeakerUser,
		Text:        data.Text,
		Final:       data.Final,
		UserID:      data.UserID,
		Timestamp:   e.now().UnixMilli(),
	}
	if !data.Final {
		if err := e.user.EmitPartial(); err != nil {
			e.logger.Debug().Err(err).Str("utteranceId", e.user.ID()).Msg("partial not exported")
			return
		}
		rec.EventType = models.EventUserPartial
		e.enqueue(rec)
		return
	}

	if err := e.user.EmitFinal(); err != nil {
		e.logger.Debug().Err(err).Str("utteranceId", e.user.ID()).Msg("final not exported")
		return
	}
	rec.EventType = models.EventUserFinal
	e.enqueue(rec)
	e.user.Close()
}

// BotStarted opens a new bot utterance. A previous turn that never saw
// BotStopped is finalized first.
func (e *Exporter) BotStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finishBot()
	e.bot = utterance.NewLifecycle(e.ids.Next(e.sessionID, models.SpeakerBot), models.SpeakerBot)
	e.botText.Reset()
}

// BotText exports the bot turn so far. Chunks outside a turn are ignored.
func (e *Exporter) BotText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bot == nil || !e.bot.IsOpen() {
		return
	}
	e.botText.WriteString(text)
	if err := e.bot.EmitPartial(); err != nil {
		return
	}
	e.enqueue(models.TranscriptRecord{
		EventType:   models.EventBotPartial,
		SessionID:   e.sessionID,
		UtteranceID: e.bot.ID(),
		Speaker:     models.SpeakerBot,
		Text:        e.botText.String(),
		Timestamp:   e.now().UnixMilli(),
	})
}

// BotStopped exports the assembled bot turn as a final record.
func (e *Exporter) BotStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishBot()
}

func (e *Exporter) finishBot() {
	if e.bot == nil || !e.bot.IsOpen() {
		return
	}
	text := e.botText.String()
	if text == "" {
		e.bot.Close()
		return
	}
	if err := e.bot.EmitFinal(); err != nil {
		return
	}
	e.enqueue(models.TranscriptRecord{
		EventType:   models.EventBotFinal,
		SessionID:   e.sessionID,
		UtteranceID: e.bot.ID(),
		Speaker:     models.SpeakerBot,
		Text:        text,
		Final:       true,
		Timestamp:   e.now().UnixMilli(),
	})
	e.bot.Close()
}

func (e *Exporter) enqueue(rec models.TranscriptRecord) {
	if e.closed {
		return
	}
	if err := e.validator.Validate(rec); err != nil {
		reason := "invalid"
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			reason = verr.Field
		}
		e.metrics.RecordExportRejected(reason)
		e.logger.Warn().Err(err).Str("utteranceId", rec.UtteranceID).Msg("record rejected")
		return
	}

	select {
	case e.queue <- job{record: rec}:
	default:
		e.metrics.RecordExportRejected("queue_full")
		e.logger.Warn().Str("utteranceId", rec.UtteranceID).Msg("export queue full, record dropped")
	}
}

func (e *Exporter) run() {
	defer close(e.done)
	for j := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		var err error
		if j.record.Final {
			err = e.pub.PublishFinal(ctx, e.sessionID, j.record)
		} else {
			err = e.pub.PublishPartial(ctx, e.sessionID, j.record)
		}
		cancel()
		if err != nil {
			e.logger.Error().Err(err).Str("eventType", j.record.EventType).Msg("export failed")
		}
	}
}

// Close drops any open turn, drains queued records and closes the
// publisher.
func (e *Exporter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.user != nil && e.user.Drop() {
		e.logger.Debug().Str("utteranceId", e.user.ID()).Msg("user utterance dropped at close")
	}
	if e.bot != nil && e.bot.Drop() {
		e.logger.Debug().Str("utteranceId", e.bot.ID()).Msg("bot utterance dropped at close")
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	<-e.done
	return e.pub.Close()
}
