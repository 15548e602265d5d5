package session

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"voice-session-client/internal/events"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/service/conversation"
	"voice-session-client/internal/service/media"
	"voice-session-client/internal/service/rtvi"
)

// Router maps each event kind to its handler. Handlers run on the client's
// dispatch goroutine, one at a time, in delivery order.
type Router struct {
	view     *conversation.View
	attacher *media.Attacher
	exporter *events.Exporter
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	onState  func(rtvi.TransportState)
}

// NewRouter creates a router. attacher and exporter may be nil.
func NewRouter(view *conversation.View, attacher *media.Attacher, exporter *events.Exporter, m *metrics.Metrics, logger zerolog.Logger) *Router {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Router{
		view:     view,
		attacher: attacher,
		exporter: exporter,
		metrics:  m,
		logger:   logger,
	}
}

// OnState registers fn to observe transport state changes.
func (r *Router) OnState(fn func(rtvi.TransportState)) {
	r.onState = fn
}

// Handlers returns the dispatch table.
func (r *Router) Handlers() map[rtvi.EventKind]rtvi.Handler {
	return map[rtvi.EventKind]rtvi.Handler{
		rtvi.EventTransportStateChanged: r.transportState,
		rtvi.EventConnected:             r.logOnly("user connected"),
		rtvi.EventDisconnected:          r.disconnected,
		rtvi.EventBotConnected:          r.logOnly("bot connected"),
		rtvi.EventBotDisconnected:       r.logOnly("bot disconnected"),
		rtvi.EventBotReady:              r.botReady,
		rtvi.EventTrackStarted:          r.trackStarted,
		rtvi.EventTrackStopped:          r.trackStopped,
		rtvi.EventUserStartedSpeaking:   r.userStartedSpeaking,
		rtvi.EventUserStoppedSpeaking:   r.userStoppedSpeaking,
		rtvi.EventBotStartedSpeaking:    r.botStartedSpeaking,
		rtvi.EventBotStoppedSpeaking:    r.botStoppedSpeaking,
		rtvi.EventUserTranscript:        r.userTranscript,
		rtvi.EventBotTranscript:         r.botTranscript,
		rtvi.EventBotLLMText:            r.botLLMText,
		rtvi.EventError:                 r.errorEvent,
		rtvi.EventMessageError:          r.errorEvent,
		rtvi.EventMetrics:               r.metricsEvent,
	}
}

// Register installs every handler on c. There is no unregistration.
func (r *Router) Register(c *rtvi.Client) {
	for kind, h := range r.Handlers() {
		c.On(kind, h)
	}
}

func (r *Router) logOnly(msg string) rtvi.Handler {
	return func(rtvi.Event) {
		r.logger.Info().Msg(msg)
	}
}

func (r *Router) transportState(ev rtvi.Event) {
	state := ev.(rtvi.TransportStateEvent).State
	r.logger.Info().Str("state", string(state)).Msg("transport state change")
	r.metrics.RecordTransportState(string(state))
	r.view.SetStatus(fmt.Sprintf("Transport state: %s", state))
	if r.onState != nil {
		r.onState(state)
	}
}

func (r *Router) disconnected(ev rtvi.Event) {
	r.logger.Info().Str("reason", ev.(rtvi.DisconnectedEvent).Reason).Msg("user disconnected")
}

func (r *Router) botReady(ev rtvi.Event) {
	ready := ev.(rtvi.BotReadyEvent)
	r.logger.Info().Str("version", ready.Version).Msg("bot ready to chat")
}

func (r *Router) trackStarted(ev rtvi.Event) {
	te := ev.(rtvi.TrackEvent)
	r.logger.Info().
		Str("track", te.Track.ID).
		Str("kind", te.Track.Kind).
		Str("participant", te.Participant.ID).
		Bool("local", te.Participant.Local).
		Msg("track started")
	if te.Participant.Local || r.attacher == nil {
		return
	}
	if err := r.attacher.Attach(te.Track); err != nil {
		r.logger.Error().Err(err).Str("track", te.Track.ID).Msg("attaching track failed")
	}
}

func (r *Router) trackStopped(ev rtvi.Event) {
	te := ev.(rtvi.TrackEvent)
	r.logger.Info().Str("track", te.Track.ID).Msg("track stopped")
}

func (r *Router) userStartedSpeaking(rtvi.Event) {
	r.logger.Debug().Msg("user started speaking")
	r.view.StartUserSpeech()
}

func (r *Router) userStoppedSpeaking(rtvi.Event) {
	r.view.StopUserSpeech()
}

func (r *Router) botStartedSpeaking(rtvi.Event) {
	r.logger.Debug().Msg("bot started speaking")
	r.view.StartBotSpeech()
	if r.exporter != nil {
		r.exporter.BotStarted()
	}
}

func (r *Router) botStoppedSpeaking(rtvi.Event) {
	r.view.StopBotSpeech()
	if r.exporter != nil {
		r.exporter.BotStopped()
	}
}

func (r *Router) userTranscript(ev rtvi.Event) {
	data := ev.(rtvi.UserTranscriptEvent).Transcript
	// only text the view rendered is exported
	if !r.view.UserTranscript(data.Text, data.Final) {
		return
	}
	if r.exporter != nil {
		r.exporter.UserTranscript(data)
	}
}

func (r *Router) botTranscript(ev rtvi.Event) {
	text := ev.(rtvi.BotTextEvent).Data.Text
	if !r.view.BotText(text) {
		return
	}
	if r.exporter != nil {
		r.exporter.BotText(text)
	}
}

// botLLMText is logged only; the spoken transcript drives the view.
func (r *Router) botLLMText(ev rtvi.Event) {
	r.logger.Debug().Str("text", ev.(rtvi.BotTextEvent).Data.Text).Msg("bot llm text")
}

func (r *Router) errorEvent(ev rtvi.Event) {
	e := ev.(rtvi.ErrorEvent)
	r.logger.Error().
		Str("kind", e.Kind().String()).
		Str("id", e.Message.ID).
		Str("message", e.Data.Message).
		Str("error", e.Data.Error).
		Bool("fatal", e.Data.Fatal).
		Msg("rtvi error")
}

func (r *Router) metricsEvent(ev rtvi.Event) {
	data := ev.(rtvi.MetricsEvent).Data
	if len(data.TTFB) == 0 {
		return
	}
	for _, m := range data.TTFB {
		r.logger.Info().Msg(m.Processor + " ttfb: " + strconv.FormatFloat(m.Value, 'f', -1, 64))
		r.metrics.RecordTTFB(m.Processor, m.Value)
	}
}
