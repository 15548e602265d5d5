package conversation

import (
	"sync"

	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/observability/metrics"
)

// StatusJoining is shown until the transport reports its first state.
const StatusJoining = "Joining..."

// View holds the conversation state for one session.
//
// Transitions:
//
//	StartUserSpeech  → speaker=user, new user bubble (no-op if already open)
//	UserTranscript   → interim: overwrite last fragment while user speaks
//	                   final:   overwrite last fragment, add a new one
//	StartBotSpeech   → speaker=bot, new bot bubble (always)
//	BotText          → append to the open bot bubble
//
// Events that cannot be placed are dropped and counted; they never fail.
// Methods are safe for concurrent use, though the session calls them from
// a single dispatch goroutine.
type View struct {
	mu         sync.Mutex
	sink       Sink
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	speaker    Speaker
	userBubble Bubble
	botBubble  Bubble
}

// NewView creates a view rendering into sink and sets the joining status.
// A nil m records to metrics.DefaultMetrics.
func NewView(sink Sink, m *metrics.Metrics) *View {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	v := &View{
		sink:    sink,
		metrics: m,
		logger:  logging.WithComponent("conversation"),
		speaker: SpeakerNone,
	}
	sink.SetStatus(StatusJoining)
	return v
}

// Speaker returns the current speaker.
func (v *View) Speaker() Speaker {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speaker
}

// Phase returns the current conversation phase.
func (v *View) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return phaseOf(v.speaker)
}

// SetStatus updates the status line.
func (v *View) SetStatus(text string) {
	v.sink.SetStatus(text)
}

// StartUserSpeech opens a user bubble unless one is already open for the
// current user turn.
func (v *View) StartUserSpeech() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.speaker == SpeakerUser && v.userBubble != nil {
		v.logger.Debug().Msg("user already speaking")
		return
	}
	v.speaker = SpeakerUser
	v.userBubble = v.sink.OpenBubble(SpeakerUser)
	v.userBubble.AddFragment()
	v.metrics.RecordBubbleOpened(SpeakerUser.String())
	v.sink.ScrollToBottom()
}

// StopUserSpeech leaves the view unchanged; the final transcript closes
// the fragment.
func (v *View) StopUserSpeech() {
	v.logger.Debug().Msg("user stopped speaking")
}

// UserTranscript places a transcript in the open user bubble. Interim
// results are only shown while the user holds the floor; final results
// are always committed. It reports whether the text was rendered.
func (v *View) UserTranscript(text string, final bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.userBubble == nil {
		v.drop(SpeakerUser, DropNoBubble, text)
		return false
	}
	if !final {
		if v.speaker != SpeakerUser {
			v.drop(SpeakerUser, DropWrongSpeaker, text)
			return false
		}
		v.userBubble.SetLastFragment(text+" ", true)
		v.metrics.RecordInterimTranscript()
		v.sink.ScrollToBottom()
		return true
	}

	v.userBubble.SetLastFragment(text+" ", false)
	v.userBubble.AddFragment()
	v.metrics.RecordFinalTranscript()
	v.sink.ScrollToBottom()
	return true
}

// StartBotSpeech always opens a new bot bubble.
func (v *View) StartBotSpeech() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.speaker = SpeakerBot
	v.botBubble = v.sink.OpenBubble(SpeakerBot)
	v.metrics.RecordBubbleOpened(SpeakerBot.String())
	v.sink.ScrollToBottom()
}

// StopBotSpeech leaves the view unchanged.
func (v *View) StopBotSpeech() {
	v.logger.Debug().Msg("bot stopped speaking")
}

// BotText appends a streamed chunk to the open bot bubble and reports
// whether it was rendered.
func (v *View) BotText(text string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.botBubble == nil {
		v.drop(SpeakerBot, DropNoBubble, text)
		return false
	}
	v.botBubble.AppendText(text)
	v.metrics.RecordBotText()
	v.sink.ScrollToBottom()
	return true
}

func (v *View) drop(speaker Speaker, reason, text string) {
	v.metrics.RecordTextDropped(speaker.String(), reason)
	v.logger.Debug().
		Str("speaker", speaker.String()).
		Str("reason", reason).
		Int("length", len(text)).
		Msg("text dropped")
}
