// Package conversation sequences the chat view: which speaker holds the
// floor, which bubble receives text, and when interim transcripts become
// final.
package conversation

import "fmt"

// Speaker identifies who the view currently attributes speech to.
type Speaker int

const (
	// SpeakerNone - nobody has spoken yet.
	SpeakerNone Speaker = iota
	// SpeakerUser - the local user.
	SpeakerUser
	// SpeakerBot - the remote voice agent.
	SpeakerBot
)

// String returns the string representation of the speaker.
func (s Speaker) String() string {
	switch s {
	case SpeakerNone:
		return "none"
	case SpeakerUser:
		return "user"
	case SpeakerBot:
		return "bot"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Phase is the externally visible conversation phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUserSpeaking
	PhaseBotSpeaking
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUserSpeaking:
		return "user-speaking"
	case PhaseBotSpeaking:
		return "bot-speaking"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// phaseOf maps the current speaker to a phase. Stop events leave the
// speaker untouched, so the phase stays with the last speaker until the
// other side starts.
func phaseOf(s Speaker) Phase {
	switch s {
	case SpeakerUser:
		return PhaseUserSpeaking
	case SpeakerBot:
		return PhaseBotSpeaking
	default:
		return PhaseIdle
	}
}

// Reasons recorded when text cannot be placed in a bubble.
const (
	DropNoBubble     = "no_bubble"
	DropWrongSpeaker = "wrong_speaker"
)
