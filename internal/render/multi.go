package render

import "voice-session-client/internal/service/conversation"

// Multi fans every call out to several sinks in order.
type Multi []conversation.Sink

func (m Multi) OpenBubble(speaker conversation.Speaker) conversation.Bubble {
	bubbles := make(multiBubble, 0, len(m))
	for _, s := range m {
		bubbles = append(bubbles, s.OpenBubble(speaker))
	}
	return bubbles
}

func (m Multi) SetStatus(text string) {
	for _, s := range m {
		s.SetStatus(text)
	}
}

func (m Multi) ScrollToBottom() {
	for _, s := range m {
		s.ScrollToBottom()
	}
}

type multiBubble []conversation.Bubble

func (m multiBubble) AddFragment() {
	for _, b := range m {
		b.AddFragment()
	}
}

func (m multiBubble) SetLastFragment(text string, interim bool) {
	for _, b := range m {
		b.SetLastFragment(text, interim)
	}
}

func (m multiBubble) AppendText(text string) {
	for _, b := range m {
		b.AppendText(text)
	}
}
