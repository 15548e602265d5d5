package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"voice-session-client/internal/service/conversation"
)

// Plain writes the conversation as lines of text. Interim transcripts are
// not printed; bot text is streamed onto a single line per bubble.
type Plain struct {
	mu       sync.Mutex
	w        io.Writer
	lineOpen bool
}

// NewPlain creates a line writer sink.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

func (p *Plain) OpenBubble(speaker conversation.Speaker) conversation.Bubble {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	return &plainBubble{p: p, speaker: speaker}
}

func (p *Plain) SetStatus(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	fmt.Fprintf(p.w, "-- %s\n", text)
}

// ScrollToBottom is a no-op: a stream is always at its end.
func (p *Plain) ScrollToBottom() {}

// Flush terminates a partially written bot line.
func (p *Plain) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *Plain) endLine() {
	if p.lineOpen {
		fmt.Fprintln(p.w)
		p.lineOpen = false
	}
}

type plainBubble struct {
	p       *Plain
	speaker conversation.Speaker
}

func (b *plainBubble) AddFragment() {}

func (b *plainBubble) SetLastFragment(text string, interim bool) {
	if interim {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	b.p.endLine()
	fmt.Fprintf(b.p.w, "%s> %s\n", b.speaker, text)
}

func (b *plainBubble) AppendText(text string) {
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	if !b.p.lineOpen {
		fmt.Fprintf(b.p.w, "%s> ", b.speaker)
		b.p.lineOpen = true
	}
	fmt.Fprint(b.p.w, text)
}
