// Package render provides conversation sinks: an in-memory document, a
// terminal UI, and a plain line writer.
package render

import (
	"strings"
	"sync"

	"voice-session-client/internal/service/conversation"
)

// Fragment is one utterance inside a user bubble.
type Fragment struct {
	Text    string `json:"text"`
	Interim bool   `json:"interim"`
}

// Message is one speech bubble.
type Message struct {
	Speaker   string     `json:"speaker"`
	Fragments []Fragment `json:"fragments,omitempty"`
	Text      string     `json:"text,omitempty"`
}

// Content returns the bubble text as displayed: the concatenated fragments
// followed by any appended text.
func (m Message) Content() string {
	var b strings.Builder
	for _, f := range m.Fragments {
		b.WriteString(f.Text)
	}
	b.WriteString(m.Text)
	return b.String()
}

// Snapshot is a point-in-time copy of a Document.
type Snapshot struct {
	Status   string    `json:"status"`
	Messages []Message `json:"messages"`
	// Bottom is the index of the message scrolled into view, -1 when empty.
	Bottom int `json:"bottom"`
}

// Document is the in-memory chat transcript. It is safe for concurrent use.
type Document struct {
	mu       sync.RWMutex
	status   string
	messages []*Message
	bottom   int
	onChange func()
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{bottom: -1}
}

// OnScroll registers fn to run after every ScrollToBottom or status change.
func (d *Document) OnScroll(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

func (d *Document) OpenBubble(speaker conversation.Speaker) conversation.Bubble {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg := &Message{Speaker: speaker.String()}
	d.messages = append(d.messages, msg)
	return &docBubble{doc: d, msg: msg}
}

func (d *Document) SetStatus(text string) {
	d.mu.Lock()
	d.status = text
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *Document) ScrollToBottom() {
	d.mu.Lock()
	d.bottom = len(d.messages) - 1
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Status returns the current status line.
func (d *Document) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Snapshot returns a deep copy of the document.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := Snapshot{
		Status:   d.status,
		Messages: make([]Message, len(d.messages)),
		Bottom:   d.bottom,
	}
	for i, m := range d.messages {
		cp := *m
		cp.Fragments = append([]Fragment(nil), m.Fragments...)
		out.Messages[i] = cp
	}
	return out
}

type docBubble struct {
	doc *Document
	msg *Message
}

func (b *docBubble) AddFragment() {
	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()
	b.msg.Fragments = append(b.msg.Fragments, Fragment{})
}

func (b *docBubble) SetLastFragment(text string, interim bool) {
	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()
	if len(b.msg.Fragments) == 0 {
		b.msg.Fragments = append(b.msg.Fragments, Fragment{})
	}
	b.msg.Fragments[len(b.msg.Fragments)-1] = Fragment{Text: text, Interim: interim}
}

func (b *docBubble) AppendText(text string) {
	b.doc.mu.Lock()
	defer b.doc.mu.Unlock()
	b.msg.Text += text
}
