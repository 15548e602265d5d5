package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"voice-session-client/internal/models"
	"voice-session-client/internal/observability/metrics"
	"voice-session-client/internal/service/conversation"
)

func newView(sink conversation.Sink) *conversation.View {
	return conversation.NewView(sink, metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestDocument_UserUtterance(t *testing.T) {
	doc := NewDocument()
	v := newView(doc)

	v.StartUserSpeech()
	v.UserTranscript("hel", false)
	v.UserTranscript("hello", false)
	v.UserTranscript("hello ", true)

	snap := doc.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(snap.Messages))
	}
	msg := snap.Messages[0]
	if msg.Speaker != "user" {
		t.Errorf("expected user message, got %s", msg.Speaker)
	}
	if len(msg.Fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(msg.Fragments))
	}
	if msg.Fragments[0] != (Fragment{Text: "hello  "}) {
		t.Errorf("unexpected final fragment %+v", msg.Fragments[0])
	}
	if msg.Fragments[1] != (Fragment{}) {
		t.Errorf("expected empty trailing fragment, got %+v", msg.Fragments[1])
	}
	if snap.Bottom != 0 {
		t.Errorf("expected bottom at message 0, got %d", snap.Bottom)
	}
}

func TestDocument_BotTurnAndOrphan(t *testing.T) {
	doc := NewDocument()
	v := newView(doc)

	v.BotText("orphan")
	if got := len(doc.Snapshot().Messages); got != 0 {
		t.Fatalf("expected orphan chunk to create nothing, got %d messages", got)
	}

	v.StartBotSpeech()
	v.BotText("Hi")
	v.BotText(" there")

	snap := doc.Snapshot()
	if got := snap.Messages[0].Content(); got != "Hi there" {
		t.Errorf("expected %q, got %q", "Hi there", got)
	}
}

func TestDocument_SnapshotIsCopy(t *testing.T) {
	doc := NewDocument()
	b := doc.OpenBubble(conversation.SpeakerUser)
	b.AddFragment()
	b.SetLastFragment("one ", false)

	snap := doc.Snapshot()
	b.SetLastFragment("two ", false)
	snap.Messages[0].Fragments[0].Text = "mutated"

	if got := doc.Snapshot().Messages[0].Fragments[0].Text; got != "two " {
		t.Errorf("expected document to be unaffected by snapshot edits, got %q", got)
	}
}

func TestDocument_StatusAndScrollCallback(t *testing.T) {
	doc := NewDocument()
	calls := 0
	doc.OnScroll(func() { calls++ })

	v := newView(doc)
	v.SetStatus("Transport state: connected")
	v.StartBotSpeech()

	if doc.Status() != "Transport state: connected" {
		t.Errorf("unexpected status %q", doc.Status())
	}
	// joining + connected + one scroll
	if calls != 3 {
		t.Errorf("expected 3 callbacks, got %d", calls)
	}
}

func TestPlain_Output(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)
	v := newView(p)

	v.SetStatus("Transport state: ready")
	v.StartUserSpeech()
	v.UserTranscript("hel", false)
	v.UserTranscript("hello", true)
	v.StartBotSpeech()
	v.BotText("Hi")
	v.BotText(" there")
	p.Flush()

	want := "-- Joining...\n-- Transport state: ready\nuser> hello\nbot> Hi there\n"
	if buf.String() != want {
		t.Errorf("unexpected output:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewDocument(), NewDocument()
	v := newView(Multi{a, b})

	v.StartBotSpeech()
	v.BotText("same")

	for i, doc := range []*Document{a, b} {
		snap := doc.Snapshot()
		if len(snap.Messages) != 1 || snap.Messages[0].Text != "same" {
			t.Errorf("sink %d: unexpected snapshot %+v", i, snap)
		}
		if snap.Status != conversation.StatusJoining {
			t.Errorf("sink %d: expected joining status, got %q", i, snap.Status)
		}
	}
}

func TestModel_RefreshScrollsToBottom(t *testing.T) {
	doc := NewDocument()
	var m tea.Model = newModel(doc)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 6})

	v := newView(doc)
	v.StartBotSpeech()
	for i := 0; i < 20; i++ {
		v.BotText("line of streamed bot text ")
	}
	v.StartUserSpeech()
	v.UserTranscript("latest words", false)

	m, _ = m.Update(refreshMsg{})
	mm := m.(model)
	if !mm.vp.AtBottom() {
		t.Error("expected viewport at bottom after refresh")
	}
	if !strings.Contains(mm.View(), "latest words") {
		t.Errorf("expected latest text in view, got:\n%s", mm.View())
	}
	if !strings.Contains(mm.View(), conversation.StatusJoining) {
		t.Error("expected status line in view")
	}
}

func TestModel_Quit(t *testing.T) {
	var m tea.Model = newModel(NewDocument())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestFormatMessages(t *testing.T) {
	out := formatMessages([]Message{
		{Speaker: "user", Fragments: []Fragment{{Text: "hello "}, {Text: "wor", Interim: true}}},
		{Speaker: "bot", Text: "Hi there"},
	}, 80)

	for _, want := range []string{"you", "hello", "wor", "bot", "Hi there"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6e6, time.Local).UnixMilli()
	line := FormatRecord(models.TranscriptRecord{
		UtteranceID: "s-bot-1",
		Speaker:     models.SpeakerBot,
		Text:        "Hi there",
		Final:       true,
		Timestamp:   ts,
	})
	if line != "03:04:05.006 final   bot  s-bot-1: Hi there" {
		t.Errorf("unexpected line %q", line)
	}

	line = FormatRecord(models.TranscriptRecord{UtteranceID: "s-user-1", Speaker: models.SpeakerUser, Text: "he", Timestamp: ts})
	if line != "03:04:05.006 partial user s-user-1: he" {
		t.Errorf("unexpected line %q", line)
	}
}
