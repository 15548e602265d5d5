package render

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voice-session-client/internal/service/conversation"
)

var (
	statusStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	interimStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// chrome is the number of lines around the viewport (status + help).
const chrome = 2

type refreshMsg struct{}

// TUI renders a Document in a full-screen bubbletea program. Refreshes
// are coalesced; the viewport is moved to the bottom after every refresh.
type TUI struct {
	doc     *Document
	program *tea.Program
	dirty   chan struct{}
}

// NewTUI creates a terminal UI backed by doc.
func NewTUI(doc *Document, opts ...tea.ProgramOption) *TUI {
	return &TUI{
		doc:     doc,
		program: tea.NewProgram(newModel(doc), opts...),
		dirty:   make(chan struct{}, 1),
	}
}

// Document returns the backing document.
func (t *TUI) Document() *Document { return t.doc }

func (t *TUI) OpenBubble(speaker conversation.Speaker) conversation.Bubble {
	return t.doc.OpenBubble(speaker)
}

func (t *TUI) SetStatus(text string) {
	t.doc.SetStatus(text)
	t.notify()
}

func (t *TUI) ScrollToBottom() {
	t.doc.ScrollToBottom()
	t.notify()
}

func (t *TUI) notify() {
	select {
	case t.dirty <- struct{}{}:
	default:
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (t *TUI) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				t.program.Quit()
				return
			case <-t.dirty:
				t.program.Send(refreshMsg{})
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

type model struct {
	doc    *Document
	vp     viewport.Model
	ready  bool
	status string
}

func newModel(doc *Document) model {
	return model{doc: doc, status: doc.Status()}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		height := msg.Height - chrome
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = height
		}
		m.refresh()
		return m, nil
	case refreshMsg:
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	snap := m.doc.Snapshot()
	m.status = snap.Status
	if !m.ready {
		return
	}
	m.vp.SetContent(formatMessages(snap.Messages, m.vp.Width))
	m.vp.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return statusStyle.Render(m.status)
	}
	return statusStyle.Render(m.status) + "\n" + m.vp.View() + "\n" + helpStyle.Render("↑/↓ scroll • q quit")
}

func formatMessages(messages []Message, width int) string {
	body := lipgloss.NewStyle()
	if width > 4 {
		body = body.Width(width - 2).PaddingLeft(2)
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.Speaker == conversation.SpeakerBot.String() {
			b.WriteString(botStyle.Render("bot"))
		} else {
			b.WriteString(userStyle.Render("you"))
		}
		b.WriteString("\n")

		var text strings.Builder
		for _, f := range msg.Fragments {
			if f.Interim {
				text.WriteString(interimStyle.Render(f.Text))
			} else {
				text.WriteString(f.Text)
			}
		}
		text.WriteString(msg.Text)
		b.WriteString(body.Render(text.String()))
		b.WriteString("\n")
	}
	return b.String()
}
