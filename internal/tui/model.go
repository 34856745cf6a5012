package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rhema/internal/chat"
	"rhema/internal/models"
)

// RhemaFetcher loads today's devotional. client.Client satisfies it.
type RhemaFetcher interface {
	DailyRhema(ctx context.Context, token string) (*models.DailyRhema, error)
}

type snapshotMsg chat.Snapshot

type sendDoneMsg struct{ err error }

type rhemaMsg struct {
	rhema *models.DailyRhema
	err   error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	conv     *chat.Conversation
	rhema    RhemaFetcher
	token    string
	updates  chan chat.Snapshot
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	snap     chat.Snapshot
	status   string
	daily    string
	ready    bool
}

// New creates the chat screen. rhema may be nil, which disables /rhema.
func New(conv *chat.Conversation, rhema RhemaFetcher, token string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /rhema for today's word"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))

	updates := make(chan chat.Snapshot, 64)
	conv.Subscribe(func(s chat.Snapshot) {
		select {
		case updates <- s:
		default:
			// the final snapshot is re-read when Send returns
		}
	})

	return Model{
		conv:     conv,
		rhema:    rhema,
		token:    token,
		updates:  updates,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		snap:     conv.Snapshot(),
		status:   "Ready.",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForSnapshot())
}

func (m Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg { return snapshotMsg(<-m.updates) }
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.conv.Send(context.Background(), text)}
	}
}

func (m Model) fetchRhema() tea.Cmd {
	return func() tea.Msg {
		r, err := m.rhema.DailyRhema(context.Background(), m.token)
		return rhemaMsg{rhema: r, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + bh // header, daily line, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case snapshotMsg:
		m.snap = chat.Snapshot(msg)
		m.refresh()
		return m, m.waitForSnapshot()

	case sendDoneMsg:
		m.snap = m.conv.Snapshot()
		m.status = statusLine(m.snap, msg.err)
		m.input.Focus()
		m.refresh()
		return m, nil

	case rhemaMsg:
		if msg.err != nil {
			m.status = "Could not load today's rhema: " + msg.err.Error()
			return m, nil
		}
		m.daily = renderRhema(msg.rhema)
		m.status = "Today's rhema loaded."
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.snap.State.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.conv.Cancel()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.snap.State.Busy() {
				m.conv.Cancel()
				m.status = "Stopping..."
			}
			return m, nil
		case tea.KeyEnter:
			if m.snap.State.Busy() {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if text == "/rhema" {
				if m.rhema == nil || m.token == "" {
					m.status = "Sign in with -token to load today's rhema."
					return m, nil
				}
				m.status = "Loading today's rhema..."
				return m, m.fetchRhema()
			}
			m.input.Blur()
			m.snap.State = chat.StateSending
			m.status = "Seeking the word..."
			return m, tea.Batch(m.send(text), m.spinner.Tick)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Rhema")
	daily := dimStyle.Render(m.daily)
	status := statusStyle.Render(m.status)
	if m.snap.State.Busy() {
		status = m.spinner.View() + " " + status + dimStyle.Render("  (esc to stop)")
	}
	return header + "\n" + daily + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.snap.Messages) == 0 {
		return dimStyle.Render("Ask anything about faith, prayer or scripture.")
	}
	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(msg.Content)
		default:
			b.WriteString(assistantStyle.Render("Rhema: "))
			b.WriteString(msg.Content)
			switch msg.Status {
			case models.StatusStreaming:
				b.WriteString(cursorStyle.Render("▍"))
			case models.StatusCancelled:
				b.WriteString(dimStyle.Render(" [stopped]"))
			case models.StatusFailed:
				b.WriteString(errorStyle.Render(" [interrupted]"))
			}
		}
	}
	return b.String()
}

func statusLine(s chat.Snapshot, err error) string {
	switch s.State {
	case chat.StateDone:
		if s.Matches == 0 {
			return "Answered without matching scripture from the library."
		}
		return fmt.Sprintf("Answered from %d library passages.", s.Matches)
	case chat.StateCancelled:
		return "Stopped."
	case chat.StateFailed:
		if err == nil {
			err = s.Err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return "Error: " + err.Error()
		}
		return "The answer was interrupted."
	}
	if errors.Is(err, chat.ErrBusy) {
		return "Wait for the current answer to finish."
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return "Ready."
}

func renderRhema(r *models.DailyRhema) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s  %s (%s)  Focus: %s", r.Date, r.ScriptureText, r.ScriptureRef, r.PrayerFocus)
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	cursorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
