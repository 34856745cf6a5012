package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"rhema/internal/chat"
	"rhema/internal/client"
	"rhema/internal/models"
	"rhema/internal/stream"
)

type fakeQuerier struct{ parts []string }

func (f fakeQuerier) Query(ctx context.Context, token, query string) (*client.Response, error) {
	return &client.Response{Stream: stream.FromSlice(f.parts, nil), Matches: 3}, nil
}

type fakeRhema struct{ err error }

func (f fakeRhema) DailyRhema(ctx context.Context, token string) (*models.DailyRhema, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DailyRhema{Date: "2026-01-05", ScriptureRef: "Psalm 46:10", ScriptureText: "Be still, and know that I am God.", PrayerFocus: "Rest"}, nil
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func TestSendRendersAnswer(t *testing.T) {
	conv := chat.New(fakeQuerier{parts: []string{"Peace ", "be still."}}, "")
	m := sized(New(conv, nil, ""))

	msg := m.send("What calms the storm?")()
	next, _ := m.Update(msg)
	m = next.(Model)

	view := m.View()
	if !strings.Contains(view, "Peace be still.") {
		t.Fatalf("answer missing from view:\n%s", view)
	}
	if !strings.Contains(m.status, "3 library passages") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestEnterIgnoredWhileBusy(t *testing.T) {
	m := sized(New(chat.New(fakeQuerier{}, ""), nil, ""))
	m.snap.State = chat.StateStreaming
	m.input.SetValue("another")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no command while busy")
	}
	if next.(Model).input.Value() != "another" {
		t.Fatalf("input should be kept while busy")
	}
}

func TestRhemaCommand(t *testing.T) {
	m := sized(New(chat.New(fakeQuerier{}, ""), fakeRhema{}, "tok"))
	m.input.SetValue("/rhema")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected fetch command")
	}
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)
	if !strings.Contains(m.View(), "Psalm 46:10") {
		t.Fatalf("rhema missing from view:\n%s", m.View())
	}

	m = sized(New(chat.New(fakeQuerier{}, ""), fakeRhema{err: errors.New("boom")}, "tok"))
	next, _ = m.Update(m.fetchRhema()())
	if got := next.(Model).status; !strings.Contains(got, "boom") {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestRhemaCommandNeedsToken(t *testing.T) {
	m := sized(New(chat.New(fakeQuerier{}, ""), fakeRhema{}, ""))
	m.input.SetValue("/rhema")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no fetch without a token")
	}
	if !strings.Contains(next.(Model).status, "-token") {
		t.Fatalf("unexpected status %q", next.(Model).status)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		snap chat.Snapshot
		err  error
		want string
	}{
		{"done without matches", chat.Snapshot{State: chat.StateDone}, nil, "without matching scripture"},
		{"done with matches", chat.Snapshot{State: chat.StateDone, Matches: 2}, nil, "2 library passages"},
		{"cancelled", chat.Snapshot{State: chat.StateCancelled}, context.Canceled, "Stopped."},
		{"failed", chat.Snapshot{State: chat.StateFailed}, errors.New("server returned 502"), "Error: server returned 502"},
		{"busy", chat.Snapshot{State: chat.StateStreaming}, chat.ErrBusy, "Wait for the current answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLine(tt.snap, tt.err); !strings.Contains(got, tt.want) {
				t.Fatalf("statusLine = %q, want %q", got, tt.want)
			}
		})
	}
}
