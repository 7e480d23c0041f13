// Package ui is the terminal front end: a bubbletea program over the
// session's stores. It renders snapshots and translates key presses into
// store calls; all protocol logic lives below it.
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"auxroom/internal/api"
	"auxroom/internal/app"
	"auxroom/internal/events"
)

// redrawInterval drives the progress line while a track plays.
const redrawInterval = 500 * time.Millisecond

// Model is the top-level TUI model.
type Model struct {
	session   *app.Session
	textInput textinput.Model

	mode      uiMode
	chatOpen  bool
	status    *api.RoomStatus
	notices   []activeNotice
	pulseTill time.Time
	fatalText string
	width     int
	height    int
}

type uiMode int

const (
	modeBooting uiMode = iota
	modePasswordPrompt
	modeNamePrompt
	modeRoom
)

type activeNotice struct {
	events.Notification
	expires time.Time
}

// NewModel builds the TUI model over a constructed session.
func NewModel(session *app.Session) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or /help…"
	input.CharLimit = 0
	input.Prompt = "> "
	input.Focus()

	return &Model{
		session:   session,
		textInput: input,
		mode:      modeBooting,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.authStatusCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(redrawInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
