package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"auxroom/internal/app"
	"auxroom/internal/events"
)

// Run wires the session's change notifications into a bubbletea program
// and blocks until the UI exits. program.Send is safe from any goroutine,
// which is exactly what the stores' change callbacks need.
func Run(session *app.Session) error {
	program := tea.NewProgram(NewModel(session), tea.WithAltScreen())

	changed := func() { program.Send(ChangedMsg{}) }
	session.Ident.OnChange(changed)
	session.Room.OnChange(changed)
	session.Chat.OnChange(changed)

	session.SetNoticeSink(func(n events.Notification) {
		program.Send(NoticeMsg(n))
	})
	session.SetPulseSink(func() {
		program.Send(PulseMsg{})
	})
	session.SetFatalSink(func(reason string) {
		program.Send(FatalMsg{Reason: reason})
	})

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
