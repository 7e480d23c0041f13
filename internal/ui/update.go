package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"auxroom/internal/api"
	"auxroom/internal/events"
)

// Messages delivered from the session via program.Send or from commands.
type (
	// ChangedMsg redraws after any store mutation.
	ChangedMsg struct{}
	// NoticeMsg carries one transient notification.
	NoticeMsg events.Notification
	// PulseMsg flashes the like indicator.
	PulseMsg struct{}
	// FatalMsg reports a session-fatal condition (bad or changed password).
	FatalMsg struct{ Reason string }

	tickMsg       time.Time
	authStatusMsg struct {
		status *api.RoomStatus
		err    error
	}
	verifyResultMsg struct {
		password string
		ok       bool
		err      error
	}
)

func (m *Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := message.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil

	case tea.KeyMsg:
		if typed.Type == tea.KeyCtrlC {
			m.session.Close()
			return m, tea.Quit
		}
		return m.handleKey(typed)

	case tickMsg:
		m.expireNotices(time.Time(typed))
		return m, tickCmd()

	case ChangedMsg:
		// A guarded command from a guest requests the name prompt.
		if m.mode == modeRoom && m.session.Ident.NamePromptWanted() {
			m.enterNamePrompt()
		}
		return m, nil

	case NoticeMsg:
		m.notices = append(m.notices, activeNotice{
			Notification: events.Notification(typed),
			expires:      time.Now().Add(typed.Duration),
		})
		return m, nil

	case PulseMsg:
		m.pulseTill = time.Now().Add(redrawInterval * 2)
		return m, nil

	case FatalMsg:
		m.fatalText = typed.Reason
		m.enterPasswordPrompt()
		return m, nil

	case authStatusMsg:
		if typed.err != nil {
			// The side channel being down does not block the room; the
			// transport will report its own failures.
			m.mode = modeRoom
			m.session.Start()
			m.session.Connect()
			return m, nil
		}
		m.status = typed.status
		needsPassword := typed.status.HasPassword && m.session.Ident.RoomPassword() == ""
		if !typed.status.Initialized || needsPassword {
			m.enterPasswordPrompt()
			return m, nil
		}
		m.mode = modeRoom
		m.session.Start()
		m.session.Connect()
		return m, nil

	case verifyResultMsg:
		if typed.err != nil {
			m.pushNotice("AUTH", "Could not verify password: "+typed.err.Error(), "error")
			return m, nil
		}
		if !typed.ok {
			m.pushNotice("AUTH", "Wrong room password", "error")
			return m, nil
		}
		m.session.Ident.SetRoomPassword(context.Background(), typed.password)
		m.fatalText = ""
		m.mode = modeRoom
		m.resetInput("Type a message, or /help…", "> ")
		m.session.Start()
		m.session.Connect()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(message)
	return m, cmd
}

func (m *Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modePasswordPrompt:
		switch key.Type {
		case tea.KeyEnter:
			password := strings.TrimSpace(m.textInput.Value())
			if password == "" {
				return m, nil
			}
			m.textInput.SetValue("")
			if m.status != nil && !m.status.Initialized {
				return m, m.setupCmd(password)
			}
			return m, m.verifyCmd(password)
		case tea.KeyEsc:
			m.session.Close()
			return m, tea.Quit
		}

	case modeNamePrompt:
		switch key.Type {
		case tea.KeyEnter:
			name := strings.TrimSpace(m.textInput.Value())
			if name == "" {
				return m, nil
			}
			m.session.Room.Rename(name)
			m.session.Ident.ClearNamePrompt()
			m.mode = modeRoom
			m.resetInput("Type a message, or /help…", "> ")
			return m, nil
		case tea.KeyEsc:
			m.session.Ident.ClearNamePrompt()
			m.mode = modeRoom
			m.resetInput("Type a message, or /help…", "> ")
			return m, nil
		}

	case modeRoom:
		switch key.Type {
		case tea.KeyEsc:
			m.session.Close()
			return m, tea.Quit
		case tea.KeyTab:
			m.chatOpen = !m.chatOpen
			m.session.Chat.SetOpen(m.chatOpen)
			return m, nil
		case tea.KeyPgUp:
			m.session.Chat.LoadMoreHistory()
			return m, nil
		case tea.KeyEnter:
			return m.handleRoomInput(strings.TrimSpace(m.textInput.Value()))
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(key)
	return m, cmd
}

func (m *Model) handleRoomInput(line string) (tea.Model, tea.Cmd) {
	if line == "" {
		return m, nil
	}
	m.textInput.SetValue("")

	if !strings.HasPrefix(line, "/") {
		m.session.Room.SendChatMessage(line)
		return m, nil
	}

	command, arg, _ := strings.Cut(strings.ToLower(line), " ")
	switch command {
	case "/quit", "/exit":
		m.session.Close()
		return m, tea.Quit
	case "/skip", "/next":
		m.session.Room.Skip()
	case "/pause", "/resume":
		m.session.Room.TogglePause()
	case "/shuffle":
		m.session.Room.ToggleShuffle()
	case "/like":
		m.session.Room.Like()
	case "/name":
		if arg != "" {
			// Preserve the original casing, not the lowered copy.
			m.session.Room.Rename(strings.TrimSpace(line[len(command):]))
		} else {
			m.enterNamePrompt()
		}
	case "/resync":
		m.session.Room.Resync()
	case "/help":
		m.pushNotice("HELP", "/skip /pause /shuffle /like /name /resync /quit — tab toggles chat, pgup loads older history", "info")
	default:
		m.pushNotice("HELP", "Unknown command "+command, "warning")
	}
	return m, nil
}

func (m *Model) enterNamePrompt() {
	m.mode = modeNamePrompt
	m.resetInput("Pick a display name…", "name> ")
}

func (m *Model) enterPasswordPrompt() {
	m.mode = modePasswordPrompt
	m.resetInput("Room password…", "password> ")
	m.textInput.EchoMode = textinput.EchoPassword
}

func (m *Model) resetInput(placeholder, prompt string) {
	m.textInput.EchoMode = textinput.EchoNormal
	m.textInput.SetValue("")
	m.textInput.Placeholder = placeholder
	m.textInput.Prompt = prompt
	m.textInput.Focus()
}

func (m *Model) pushNotice(title, text, severity string) {
	m.notices = append(m.notices, activeNotice{
		Notification: events.Notification{Title: title, Message: text, Severity: severity, Duration: events.DefaultDuration},
		expires:      time.Now().Add(events.DefaultDuration),
	})
}

func (m *Model) expireNotices(now time.Time) {
	kept := m.notices[:0]
	for _, n := range m.notices {
		if now.Before(n.expires) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

func (m *Model) authStatusCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := m.session.API.AuthStatus(ctx)
		return authStatusMsg{status: status, err: err}
	}
}

func (m *Model) verifyCmd(password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ok, err := m.session.API.AuthVerify(ctx, password)
		return verifyResultMsg{password: password, ok: ok, err: err}
	}
}

// setupCmd initializes an uninitialized room with its first password.
func (m *Model) setupCmd(password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.session.API.AuthSetup(ctx, password); err != nil {
			return verifyResultMsg{password: password, err: err}
		}
		return verifyResultMsg{password: password, ok: true}
	}
}
