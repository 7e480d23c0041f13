package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"auxroom/internal/proto"
)

var (
	appTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	paneStyle        = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 2).MarginTop(1)
	inputBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	trackTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	trackMetaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	progressStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	pausedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Italic(true)
	connectedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Italic(true)
	queueItemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	queueActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle    = lipgloss.NewStyle().Bold(true)
	selfStyle        = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	privateTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Italic(true)
	chatBodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	unreadStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pulseStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	noticeInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	noticeWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	noticeErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	noticeOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	userColorPalette = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const (
	queuePaneLimit = 8
	chatPaneLimit  = 12
)

func (m *Model) View() string {
	switch m.mode {
	case modeBooting:
		return lipgloss.JoinVertical(lipgloss.Left,
			appTitleStyle.Render("Auxroom"),
			connectingStyle.Render("Checking room status…"),
		)
	case modePasswordPrompt:
		hint := "Enter the room password and press Enter. Esc quits."
		if m.status != nil && !m.status.Initialized {
			hint = "First run: choose the room password and press Enter. Esc quits."
		}
		return m.renderPrompt("Room password required", hint)
	case modeNamePrompt:
		return m.renderPrompt("Pick a name", "A display name is needed before you can act in the room. Esc cancels.")
	default:
		return m.renderRoomView()
	}
}

func (m *Model) renderPrompt(title, hint string) string {
	sections := []string{
		appTitleStyle.Render(title),
		hintStyle.Render(hint),
	}
	if m.fatalText != "" {
		sections = append(sections, noticeErrStyle.Render(m.fatalText))
	}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderRoomView() string {
	sections := []string{m.renderHeader(), m.renderNowPlaying(), m.renderQueue()}
	if m.chatOpen {
		sections = append(sections, m.renderChat())
	}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	sections = append(sections, hintStyle.Render("tab chat • pgup older history • /help commands • esc quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	segments := []string{"Auxroom"}

	name := m.session.Ident.Name()
	if name == "" {
		name = "guest"
	}
	segments = append(segments, name)
	segments = append(segments, fmt.Sprintf("%d online", len(m.session.Ident.Roster())))

	if m.session.Room.Connected() {
		segments = append(segments, connectedStyle.Render("connected"))
	} else {
		segments = append(segments, connectingStyle.Render("reconnecting…"))
	}

	if !m.chatOpen {
		if unread := m.session.Chat.Unread(); unread > 0 {
			segments = append(segments, unreadStyle.Render(fmt.Sprintf("✉ %d", unread)))
		}
	}
	if time.Now().Before(m.pulseTill) {
		segments = append(segments, pulseStyle.Render("♥"))
	}
	divider := lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	return headerStyle.Render(strings.Join(segments, divider))
}

func (m *Model) renderNowPlaying() string {
	nowPlaying := m.session.Room.NowPlaying()
	if nowPlaying == nil || nowPlaying.Music == nil {
		return paneStyle.Render(systemTextStyle.Render("Nothing playing. Queue something."))
	}
	track := nowPlaying.Music

	lines := []string{
		trackTitleStyle.Render(track.Name) + trackMetaStyle.Render("  "+strings.Join(track.Artists, ", ")),
	}

	progress := progressStyle.Render(fmt.Sprintf("%s / %s",
		formatDuration(m.session.Engine.Progress()),
		formatMillis(track.Duration)))
	flags := make([]string, 0, 3)
	if m.session.Room.IsPaused() {
		flags = append(flags, pausedStyle.Render("paused"))
	}
	if m.session.Room.IsShuffle() {
		flags = append(flags, trackMetaStyle.Render("shuffle"))
	}
	if m.session.Room.IsLoading() {
		flags = append(flags, connectingStyle.Render("loading…"))
	}
	statusLine := progress
	if len(flags) > 0 {
		statusLine += "  " + strings.Join(flags, " ")
	}
	lines = append(lines, statusLine)

	if by := nowPlaying.EnqueuedBy; by != "" {
		lines = append(lines, trackMetaStyle.Render("queued by "+m.session.Ident.ResolveName(by, by)))
	}
	if lyric := currentLyricLine(m.session.Room.LyricText()); lyric != "" {
		lines = append(lines, systemTextStyle.Render(lyric))
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderQueue() string {
	queue := m.session.Room.Queue()
	if len(queue) == 0 {
		return paneStyle.Render(systemTextStyle.Render("Queue is empty."))
	}
	lines := make([]string, 0, queuePaneLimit+1)
	for idx, item := range queue {
		if idx == queuePaneLimit {
			lines = append(lines, hintStyle.Render(fmt.Sprintf("… and %d more", len(queue)-queuePaneLimit)))
			break
		}
		label := fmt.Sprintf("%d. %s - %s", idx+1, item.Music.Name, strings.Join(item.Music.Artists, ", "))
		if item.EnqueuedBy != nil && item.EnqueuedBy.Name != "" {
			label += "  (" + item.EnqueuedBy.Name + ")"
		}
		style := queueItemStyle
		if idx == 0 {
			style = queueActiveStyle
		}
		lines = append(lines, style.Render(label))
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderChat() string {
	messages := m.session.Chat.Messages()
	lines := make([]string, 0, chatPaneLimit+1)
	if m.session.Chat.HasMore() {
		lines = append(lines, hintStyle.Render("pgup to load older messages"))
	}
	start := 0
	if len(messages) > chatPaneLimit {
		start = len(messages) - chatPaneLimit
	}
	for _, msg := range messages[start:] {
		lines = append(lines, m.renderChatLine(msg))
	}
	if len(lines) == 0 {
		lines = append(lines, systemTextStyle.Render("No messages yet."))
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderChatLine(msg proto.ChatMessage) string {
	stamp := timestampStyle.Render("[" + time.UnixMilli(msg.Timestamp).Format("15:04:05") + "]")
	name := m.session.Ident.ResolveName(msg.UserID, msg.UserName)

	switch msg.Type {
	case proto.MessageSystem:
		return lipgloss.JoinHorizontal(lipgloss.Left, stamp, " ", systemTextStyle.Render(msg.Content))
	case proto.MessagePrivate:
		return lipgloss.JoinHorizontal(lipgloss.Left, stamp, " ", privateTextStyle.Render(name+" (private): "+msg.Content))
	}

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(name))
	if msg.UserID == m.session.Ident.Token() {
		nameStyle = selfStyle
	}
	body := chatBodyStyle.Render(strings.ReplaceAll(msg.Content, "\n", "\n   "))
	return lipgloss.JoinHorizontal(lipgloss.Left, stamp, " ", nameStyle.Render(name), ": ", body)
}

func (m *Model) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		var style lipgloss.Style
		switch n.Severity {
		case "error":
			style = noticeErrStyle
		case "warning":
			style = noticeWarnStyle
		case "success":
			style = noticeOKStyle
		default:
			style = noticeInfoStyle
		}
		lines = append(lines, style.Render(n.Message))
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// currentLyricLine picks the first non-empty, non-timestamped lyric line
// as a teaser; full lyric rendering is not worth a pane of its own.
func currentLyricLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.IndexByte(line, ']'); idx >= 0 && strings.HasPrefix(line, "[") {
			line = strings.TrimSpace(line[idx+1:])
		}
		if line != "" {
			return line
		}
	}
	return ""
}

func formatDuration(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatMillis(millis int64) string {
	return formatDuration(time.Duration(millis) * time.Millisecond)
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
