// Package events translates opaque server event records into user-facing
// transient notifications, applying suppression and severity rules.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/proto"
)

// DefaultDuration is how long a transient notice stays visible.
const DefaultDuration = 3 * time.Second

// reloadDelay gives the user time to read the password-change alert
// before the session is invalidated.
const reloadDelay = 1500 * time.Millisecond

// Notification is one transient notice for the UI.
type Notification struct {
	Title    string
	Message  string
	Severity string // info, success, warning, error
	Duration time.Duration
}

// SideEffects are the non-notification reactions an event may trigger.
// Side effect and notification are independent; both may fire. All fields
// are optional.
type SideEffects struct {
	ResetChat         func()
	PulseLike         func()
	ReopenNamePrompt  func()
	InvalidateSession func()
}

// Mapper applies the event rules in priority order.
type Mapper struct {
	log     zerolog.Logger
	clk     clock.Clock
	resolve func(id, fallback string) string
	notify  func(Notification)
	fx      SideEffects
}

// New creates a Mapper. resolve maps an actor token to a display name and
// notify delivers the resulting notice.
func New(resolve func(id, fallback string) string, notify func(Notification), fx SideEffects, clk clock.Clock, log zerolog.Logger) *Mapper {
	return &Mapper{
		log:     log.With().Str("component", "events").Logger(),
		clk:     clk,
		resolve: resolve,
		notify:  notify,
		fx:      fx,
	}
}

// Handle maps one server event record.
func (m *Mapper) Handle(ev proto.PlayerEvent) {
	// Room reset clears the chat log; the notice below still renders.
	if ev.Action == proto.ActionReset && m.fx.ResetChat != nil {
		m.fx.ResetChat()
	}

	// A password change invalidates the session after a delay long enough
	// to read the alert.
	if ev.Action == proto.ActionPasswordChanged {
		m.emit(Notification{
			Title:    ev.Action,
			Message:  "Room password changed, please verify again",
			Severity: "error",
			Duration: DefaultDuration,
		})
		timer := m.clk.Timer(reloadDelay)
		go func() {
			<-timer.C
			if m.fx.InvalidateSession != nil {
				m.fx.InvalidateSession()
			}
		}()
		return
	}

	// A name collision re-opens the name prompt instead of a plain error.
	if ev.Type == "ERROR" && strings.Contains(ev.Message, "taken") {
		m.emit(Notification{
			Title:    "ERROR",
			Message:  "That name is taken, pick another",
			Severity: "error",
			Duration: DefaultDuration,
		})
		if m.fx.ReopenNamePrompt != nil {
			m.fx.ReopenNamePrompt()
		}
		return
	}

	// Likes pulse, silently.
	if ev.Action == proto.ActionLike {
		if m.fx.PulseLike != nil {
			m.fx.PulseLike()
		}
		return
	}

	// Lifecycle events are visible elsewhere (chat log, now-playing
	// panel) and would spam the UI as notices.
	switch ev.Action {
	case proto.ActionUserJoin, proto.ActionUserLeave, proto.ActionPlayStart:
		m.log.Debug().Str("action", ev.Action).Msg("suppressed lifecycle event")
		return
	}

	message := ev.Message
	if message == "" {
		message = m.describe(ev)
	}
	m.emit(Notification{
		Title:    ev.Action,
		Message:  message,
		Severity: severity(ev.Type),
		Duration: DefaultDuration,
	})
}

func (m *Mapper) emit(n Notification) {
	if m.notify != nil {
		m.notify(n)
	}
}

// describe builds fallback text from the resolved actor name and action.
func (m *Mapper) describe(ev proto.PlayerEvent) string {
	actor := m.resolve(ev.UserID, "")
	switch ev.Action {
	case proto.ActionSkip:
		return actor + " skipped to the next track"
	case proto.ActionPause:
		return actor + " paused playback"
	case proto.ActionResume:
		return actor + " resumed playback"
	case proto.ActionAdd:
		return fmt.Sprintf("%s queued: %s", actor, ev.Payload)
	case proto.ActionImportPlaylist:
		return fmt.Sprintf("%s imported a playlist (%s tracks)", actor, ev.Payload)
	case proto.ActionTop:
		return fmt.Sprintf("%s promoted: %s", actor, ev.Payload)
	case proto.ActionRemove:
		return fmt.Sprintf("%s removed: %s", actor, ev.Payload)
	case proto.ActionShuffleOn:
		return actor + " turned shuffle on"
	case proto.ActionShuffleOff:
		return actor + " turned shuffle off"
	case proto.ActionReset:
		return "The room has been reset"
	case proto.ActionLoadFailed:
		return fmt.Sprintf("Failed to load: %s (skipping)", ev.Payload)
	default:
		return actor + " performed " + strings.ToLower(ev.Action)
	}
}

func severity(eventType string) string {
	switch strings.ToUpper(eventType) {
	case "ERROR":
		return "error"
	case "WARN", "WARNING":
		return "warning"
	case "SUCCESS":
		return "success"
	default:
		return "info"
	}
}
