package events

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/proto"
)

type mapperHarness struct {
	mapper      *Mapper
	mock        *clock.Mock
	notices     []Notification
	resets      int
	pulses      int
	reprompts   int
	invalidated chan struct{}
}

func newHarness() *mapperHarness {
	h := &mapperHarness{
		mock:        clock.NewMock(),
		invalidated: make(chan struct{}, 1),
	}
	resolve := func(id, fallback string) string {
		switch id {
		case "u-1":
			return "alice"
		case proto.SystemUserID:
			return "System"
		}
		if fallback != "" {
			return fallback
		}
		return "someone"
	}
	h.mapper = New(resolve, func(n Notification) { h.notices = append(h.notices, n) }, SideEffects{
		ResetChat:         func() { h.resets++ },
		PulseLike:         func() { h.pulses++ },
		ReopenNamePrompt:  func() { h.reprompts++ },
		InvalidateSession: func() { h.invalidated <- struct{}{} },
	}, h.mock, zerolog.Nop())
	return h
}

func TestLifecycleEventsSuppressed(t *testing.T) {
	h := newHarness()
	for _, action := range []string{proto.ActionUserJoin, proto.ActionUserLeave, proto.ActionPlayStart} {
		h.mapper.Handle(proto.PlayerEvent{Type: "INFO", Action: action, UserID: "u-1"})
	}
	if len(h.notices) != 0 {
		t.Fatalf("lifecycle events produced notices: %v", h.notices)
	}
}

func TestLikePulsesWithoutNotice(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "INFO", Action: proto.ActionLike, UserID: "u-1"})
	if h.pulses != 1 {
		t.Fatalf("pulses = %d", h.pulses)
	}
	if len(h.notices) != 0 {
		t.Fatalf("like produced a notice: %v", h.notices)
	}
}

func TestResetClearsChatAndStillNotifies(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "WARN", Action: proto.ActionReset, UserID: proto.SystemUserID})
	if h.resets != 1 {
		t.Fatalf("resets = %d", h.resets)
	}
	if len(h.notices) != 1 {
		t.Fatalf("notices = %v", h.notices)
	}
	if h.notices[0].Severity != "warning" {
		t.Fatalf("severity = %q", h.notices[0].Severity)
	}
}

func TestPasswordChangeInvalidatesAfterDelay(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "ERROR", Action: proto.ActionPasswordChanged})
	if len(h.notices) != 1 || h.notices[0].Severity != "error" {
		t.Fatalf("notices = %v", h.notices)
	}
	select {
	case <-h.invalidated:
		t.Fatalf("session invalidated before the alert delay")
	default:
	}
	h.mock.Add(reloadDelay)
	select {
	case <-h.invalidated:
	case <-time.After(2 * time.Second):
		t.Fatalf("session never invalidated")
	}
}

func TestNameCollisionReopensPrompt(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "ERROR", Message: "name already taken"})
	if h.reprompts != 1 {
		t.Fatalf("reprompts = %d", h.reprompts)
	}
	if len(h.notices) != 1 || h.notices[0].Severity != "error" {
		t.Fatalf("notices = %v", h.notices)
	}
}

func TestServerMessagePreferredOverFallback(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "INFO", Action: proto.ActionSkip, UserID: "u-1", Message: "server says so"})
	if len(h.notices) != 1 || h.notices[0].Message != "server says so" {
		t.Fatalf("notices = %v", h.notices)
	}
}

func TestFallbackTextResolvesActor(t *testing.T) {
	h := newHarness()
	h.mapper.Handle(proto.PlayerEvent{Type: "INFO", Action: proto.ActionSkip, UserID: "u-1"})
	if len(h.notices) != 1 {
		t.Fatalf("notices = %v", h.notices)
	}
	if got := h.notices[0].Message; got != "alice skipped to the next track" {
		t.Fatalf("message = %q", got)
	}
}

func TestSeverityMapping(t *testing.T) {
	cases := map[string]string{
		"ERROR":   "error",
		"WARN":    "warning",
		"SUCCESS": "success",
		"INFO":    "info",
		"":        "info",
	}
	for eventType, want := range cases {
		if got := severity(eventType); got != want {
			t.Fatalf("severity(%q) = %q, want %q", eventType, got, want)
		}
	}
}
