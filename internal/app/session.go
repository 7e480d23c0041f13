package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/api"
	"auxroom/internal/chat"
	"auxroom/internal/events"
	"auxroom/internal/identity"
	"auxroom/internal/player"
	"auxroom/internal/proto"
	"auxroom/internal/room"
	"auxroom/internal/storage"
	"auxroom/internal/transport"
)

// Session assembles the realtime core: one transport, the identity, room,
// and chat stores, the playback engine, and the event mapper. Stores are
// constructed once here and passed by reference to everything that needs
// them; nothing holds ambient global state.
type Session struct {
	log          zerolog.Logger
	clk          clock.Clock
	prefs        *storage.Store
	nameOverride string

	Ident     *identity.State
	API       *api.Client
	Engine    *player.Engine
	Primitive *player.SimulatedPrimitive
	Room      *room.Store
	Chat      *chat.Store
	Mapper    *events.Mapper
	Transport *transport.Transport

	mu     sync.Mutex
	notice func(events.Notification)
	fatal  func(reason string)
	pulse  func()

	stopWatch chan struct{}
	closeOnce sync.Once
}

// watchdogInterval paces the stall check. ForceReconnect is a no-op while
// inbound activity is fresh, so a tight period costs nothing.
const watchdogInterval = 10 * time.Second

// NewSession builds the whole client core from configuration.
func NewSession(ctx context.Context, cfg Config, log zerolog.Logger) (*Session, error) {
	wsURL, err := WebSocketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	httpBase, err := HTTPBaseURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	prefs, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := prefs.Migrate(ctx); err != nil {
		_ = prefs.Close()
		return nil, err
	}

	ident, err := identity.Load(ctx, prefs, log)
	if err != nil {
		_ = prefs.Close()
		return nil, err
	}

	s := &Session{
		log:          log,
		clk:          clock.New(),
		prefs:        prefs,
		nameOverride: cfg.Name,
		Ident:        ident,
		API:          api.NewClient(httpBase, log),
		stopWatch:    make(chan struct{}),
	}

	s.Primitive = player.NewSimulatedPrimitive(s.clk)
	s.Engine = player.NewEngine(s.Primitive,
		player.WithClock(s.clk),
		player.WithLogger(log),
		player.WithNotice(func(text string) {
			s.emitNotice(events.Notification{Title: "PLAYBACK", Message: text, Severity: "info", Duration: events.DefaultDuration})
		}),
	)
	// Simulated resources are playable as soon as they load.
	s.Primitive.OnLoad = func(string) { s.Engine.HandleCanPlay() }

	s.Transport = transport.New(wsURL,
		transport.WithClock(s.clk),
		transport.WithLogger(log),
	)

	s.Room = room.New(s.Transport, ident, s.Engine,
		room.WithClock(s.clk),
		room.WithLogger(log),
		room.WithLyricSource(s.API),
	)
	s.Chat = chat.New(s.Transport.Send, ident.Token, log)

	s.Mapper = events.New(ident.ResolveName, s.emitNotice, events.SideEffects{
		ResetChat:         s.Chat.Reset,
		ReopenNamePrompt:  ident.RequestNamePrompt,
		PulseLike:         func() { s.emitPulse() },
		InvalidateSession: s.invalidateSession,
	}, s.clk, log)

	return s, nil
}

// SetNoticeSink directs transient notifications (UI toast surface).
func (s *Session) SetNoticeSink(fn func(events.Notification)) {
	s.mu.Lock()
	s.notice = fn
	s.mu.Unlock()
}

// SetFatalSink directs fatal-to-session conditions (bad room password).
func (s *Session) SetFatalSink(fn func(reason string)) {
	s.mu.Lock()
	s.fatal = fn
	s.mu.Unlock()
}

// SetPulseSink directs the like-pulse side effect.
func (s *Session) SetPulseSink(fn func()) {
	s.mu.Lock()
	s.pulse = fn
	s.mu.Unlock()
}

func (s *Session) emitNotice(n events.Notification) {
	s.mu.Lock()
	fn := s.notice
	s.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (s *Session) emitPulse() {
	s.mu.Lock()
	fn := s.pulse
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start launches the playback correction loop and the stall watchdog.
// The watchdog is what recovers sessions that die without a close frame:
// the read loop never errors, but inbound activity goes stale.
func (s *Session) Start() {
	s.Engine.Start()

	ticker := s.clk.Ticker(watchdogInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Transport.ForceReconnect()
			case <-s.stopWatch:
				return
			}
		}
	}()
}

// Connect activates the transport with the current identity credentials
// and the full subscription set. Safe to call again after a disconnect.
func (s *Session) Connect() {
	name := s.Ident.Name()
	if name == "" {
		// First-run -name override; the server's confirmation makes it
		// durable, not the flag itself.
		name = s.nameOverride
	}
	auth := transport.AuthContext{
		Token:        s.Ident.Token(),
		Name:         name,
		RoomPassword: s.Ident.RoomPassword(),
	}
	s.Transport.Connect(auth, transport.Callbacks{
		OnConnect:       s.Room.HandleConnected,
		OnDisconnect:    s.Room.HandleDisconnected,
		OnProtocolError: s.handleProtocolError,
	}, s.subscriptions())
}

// Close tears the session down for good.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stopWatch)
		s.Transport.Disconnect()
		s.Engine.Stop()
		_ = s.prefs.Close()
	})
}

// subscriptions maps every server push destination to its store.
func (s *Session) subscriptions() map[string]transport.Handler {
	return map[string]transport.Handler{
		proto.TopicState: s.handleState,
		proto.UserState:  s.handleState,
		proto.TopicQueue: func(body []byte) {
			var queue []proto.MusicQueueItem
			if s.decode(proto.TopicQueue, body, &queue) {
				s.Room.SetQueue(queue)
			}
		},
		proto.TopicUsers: func(body []byte) {
			var users []proto.UserSummary
			if s.decode(proto.TopicUsers, body, &users) {
				s.Ident.SetOnlineUsers(users)
			}
		},
		proto.TopicChat: s.handleChat,
		proto.UserPrivateChat: s.handleChat,
		proto.UserChatHistory: s.handleChatHistory,
		proto.TopicEvents:     s.handleEvent,
		proto.UserEvents:      s.handleEvent,
		proto.UserMeUpdate: func(body []byte) {
			var me proto.Me
			if s.decode(proto.UserMeUpdate, body, &me) {
				s.Ident.InitUser(context.Background(), me.SessionID, me.Name, me.IsGuest)
			}
		},
	}
}

func (s *Session) handleState(body []byte) {
	var state proto.PlayerState
	if s.decode(proto.TopicState, body, &state) {
		s.Room.SyncState(state)
	}
}

func (s *Session) handleChat(body []byte) {
	var msg proto.ChatMessage
	if s.decode(proto.TopicChat, body, &msg) {
		s.Chat.AddMessage(msg)
	}
}

// handleChatHistory accepts both shapes the server uses: the initial
// connect push (a bare array) and paged replies ({messages, offset}).
func (s *Session) handleChatHistory(body []byte) {
	var page proto.ChatHistoryPage
	if err := json.Unmarshal(body, &page); err == nil && page.Messages != nil {
		if page.Offset == 0 {
			s.Chat.SetHistory(page.Messages)
		} else {
			s.Chat.PrependHistory(page.Messages)
		}
		return
	}
	var history []proto.ChatMessage
	if s.decode(proto.UserChatHistory, body, &history) {
		s.Chat.SetHistory(history)
	}
}

func (s *Session) handleEvent(body []byte) {
	var ev proto.PlayerEvent
	if s.decode(proto.TopicEvents, body, &ev) {
		s.Mapper.Handle(ev)
	}
}

func (s *Session) decode(dest string, body []byte, out any) bool {
	if err := json.Unmarshal(body, out); err != nil {
		s.log.Warn().Err(err).Str("dest", dest).Msg("discarding undecodable message")
		return false
	}
	return true
}

// handleProtocolError reacts to a server-rejected handshake. A bad room
// password is non-recoverable locally: cached credentials are cleared and
// the owner is told to rebuild client state from scratch.
func (s *Session) handleProtocolError(message string) {
	if strings.Contains(message, proto.ErrInvalidRoomPassword) {
		s.Ident.ResetAuthentication(context.Background())
	}
	s.mu.Lock()
	fn := s.fatal
	s.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

// invalidateSession performs the password-change recovery: drop cached
// authorization and surface a fatal reset, mirroring a full page reload.
func (s *Session) invalidateSession() {
	s.Ident.ResetAuthentication(context.Background())
	s.Transport.Disconnect()
	s.mu.Lock()
	fn := s.fatal
	s.mu.Unlock()
	if fn != nil {
		fn("room password changed")
	}
}

// Volume reads the persisted volume.
func (s *Session) Volume(ctx context.Context) float64 {
	vol, err := s.prefs.Volume(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("volume read failed")
	}
	return vol
}

// SetVolume persists the volume.
func (s *Session) SetVolume(ctx context.Context, vol float64) {
	if err := s.prefs.SetVolume(ctx, vol); err != nil {
		s.log.Debug().Err(err).Msg("volume write failed")
	}
}
