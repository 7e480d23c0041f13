// Package room holds the shared playback/queue/roster view pushed by the
// server and mediates every outbound control intent. Commands are
// fire-and-forget: the next state snapshot, not an acknowledgement, is
// the source of truth.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/identity"
	"auxroom/internal/player"
	"auxroom/internal/proto"
)

// CommandCooldown is the local debounce on the high-frequency transport
// controls. It is a UX debounce only; server-side rate limiting exists
// independently.
const CommandCooldown = 500 * time.Millisecond

// resyncDelay gives the broker a beat to finish subscription setup before
// the state resync request goes out.
const resyncDelay = 300 * time.Millisecond

// Publisher sends a command frame; the transport satisfies it.
type Publisher interface {
	Send(destination string, body any)
}

// LyricSource fetches lyric text for a track; the api client satisfies it.
type LyricSource interface {
	Lyric(ctx context.Context, platform, songID string) (string, error)
}

// Store is the single-writer room state.
type Store struct {
	log    zerolog.Logger
	clk    clock.Clock
	pub    Publisher
	ident  *identity.State
	engine *player.Engine
	lyrics LyricSource

	mu         sync.Mutex
	nowPlaying *proto.NowPlayingInfo
	queue      []proto.MusicQueueItem
	paused     bool
	shuffle    bool
	loading    bool
	connected  bool
	lyricText  string
	lastSent   map[string]time.Time
	onChange   func()
}

// Option configures the Store.
type Option func(*Store)

// WithClock substitutes the cooldown clock.
func WithClock(c clock.Clock) Option { return func(s *Store) { s.clk = c } }

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Store) { s.log = l } }

// WithLyricSource wires the lyric side channel.
func WithLyricSource(src LyricSource) Option { return func(s *Store) { s.lyrics = src } }

// New creates a room store bound to a publisher, identity state, and
// playback engine.
func New(pub Publisher, ident *identity.State, engine *player.Engine, opts ...Option) *Store {
	s := &Store{
		log:      zerolog.Nop(),
		clk:      clock.New(),
		pub:      pub,
		ident:    ident,
		engine:   engine,
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "room").Logger()
	return s
}

// OnChange registers the change notification emitted after each update.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// SyncState replaces the whole room view from a server snapshot and
// anchors the playback engine with the position/receipt pair. Inline
// rosters update the identity store as well.
func (s *Store) SyncState(state proto.PlayerState) {
	s.mu.Lock()
	prevTrack := s.trackIDLocked()
	s.nowPlaying = state.NowPlaying
	s.queue = state.Queue
	s.paused = state.IsPaused
	s.shuffle = state.IsShuffle
	s.loading = state.IsLoading
	newTrack := s.trackIDLocked()
	if newTrack != prevTrack {
		s.lyricText = ""
	}
	onChange := s.onChange
	s.mu.Unlock()

	s.engine.ApplySnapshot(state.NowPlaying, time.Duration(state.PositionMillis)*time.Millisecond, state.IsPaused)

	if state.OnlineUsers != nil {
		s.ident.SetOnlineUsers(state.OnlineUsers)
	}
	if newTrack != prevTrack && newTrack != "" {
		go s.fetchLyric(state.NowPlaying.Music.Platform, newTrack)
	}
	notify(onChange)
}

func (s *Store) trackIDLocked() string {
	if s.nowPlaying == nil || s.nowPlaying.Music == nil {
		return ""
	}
	return s.nowPlaying.Music.ID
}

// fetchLyric pulls lyric text on a track change. Lyrics are an
// enhancement: failures leave the text empty, and a response for a track
// that is no longer current is discarded.
func (s *Store) fetchLyric(platform, trackID string) {
	if s.lyrics == nil {
		return
	}
	text, err := s.lyrics.Lyric(context.Background(), platform, trackID)
	if err != nil {
		s.log.Debug().Err(err).Str("track", trackID).Msg("lyric fetch failed")
		return
	}
	s.mu.Lock()
	if s.trackIDLocked() != trackID {
		s.mu.Unlock()
		return
	}
	s.lyricText = text
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// SetQueue replaces the queue from the dedicated queue topic.
func (s *Store) SetQueue(queue []proto.MusicQueueItem) {
	s.mu.Lock()
	s.queue = queue
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// HandleConnected marks the session live, asks the server to confirm who
// this session is, schedules a resync request, and replays persisted
// platform bindings.
func (s *Store) HandleConnected() {
	s.mu.Lock()
	s.connected = true
	onChange := s.onChange
	s.mu.Unlock()

	s.pub.Send(proto.DestUserMe, struct{}{})

	timer := s.clk.Timer(resyncDelay)
	go func() {
		<-timer.C
		s.pub.Send(proto.DestResync, struct{}{})
	}()

	for platform, accountID := range s.ident.Bindings() {
		if accountID != "" {
			s.pub.Send(proto.DestUserBind, map[string]string{"platform": platform, "accountId": accountID})
		}
	}
	notify(onChange)
}

// HandleDisconnected marks the session down.
func (s *Store) HandleDisconnected() {
	s.mu.Lock()
	s.connected = false
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// allow enforces the per-action cooldown window; repeats inside the
// window are dropped without contacting the server.
func (s *Store) allow(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	if last, ok := s.lastSent[action]; ok && now.Sub(last) < CommandCooldown {
		return false
	}
	s.lastSent[action] = now
	return true
}

// Skip advances to the next track.
func (s *Store) Skip() {
	if !s.ident.RequireAuth() || !s.allow(proto.DestPlayerNext) {
		return
	}
	s.pub.Send(proto.DestPlayerNext, struct{}{})
}

// TogglePause flips the room pause flag.
func (s *Store) TogglePause() {
	if !s.ident.RequireAuth() || !s.allow(proto.DestPlayerPause) {
		return
	}
	s.pub.Send(proto.DestPlayerPause, struct{}{})
}

// ToggleShuffle flips the room shuffle flag.
func (s *Store) ToggleShuffle() {
	if !s.ident.RequireAuth() || !s.allow(proto.DestPlayerShuffle) {
		return
	}
	s.pub.Send(proto.DestPlayerShuffle, struct{}{})
}

// Like marks the current moment on the room timeline.
func (s *Store) Like() {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestPlayerLike, struct{}{})
}

// Enqueue adds one track to the shared queue.
func (s *Store) Enqueue(platform, musicID string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestEnqueue, map[string]string{"platform": platform, "musicId": musicID})
}

// EnqueuePlaylist imports a whole playlist into the queue.
func (s *Store) EnqueuePlaylist(platform, playlistID string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestEnqueuePlaylist, map[string]string{"platform": platform, "playlistId": playlistID})
}

// PromoteInQueue moves a queue entry to the front. Ordering remains
// server-assigned; the local queue is never reordered optimistically.
func (s *Store) PromoteInQueue(queueID string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestQueueTop, map[string]string{"queueId": queueID})
}

// RemoveFromQueue deletes a queue entry.
func (s *Store) RemoveFromQueue(queueID string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestQueueRemove, map[string]string{"queueId": queueID})
}

// BindAccount links a platform account and persists the binding locally.
func (s *Store) BindAccount(ctx context.Context, platform, accountID string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestUserBind, map[string]string{"platform": platform, "accountId": accountID})
	s.ident.UpdateBinding(ctx, platform, accountID)
}

// Rename requests a new display name. Open to guests: it is the action
// that turns a guest into a named user, and it only becomes durable once
// the server confirms it on the identity channel.
func (s *Store) Rename(newName string) {
	s.pub.Send(proto.DestUserRename, map[string]string{"newName": newName})
}

// SendChatMessage publishes a chat line.
func (s *Store) SendChatMessage(content string) {
	if !s.ident.RequireAuth() {
		return
	}
	s.pub.Send(proto.DestChatSend, map[string]string{"content": content})
}

// Resync asks the server for a fresh personal state push.
func (s *Store) Resync() {
	s.pub.Send(proto.DestResync, struct{}{})
}

// Snapshot accessors. Reads are safe concurrently with the dispatch
// goroutine's writes.

// NowPlaying returns the current track info, or nil.
func (s *Store) NowPlaying() *proto.NowPlayingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowPlaying
}

// Queue returns a copy of the shared queue.
func (s *Store) Queue() []proto.MusicQueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.MusicQueueItem(nil), s.queue...)
}

// IsPaused reports the server pause flag.
func (s *Store) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsShuffle reports the server shuffle flag.
func (s *Store) IsShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuffle
}

// IsLoading reports the server loading flag.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Connected reports the transport session state as last notified.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LyricText returns the lyric text for the current track, or "".
func (s *Store) LyricText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lyricText
}
