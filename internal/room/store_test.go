package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"auxroom/internal/identity"
	"auxroom/internal/player"
	"auxroom/internal/proto"
)

type recordingPublisher struct {
	mu    sync.Mutex
	sends []string
}

func (p *recordingPublisher) Send(destination string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, destination)
}

func (p *recordingPublisher) count(destination string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, d := range p.sends {
		if d == destination {
			n++
		}
	}
	return n
}

type memPrefs struct {
	values map[string]string
}

func (p *memPrefs) Get(_ context.Context, key string) (string, error) { return p.values[key], nil }
func (p *memPrefs) Set(_ context.Context, key, value string) error {
	p.values[key] = value
	return nil
}
func (p *memPrefs) Delete(_ context.Context, key string) error {
	delete(p.values, key)
	return nil
}
func (p *memPrefs) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	if _, ok := p.values[key]; ok {
		return false, nil
	}
	p.values[key] = value
	return true, nil
}
func (p *memPrefs) Bindings(context.Context) (map[string]string, error)    { return nil, nil }
func (p *memPrefs) SetBinding(_ context.Context, platform, id string) error {
	p.values["binding."+platform] = id
	return nil
}

type mapLyrics struct {
	byTrack map[string]string
}

func (l *mapLyrics) Lyric(_ context.Context, _, songID string) (string, error) {
	return l.byTrack[songID], nil
}

func newTestRoom(t *testing.T, named bool) (*Store, *recordingPublisher, *identity.State, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	pub := &recordingPublisher{}
	ident, err := identity.Load(context.Background(), &memPrefs{values: map[string]string{}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	if named {
		ident.InitUser(context.Background(), "sess-1", "alice", false)
	}
	engine := player.NewEngine(player.NewSimulatedPrimitive(mock), player.WithClock(mock))
	store := New(pub, ident, engine, WithClock(mock))
	return store, pub, ident, mock
}

func playerState(trackID string, positionMillis int64, paused bool) proto.PlayerState {
	return proto.PlayerState{
		NowPlaying: &proto.NowPlayingInfo{
			Music: &proto.PlayableMusic{
				Music: proto.Music{ID: trackID, Name: "Track", Platform: "qq"},
				URL:   "https://cdn.test/" + trackID,
			},
		},
		PositionMillis: positionMillis,
		IsPaused:       paused,
	}
}

func TestCooldownThrottlesTransportControls(t *testing.T) {
	store, pub, _, mock := newTestRoom(t, true)

	store.TogglePause()
	store.TogglePause()
	if got := pub.count(proto.DestPlayerPause); got != 1 {
		t.Fatalf("pause sends = %d, want 1 inside cooldown", got)
	}

	// Cooldowns are per action; skip is not blocked by pause.
	store.Skip()
	if got := pub.count(proto.DestPlayerNext); got != 1 {
		t.Fatalf("skip sends = %d", got)
	}

	mock.Add(CommandCooldown)
	store.TogglePause()
	if got := pub.count(proto.DestPlayerPause); got != 2 {
		t.Fatalf("pause sends = %d after cooldown", got)
	}
}

func TestLikeNotThrottled(t *testing.T) {
	store, pub, _, _ := newTestRoom(t, true)
	store.Like()
	store.Like()
	if got := pub.count(proto.DestPlayerLike); got != 2 {
		t.Fatalf("like sends = %d, want 2", got)
	}
}

func TestGuestCommandsGated(t *testing.T) {
	store, pub, ident, _ := newTestRoom(t, false)

	store.Skip()
	store.SendChatMessage("hi")
	store.Enqueue("qq", "m-1")
	if len(pub.sends) != 0 {
		t.Fatalf("guest commands reached the transport: %v", pub.sends)
	}
	if !ident.NamePromptWanted() {
		t.Fatalf("guest command should request the name prompt")
	}

	// Rename is the one ungated command; it is how a guest gets a name.
	store.Rename("alice")
	if got := pub.count(proto.DestUserRename); got != 1 {
		t.Fatalf("rename sends = %d", got)
	}
}

func TestSyncStateAnchorsEngine(t *testing.T) {
	store, _, _, mock := newTestRoom(t, true)

	store.SyncState(playerState("a", 30000, false))
	mock.Add(2 * time.Second)
	if got := store.engine.Progress(); got != 32*time.Second {
		t.Fatalf("progress = %v, want 32s", got)
	}
	if store.NowPlaying() == nil || store.NowPlaying().Music.ID != "a" {
		t.Fatalf("now playing not applied")
	}
}

func TestSyncStateUpdatesRosterInline(t *testing.T) {
	store, _, ident, _ := newTestRoom(t, true)
	state := playerState("a", 0, false)
	state.OnlineUsers = []proto.UserSummary{{ID: "u-2", Name: "bob"}}
	store.SyncState(state)
	if got := ident.ResolveName("u-2", ""); got != "bob" {
		t.Fatalf("roster not updated, ResolveName = %q", got)
	}
}

func TestLyricClearedOnTrackChangeAndStaleResponseDropped(t *testing.T) {
	mock := clock.NewMock()
	pub := &recordingPublisher{}
	ident, err := identity.Load(context.Background(), &memPrefs{values: map[string]string{}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("identity.Load: %v", err)
	}
	engine := player.NewEngine(player.NewSimulatedPrimitive(mock), player.WithClock(mock))
	store := New(pub, ident, engine, WithClock(mock), WithLyricSource(&mapLyrics{byTrack: map[string]string{
		"a": "words for a",
		"b": "words for b",
	}}))

	store.SyncState(playerState("a", 0, false))
	waitFor(t, func() bool { return store.LyricText() == "words for a" })

	store.SyncState(playerState("b", 0, false))
	waitFor(t, func() bool { return store.LyricText() == "words for b" })

	// A late response for the previous track must be discarded.
	store.fetchLyric("qq", "a")
	if got := store.LyricText(); got != "words for b" {
		t.Fatalf("stale lyric applied: %q", got)
	}
}

func TestHandleConnectedResyncAndBindings(t *testing.T) {
	store, pub, ident, mock := newTestRoom(t, true)
	ident.UpdateBinding(context.Background(), "qq", "12345")

	store.HandleConnected()
	if !store.Connected() {
		t.Fatalf("store should be connected")
	}
	if got := pub.count(proto.DestUserMe); got != 1 {
		t.Fatalf("identity request sends = %d", got)
	}
	if got := pub.count(proto.DestUserBind); got != 1 {
		t.Fatalf("binding replays = %d", got)
	}

	// The resync waits out the settle window.
	if got := pub.count(proto.DestResync); got != 0 {
		t.Fatalf("resync sent before delay")
	}
	mock.Add(resyncDelay)
	waitFor(t, func() bool { return pub.count(proto.DestResync) == 1 })

	store.HandleDisconnected()
	if store.Connected() {
		t.Fatalf("store should be disconnected")
	}
}

func TestSetQueueReplacesQueue(t *testing.T) {
	store, _, _, _ := newTestRoom(t, true)
	store.SetQueue([]proto.MusicQueueItem{{QueueID: "q-1"}, {QueueID: "q-2"}})
	if got := store.Queue(); len(got) != 2 || got[0].QueueID != "q-1" {
		t.Fatalf("queue = %v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never satisfied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
