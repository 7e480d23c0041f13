package identity

import (
	"context"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"auxroom/internal/proto"
	"auxroom/internal/storage"
)

type memPrefs struct {
	values map[string]string
}

func newMemPrefs() *memPrefs {
	return &memPrefs{values: make(map[string]string)}
}

func (p *memPrefs) Get(_ context.Context, key string) (string, error) {
	return p.values[key], nil
}

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

func (p *memPrefs) Bindings(context.Context) (map[string]string, error) {
	return nil, nil
}

func (p *memPrefs) SetBinding(_ context.Context, platform, accountID string) error {
	p.values["binding."+platform] = accountID
	return nil
}

var uuidShape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestLoadGeneratesStableToken(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()

	first, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)
	require.Regexp(t, uuidShape, first.Token())

	// A second load of the same installation sees the same token.
	second, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, first.Token(), second.Token())
}

func TestLoadRestoresNameAndPassword(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	require.NoError(t, prefs.Set(ctx, storage.KeyDisplayName, "alice"))
	require.NoError(t, prefs.Set(ctx, storage.KeyRoomPassword, "sekrit"))

	state, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "alice", state.Name())
	require.False(t, state.IsGuest())
	require.Equal(t, "sekrit", state.RoomPassword())
	require.True(t, state.Authorized())
}

func TestGuestPromotionPersistsAndRunsDeferred(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	state, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, state.IsGuest())

	ran := false
	state.Defer(func() { ran = true })
	state.RequestNamePrompt()

	state.InitUser(ctx, "sess-1", "alice", false)
	require.False(t, state.IsGuest())
	require.Equal(t, "alice", state.Name())
	require.Equal(t, "alice", prefs.values[storage.KeyDisplayName])
	require.True(t, ran, "deferred action should fire on promotion")
	require.False(t, state.NamePromptWanted())
}

func TestDemotionClearsPersistedName(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	require.NoError(t, prefs.Set(ctx, storage.KeyDisplayName, "alice"))
	state, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)

	state.InitUser(ctx, "sess-1", "", true)
	require.True(t, state.IsGuest())
	require.Empty(t, state.Name())
	require.NotContains(t, prefs.values, storage.KeyDisplayName)
}

func TestServerRenameAdopted(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	require.NoError(t, prefs.Set(ctx, storage.KeyDisplayName, "alice"))
	state, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)

	// The server may have suffixed the name on collision.
	state.InitUser(ctx, "sess-1", "alice2", false)
	require.Equal(t, "alice2", state.Name())
	require.Equal(t, "alice2", prefs.values[storage.KeyDisplayName])
}

func TestRequireAuthGatesGuests(t *testing.T) {
	ctx := context.Background()
	state, err := Load(ctx, newMemPrefs(), zerolog.Nop())
	require.NoError(t, err)

	require.False(t, state.RequireAuth())
	require.True(t, state.NamePromptWanted())

	state.InitUser(ctx, "sess-1", "alice", false)
	require.True(t, state.RequireAuth())
}

func TestResolveName(t *testing.T) {
	ctx := context.Background()
	state, err := Load(ctx, newMemPrefs(), zerolog.Nop())
	require.NoError(t, err)
	state.InitUser(ctx, "sess-1", "alice", false)
	state.SetOnlineUsers([]proto.UserSummary{
		{ID: "u-2", Name: "bob"},
	})

	require.Equal(t, "alice", state.ResolveName(state.Token(), ""))
	require.Equal(t, "bob", state.ResolveName("u-2", ""))
	require.Equal(t, "carol", state.ResolveName("u-3", "carol"))
	require.Equal(t, "someone", state.ResolveName("u-3", ""))
	require.Equal(t, SystemLabel, state.ResolveName(proto.SystemUserID, "ignored"))
}

func TestResetAuthentication(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	require.NoError(t, prefs.Set(ctx, storage.KeyRoomPassword, "sekrit"))
	state, err := Load(ctx, prefs, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, state.Authorized())

	state.ResetAuthentication(ctx)
	require.False(t, state.Authorized())
	require.Empty(t, state.RoomPassword())
	require.NotContains(t, prefs.values, storage.KeyRoomPassword)
}
