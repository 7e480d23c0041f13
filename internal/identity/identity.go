// Package identity resolves "who am I" and "am I allowed to act" for the
// local participant, and keeps that consistent across reconnects, name
// collisions, and room password changes.
package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"auxroom/internal/proto"
	"auxroom/internal/storage"
)

// SystemLabel is the display name for the reserved system actor.
const SystemLabel = "System"

// Prefs is the persistence surface the identity state needs.
type Prefs interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Bindings(ctx context.Context) (map[string]string, error)
	SetBinding(ctx context.Context, platform, accountID string) error
}

// State is the single-writer identity store. Mutations happen only through
// its methods; after each atomic update it invokes the change callback.
type State struct {
	mu    sync.Mutex
	log   zerolog.Logger
	prefs Prefs

	token        string
	sessionID    string
	name         string
	guest        bool
	roomPassword string
	authorized   bool
	bindings     map[string]string
	roster       []proto.UserSummary

	namePrompt bool
	deferred   func()
	onChange   func()
}

// Load restores identity from the preference store, generating and
// persisting the stable token on first run. The token is written exactly
// once per installation and never regenerated.
func Load(ctx context.Context, prefs Prefs, log zerolog.Logger) (*State, error) {
	s := &State{
		log:      log.With().Str("component", "identity").Logger(),
		prefs:    prefs,
		bindings: make(map[string]string),
	}

	token, err := prefs.Get(ctx, storage.KeyIdentityToken)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = uuid.NewString()
		if _, err := prefs.SetIfAbsent(ctx, storage.KeyIdentityToken, token); err != nil {
			return nil, err
		}
		// A concurrent writer may have won the race; re-read the winner.
		if token, err = prefs.Get(ctx, storage.KeyIdentityToken); err != nil {
			return nil, err
		}
		s.log.Info().Msg("generated identity token")
	}
	s.token = token

	if s.name, err = prefs.Get(ctx, storage.KeyDisplayName); err != nil {
		return nil, err
	}
	s.guest = s.name == ""

	if s.roomPassword, err = prefs.Get(ctx, storage.KeyRoomPassword); err != nil {
		return nil, err
	}
	s.authorized = s.roomPassword != ""

	if bindings, err := prefs.Bindings(ctx); err == nil && bindings != nil {
		s.bindings = bindings
	}
	return s, nil
}

// OnChange registers the change notification emitted after each update.
func (s *State) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *State) notify(fn func()) {
	if fn != nil {
		fn()
	}
}

// Token returns the durable per-installation token.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Name returns the current display name, or "" for an unnamed guest.
func (s *State) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// IsGuest reports whether the server considers this participant unnamed.
func (s *State) IsGuest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guest
}

// RoomPassword returns the cached room password, if any.
func (s *State) RoomPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomPassword
}

// Authorized reports whether the room password gate has been passed.
func (s *State) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

// InitUser applies the server's view of this participant after a
// handshake. The server's guest/named determination is authoritative; a
// differing server name is adopted even outside a transition, since the
// server may have suffixed it on collision.
func (s *State) InitUser(ctx context.Context, sessionID, serverName string, serverIsGuest bool) {
	s.mu.Lock()
	s.sessionID = sessionID
	wasGuest := s.guest
	s.guest = serverIsGuest

	var deferred func()
	switch {
	case wasGuest && !serverIsGuest:
		// guest → named: adopt and persist, release any queued action.
		s.name = serverName
		s.namePrompt = false
		deferred = s.deferred
		s.deferred = nil
		if err := s.prefs.Set(ctx, storage.KeyDisplayName, serverName); err != nil {
			s.log.Warn().Err(err).Msg("persist display name failed")
		}
	case !wasGuest && serverIsGuest:
		// named → guest: server-driven demotion, drop the cached name.
		s.name = ""
		if err := s.prefs.Delete(ctx, storage.KeyDisplayName); err != nil {
			s.log.Warn().Err(err).Msg("clear display name failed")
		}
	case serverName != "" && serverName != s.name:
		s.name = serverName
		if !serverIsGuest {
			if err := s.prefs.Set(ctx, storage.KeyDisplayName, serverName); err != nil {
				s.log.Warn().Err(err).Msg("persist display name failed")
			}
		}
	}
	onChange := s.onChange
	s.mu.Unlock()

	s.log.Info().Str("session", sessionID).Str("name", serverName).Bool("guest", serverIsGuest).Msg("identity confirmed")
	if deferred != nil {
		deferred()
	}
	s.notify(onChange)
}

// ResolveName maps a participant token to a display name: self, then the
// roster, then fallback, then a placeholder. The reserved system token
// maps to a fixed label.
func (s *State) ResolveName(id, fallback string) string {
	if id == proto.SystemUserID {
		return SystemLabel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.token {
		if s.name != "" {
			return s.name
		}
		return "you"
	}
	for _, u := range s.roster {
		if u.ID == id {
			return u.Name
		}
	}
	if fallback != "" {
		return fallback
	}
	return "someone"
}

// RequireAuth gates mutating room commands. Guests get a name prompt
// request instead of a transmitted command, because unnamed commands are
// rejected server-side and must not be attempted.
func (s *State) RequireAuth() bool {
	s.mu.Lock()
	if !s.guest {
		s.mu.Unlock()
		return true
	}
	s.namePrompt = true
	onChange := s.onChange
	s.mu.Unlock()
	s.notify(onChange)
	return false
}

// Defer queues a single action to run once the guest picks a name and the
// server confirms it. A later call replaces the earlier one.
func (s *State) Defer(fn func()) {
	s.mu.Lock()
	s.deferred = fn
	s.mu.Unlock()
}

// NamePromptWanted reports whether a name prompt has been requested.
func (s *State) NamePromptWanted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namePrompt
}

// RequestNamePrompt forces the name prompt open (used on collision errors).
func (s *State) RequestNamePrompt() {
	s.mu.Lock()
	s.namePrompt = true
	onChange := s.onChange
	s.mu.Unlock()
	s.notify(onChange)
}

// ClearNamePrompt dismisses a pending prompt without acting.
func (s *State) ClearNamePrompt() {
	s.mu.Lock()
	s.namePrompt = false
	s.deferred = nil
	s.mu.Unlock()
}

// SetOnlineUsers replaces the roster.
func (s *State) SetOnlineUsers(users []proto.UserSummary) {
	s.mu.Lock()
	s.roster = append(s.roster[:0], users...)
	onChange := s.onChange
	s.mu.Unlock()
	s.notify(onChange)
}

// Roster returns a copy of the online user list.
func (s *State) Roster() []proto.UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.UserSummary(nil), s.roster...)
}

// SetRoomPassword caches and persists a verified room password.
func (s *State) SetRoomPassword(ctx context.Context, password string) {
	s.mu.Lock()
	s.roomPassword = password
	s.authorized = password != ""
	if err := s.prefs.Set(ctx, storage.KeyRoomPassword, password); err != nil {
		s.log.Warn().Err(err).Msg("persist room password failed")
	}
	s.mu.Unlock()
}

// ResetAuthentication drops the cached password and authorized flag after
// a protocol-level rejection. The client must not retry silently with the
// same credential.
func (s *State) ResetAuthentication(ctx context.Context) {
	s.mu.Lock()
	s.roomPassword = ""
	s.authorized = false
	if err := s.prefs.Delete(ctx, storage.KeyRoomPassword); err != nil {
		s.log.Warn().Err(err).Msg("clear room password failed")
	}
	onChange := s.onChange
	s.mu.Unlock()
	s.log.Warn().Msg("authorization reset")
	s.notify(onChange)
}

// UpdateBinding records a platform account binding and persists it.
func (s *State) UpdateBinding(ctx context.Context, platform, accountID string) {
	s.mu.Lock()
	s.bindings[platform] = accountID
	if err := s.prefs.SetBinding(ctx, platform, accountID); err != nil {
		s.log.Warn().Err(err).Msg("persist binding failed")
	}
	s.mu.Unlock()
}

// Bindings returns a copy of the platform account bindings.
func (s *State) Bindings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.bindings))
	for k, v := range s.bindings {
		out[k] = v
	}
	return out
}
