// Package chat holds the bounded, paginated room chat history and the
// unread counter for the closed chat panel.
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"auxroom/internal/proto"
)

const (
	// HardCap and RetainWindow form a two-threshold hysteresis: the
	// history trims to RetainWindow only when it crosses HardCap, not on
	// every insert.
	HardCap      = 2000
	RetainWindow = 1000

	// PageSize is the backward pagination page length.
	PageSize = 50
)

// Store is the single-writer chat state.
type Store struct {
	log  zerolog.Logger
	send func(destination string, body any)
	self func() string

	mu       sync.Mutex
	messages []proto.ChatMessage
	unread   int
	open     bool
	hasMore  bool
	fetching bool
	offset   int // server-side offset of the oldest loaded message
	onChange func()
}

// New creates a chat store. send publishes through the transport and self
// returns the local identity token (for unread accounting).
func New(send func(string, any), self func() string, log zerolog.Logger) *Store {
	return &Store{
		log:  log.With().Str("component", "chat").Logger(),
		send: send,
		self: self,
	}
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

// AddMessage appends a live message, trimming on cap overflow. The unread
// counter moves only for ordinary chat from others while the panel is
// closed; system and private messages are displayed differently and do
// not count.
func (s *Store) AddMessage(msg proto.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if len(s.messages) > HardCap {
		trimmed := len(s.messages) - RetainWindow
		s.messages = append(s.messages[:0], s.messages[trimmed:]...)
		s.offset += trimmed
		s.log.Debug().Int("trimmed", trimmed).Msg("history trimmed")
	}
	if !s.open && msg.Type == proto.MessageChat && msg.UserID != s.self() {
		s.unread++
	}
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// SetHistory replaces the history with the initial connect push and
// resets the unread counter.
func (s *Store) SetHistory(history []proto.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages[:0], history...)
	s.unread = 0
	s.fetching = false
	s.offset = 0
	s.hasMore = len(history) >= PageSize
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// LoadMoreHistory requests the next older page anchored at the current
// oldest-loaded offset. No-op while exhausted or already in flight.
func (s *Store) LoadMoreHistory() {
	s.mu.Lock()
	if !s.hasMore || s.fetching {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	offset := s.offset + len(s.messages)
	s.mu.Unlock()

	s.send(proto.DestChatHistoryFetch, map[string]int{
		"offset": offset,
		"limit":  PageSize,
	})
}

// PrependHistory merges an older page at the head. An empty or short page
// marks history exhausted.
func (s *Store) PrependHistory(page []proto.ChatMessage) {
	s.mu.Lock()
	s.fetching = false
	if len(page) < PageSize {
		s.hasMore = false
	}
	if len(page) > 0 {
		s.messages = append(append([]proto.ChatMessage(nil), page...), s.messages...)
	}
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// Reset clears the log (room reset event).
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.unread = 0
	s.offset = 0
	s.hasMore = false
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// SetOpen tracks the chat panel; opening clears the unread counter.
func (s *Store) SetOpen(open bool) {
	s.mu.Lock()
	s.open = open
	if open {
		s.unread = 0
	}
	onChange := s.onChange
	s.mu.Unlock()
	notify(onChange)
}

// IsOpen reports whether the chat panel is open.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Messages returns a copy of the loaded history, oldest first.
func (s *Store) Messages() []proto.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.ChatMessage(nil), s.messages...)
}

// Unread returns the unread counter.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// HasMore reports whether older history remains server-side.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Fetching reports whether a history page is in flight.
func (s *Store) Fetching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetching
}
