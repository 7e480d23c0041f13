// Package proto holds the wire records and destination constants shared
// with the listening-room server. Field names match the server's JSON
// serialization exactly; changing them breaks compatibility.
package proto

// Music identifies a track on one of the supported platforms.
type Music struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Duration int64    `json:"duration"` // milliseconds
	Platform string   `json:"platform"`
	CoverURL string   `json:"coverUrl"`
}

// PlayableMusic is a Music resolved to a streamable URL.
type PlayableMusic struct {
	Music
	URL string `json:"url"`
}

// NowPlayingInfo describes the track currently on the room timeline.
type NowPlayingInfo struct {
	Music           *PlayableMusic `json:"music"`
	StartTimeMillis int64          `json:"startTimeMillis"`
	EnqueuedBy      string         `json:"enqueuedBy"`
}

// Queue item status values assigned by the server.
const (
	StatusPending     = "PENDING"
	StatusDownloading = "DOWNLOADING"
	StatusReady       = "READY"
	StatusPlaying     = "PLAYING"
	StatusFailed      = "FAILED"
)

// MusicQueueItem is one entry in the shared queue. Ordering is
// server-assigned; the client never reorders locally.
type MusicQueueItem struct {
	QueueID    string       `json:"queueId"`
	Music      Music        `json:"music"`
	EnqueuedBy *UserSummary `json:"enqueuedBy"`
	Status     string       `json:"status"`
}

// UserSummary is the roster entry for one online participant.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayerState is the complete snapshot the server pushes on every change.
// PositionMillis is only meaningful paired with the client-side receipt
// time; see the player package.
type PlayerState struct {
	NowPlaying      *NowPlayingInfo  `json:"nowPlaying"`
	Queue           []MusicQueueItem `json:"queue"`
	IsShuffle       bool             `json:"isShuffle"`
	OnlineUsers     []UserSummary    `json:"onlineUsers"`
	IsPaused        bool             `json:"isPaused"`
	IsLoading       bool             `json:"isLoading"`
	PositionMillis  int64            `json:"positionMillis"`
	ServerTimestamp int64            `json:"serverTimestamp"`
}

// Chat message types.
const (
	MessageChat    = "CHAT"
	MessageSystem  = "SYSTEM"
	MessagePrivate = "PRIVATE"
	MessageLike    = "LIKE"
)

// SystemUserID is the reserved sender token for server-originated messages.
const SystemUserID = "SYSTEM"

// ChatMessage is one chat or system log entry.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// ChatHistoryPage is the reply to a history fetch.
type ChatHistoryPage struct {
	Messages []ChatMessage `json:"messages"`
	Offset   int           `json:"offset"`
}

// Player event actions, mirroring the server's action enum.
const (
	ActionPlay            = "PLAY"
	ActionPause           = "PAUSE"
	ActionResume          = "RESUME"
	ActionSkip            = "SKIP"
	ActionAdd             = "ADD"
	ActionRemove          = "REMOVE"
	ActionTop             = "TOP"
	ActionShuffleOn       = "SHUFFLE_ON"
	ActionShuffleOff      = "SHUFFLE_OFF"
	ActionImportPlaylist  = "IMPORT"
	ActionLike            = "LIKE"
	ActionUserJoin        = "USER_JOIN"
	ActionUserLeave       = "USER_LEAVE"
	ActionPlayStart       = "PLAY_START"
	ActionReset           = "RESET"
	ActionLoadFailed      = "LOAD_FAILED"
	ActionPasswordChanged = "PASSWORD_CHANGED"
)

// PlayerEvent is an opaque server event record; Message, when present, is
// display-ready text.
type PlayerEvent struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Me is the server's view of this participant, pushed on the personal
// identity channel after every handshake.
type Me struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	IsGuest   bool   `json:"isGuest"`
}
