package proto

// Publish destinations (client → server commands).
const (
	DestChatSend         = "/app/chat"
	DestChatHistoryFetch = "/app/chat/history/fetch"
	DestPlayerNext       = "/app/control/next"
	DestPlayerPause      = "/app/control/toggle-pause"
	DestPlayerShuffle    = "/app/control/toggle-shuffle"
	DestPlayerLike       = "/app/control/like"
	DestEnqueue          = "/app/enqueue"
	DestEnqueuePlaylist  = "/app/enqueue/playlist"
	DestQueueTop         = "/app/queue/top"
	DestQueueRemove      = "/app/queue/remove"
	DestUserBind         = "/app/user/bind"
	DestUserRename       = "/app/user/rename"
	DestResync           = "/app/player/resync"
	DestUserMe           = "/app/user/me"
)

// Subscribe destinations (server → client pushes).
const (
	TopicEvents = "/topic/player/events"
	TopicState  = "/topic/player/state"
	TopicQueue  = "/topic/player/queue"
	TopicUsers  = "/topic/users/online"
	TopicChat   = "/topic/chat"

	// Personal queues, routed to this session only.
	UserMeUpdate    = "/user/queue/me"
	UserState       = "/user/queue/player/state"
	UserChatHistory = "/user/queue/chat/history"
	UserEvents      = "/user/queue/events"
	UserPrivateChat = "/user/queue/chat/private"
)

// Connect header names carried on the STOMP CONNECT frame.
const (
	HeaderUserToken    = "user-token"
	HeaderUserName     = "user-name"
	HeaderRoomPassword = "room-password"
)

// ErrInvalidRoomPassword is the ERROR frame body the server sends when the
// room-password header is rejected at handshake.
const ErrInvalidRoomPassword = "INVALID_ROOM_PASSWORD"
