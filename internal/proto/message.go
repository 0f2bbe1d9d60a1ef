package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeMsg       = "msg"
	InboundTypeTyping    = "typing"
	InboundTypeHeartbeat = "heartbeat"
	InboundTypeRead      = "read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// MsgData is a chat message from the client.
type MsgData struct {
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// TypingData signals typing start or stop.
type TypingData struct {
	Stop bool `json:"stop,omitempty"`
}

// ReadData advances the read cursor.
type ReadData struct {
	ThroughSeq int64 `json:"through_seq"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code       string  `json:"code"`
	Msg        string  `json:"msg"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

// Message is the wire form of a room message.
type Message struct {
	ID       string   `json:"id"`
	RoomID   string   `json:"room_id"`
	Seq      int64    `json:"seq"`
	Author   Author   `json:"author"`
	Content  string   `json:"content"`
	Kind     string   `json:"kind"`
	SentAt   int64    `json:"sent_at"`
	EditedAt *int64   `json:"edited_at,omitempty"`
	Deleted  bool     `json:"deleted,omitempty"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

// Author is the wire form of an identity snapshot.
type Author struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Level    int    `json:"level,omitempty"`
	Premium  bool   `json:"premium,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// Reaction is one emoji aggregate on a message.
type Reaction struct {
	Emoji    string   `json:"emoji"`
	Count    int      `json:"count"`
	Reactors []string `json:"reactors,omitempty"`
}

// PresenceEntry is the wire form of one participant's presence.
type PresenceEntry struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status"`
	Typing   bool   `json:"typing,omitempty"`
	LastSeen int64  `json:"last_seen"`
}

// EventReaction announces a reaction change.
type EventReaction struct {
	MessageID string     `json:"message_id"`
	UserID    string     `json:"user_id,omitempty"`
	Reactions []Reaction `json:"reactions"`
}

// EventPresence announces a presence set change.
type EventPresence struct {
	RoomID   string          `json:"room_id"`
	Presence []PresenceEntry `json:"presence"`
}

// EventDeleted announces a soft-delete.
type EventDeleted struct {
	MessageID string `json:"message_id"`
}

// EventRoom announces room metadata or per-viewer flag changes.
type EventRoom struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id,omitempty"`
}
