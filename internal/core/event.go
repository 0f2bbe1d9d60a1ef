package core

// EventKind is a notification the engine pushes to subscribers.
type EventKind int

const (
	// EventMessageNew announces a freshly appended message.
	EventMessageNew EventKind = iota
	// EventMessageEdited announces an edit of an existing message.
	EventMessageEdited
	// EventMessageDeleted announces a soft-delete.
	EventMessageDeleted
	// EventReactionChanged announces a reaction toggle on a message.
	EventReactionChanged
	// EventPresenceChanged announces a change in a room's presence set.
	EventPresenceChanged
	// EventRoomChanged announces room metadata or per-viewer flag changes.
	EventRoomChanged
)

// Event describes something that happened in a room. Events are scoped to a
// room so hosts subscribe per-room rather than globally.
type Event struct {
	Kind      EventKind
	RoomID    string
	Message   *Message
	MessageID string
	Reactions []ReactionCount
	Presence  []Presence
	UserID    string
}
