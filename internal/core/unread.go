package core

import "sync"

// NotificationCounter derives unread counts from read cursors. A cursor is
// a watermark: "read through seq N". Unread is always computed from the
// message log, never stored, so it cannot drift.
type NotificationCounter struct {
	store *MessageStore
	reg   *Registry

	mu      sync.RWMutex
	cursors map[flagKey]int64
}

// NewNotificationCounter constructs a counter over the given store and registry.
func NewNotificationCounter(store *MessageStore, reg *Registry) *NotificationCounter {
	return &NotificationCounter{
		store:   store,
		reg:     reg,
		cursors: make(map[flagKey]int64),
	}
}

// MarkRead advances the user's cursor to throughSeq. Cursors are monotonic;
// a stale mark never regresses one.
func (c *NotificationCounter) MarkRead(roomID, userID string, throughSeq int64) error {
	if _, ok := c.reg.Get(roomID); !ok {
		return coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := flagKey{roomID, userID}
	if throughSeq > c.cursors[key] {
		c.cursors[key] = throughSeq
	}
	return nil
}

// Cursor returns the user's last-read seq for the room.
func (c *NotificationCounter) Cursor(roomID, userID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursors[flagKey{roomID, userID}]
}

// RestoreCursor seeds a persisted cursor at startup.
func (c *NotificationCounter) RestoreCursor(roomID, userID string, seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := flagKey{roomID, userID}
	if seq > c.cursors[key] {
		c.cursors[key] = seq
	}
}

// UnreadCount counts messages past the user's cursor, excluding deleted
// messages and the user's own.
func (c *NotificationCounter) UnreadCount(roomID, userID string) int {
	return c.store.UnreadAfter(roomID, c.Cursor(roomID, userID), userID)
}

// TotalUnread sums unread counts over the rooms the user has joined.
func (c *NotificationCounter) TotalUnread(userID string) int {
	total := 0
	for _, roomID := range c.reg.JoinedRooms(userID) {
		total += c.UnreadCount(roomID, userID)
	}
	return total
}
