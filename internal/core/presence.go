package core

import (
	"sync"
	"time"
)

// PresenceStatus is the derived per-room state of a participant.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// Presence is a point-in-time view of one participant in one room.
type Presence struct {
	UserID   string
	Name     string
	Status   PresenceStatus
	Typing   bool
	LastSeen time.Time
}

// presenceLease is the stored fact behind a Presence. Everything here is
// leased: typing expires on its own deadline, the whole entry expires when
// heartbeats stop. No clean-shutdown signal is ever required.
type presenceLease struct {
	identity    Identity
	lastSeen    time.Time
	typingUntil time.Time
	away        bool
}

// PresenceTracker tracks who is connected, typing or away per room.
// All state is ephemeral; expiry is evaluated lazily on read.
type PresenceTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]*presenceLease

	typingTTL   time.Duration
	presenceTTL time.Duration
	now         func() time.Time
}

const (
	// DefaultTypingTTL is how long a typing signal stays live without renewal.
	DefaultTypingTTL = 3 * time.Second
	// DefaultPresenceTTL is how long a participant stays present without a heartbeat.
	DefaultPresenceTTL = 45 * time.Second
)

// NewPresenceTracker constructs a tracker. Zero durations fall back to the
// defaults.
func NewPresenceTracker(typingTTL, presenceTTL time.Duration) *PresenceTracker {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	if presenceTTL <= 0 {
		presenceTTL = DefaultPresenceTTL
	}
	return &PresenceTracker{
		rooms:       make(map[string]map[string]*presenceLease),
		typingTTL:   typingTTL,
		presenceTTL: presenceTTL,
		now:         time.Now,
	}
}

func (t *PresenceTracker) lease(roomID string, who Identity) *presenceLease {
	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]*presenceLease)
		t.rooms[roomID] = room
	}
	l, ok := room[who.ID]
	if !ok {
		l = &presenceLease{identity: who}
		room[who.ID] = l
	}
	return l
}

// Heartbeat refreshes the participant's presence lease, bringing them online
// if they had expired. Returns true when the observable status changed.
func (t *PresenceTracker) Heartbeat(roomID string, who Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	room := t.rooms[roomID]
	l, ok := room[who.ID]
	changed := !ok || l.away || now.Sub(l.lastSeen) > t.presenceTTL
	l = t.lease(roomID, who)
	l.identity = who
	l.lastSeen = now
	l.away = false
	return changed
}

// SetTyping (re)starts the typing lease. Concurrent calls extend the lease,
// they do not stack. Returns true when the participant was not typing before.
func (t *PresenceTracker) SetTyping(roomID string, who Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	l := t.lease(roomID, who)
	wasTyping := l.typingUntil.After(now)
	l.identity = who
	l.lastSeen = now
	l.typingUntil = now.Add(t.typingTTL)
	return !wasTyping
}

// ClearTyping ends the typing lease early. The lease would expire on its own;
// an explicit clear just tightens the UI.
func (t *PresenceTracker) ClearTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.rooms[roomID][userID]
	if !ok {
		return false
	}
	wasTyping := l.typingUntil.After(t.now())
	l.typingUntil = time.Time{}
	return wasTyping
}

// SetAway marks the participant away until the next heartbeat.
func (t *PresenceTracker) SetAway(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.rooms[roomID][userID]
	if !ok || l.away {
		return false
	}
	l.away = true
	return true
}

// Disconnect drops the participant's lease immediately.
func (t *PresenceTracker) Disconnect(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rooms[roomID][userID]; !ok {
		return false
	}
	delete(t.rooms[roomID], userID)
	return true
}

// Snapshot returns the live participants of a room. Expired leases are
// purged on the way out, so the result matches lazy-expiry semantics even
// when nobody ever sent an explicit clear.
func (t *PresenceTracker) Snapshot(roomID string) []Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(roomID)
}

func (t *PresenceTracker) snapshotLocked(roomID string) []Presence {
	now := t.now()
	room := t.rooms[roomID]
	out := make([]Presence, 0, len(room))
	for userID, l := range room {
		if now.Sub(l.lastSeen) > t.presenceTTL {
			delete(room, userID)
			continue
		}
		status := StatusOnline
		if l.away {
			status = StatusAway
		}
		out = append(out, Presence{
			UserID:   userID,
			Name:     l.identity.Name,
			Status:   status,
			Typing:   l.typingUntil.After(now),
			LastSeen: l.lastSeen,
		})
	}
	return out
}

// Sweep purges expired leases across all rooms and returns the ids of rooms
// whose membership or typing set changed. The engine uses it to push
// presence-changed events without waiting for the next read.
func (t *PresenceTracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var changed []string
	for roomID, room := range t.rooms {
		dirty := false
		for userID, l := range room {
			if now.Sub(l.lastSeen) > t.presenceTTL {
				delete(room, userID)
				dirty = true
				continue
			}
			if !l.typingUntil.IsZero() && !l.typingUntil.After(now) {
				l.typingUntil = time.Time{}
				dirty = true
			}
		}
		if dirty {
			changed = append(changed, roomID)
		}
	}
	return changed
}
