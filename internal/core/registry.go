package core

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomFilter narrows a room listing.
type RoomFilter struct {
	Search string
	Kind   RoomKind
}

type participantFlags struct {
	muted  bool
	pinned bool
}

// Registry owns the set of rooms, membership and per-participant room flags.
// It is the leaf dependency for every other core component.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	members map[string]map[string]struct{}
	byUser  map[string]map[string]struct{}
	flags   map[flagKey]participantFlags
}

type flagKey struct {
	roomID string
	userID string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]map[string]struct{}),
		byUser:  make(map[string]map[string]struct{}),
		flags:   make(map[flagKey]participantFlags),
	}
}

// Create validates the spec, assigns an id and registers the room.
func (r *Registry) Create(spec RoomSpec) (Room, error) {
	if err := spec.validate(); err != nil {
		return Room{}, err
	}
	if spec.Settings.Moderation == "" {
		spec.Settings.Moderation = ModerationLow
	}

	room := Room{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Kind:        spec.Kind,
		Description: spec.Description,
		Settings:    spec.Settings,
		CreatedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	r.rooms[room.ID] = &room
	r.members[room.ID] = make(map[string]struct{})
	r.mu.Unlock()

	return room, nil
}

// Restore inserts an already-materialized room, used when loading the catalog
// at startup. The room keeps its persisted id and settings.
func (r *Registry) Restore(room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc := room
	r.rooms[rc.ID] = &rc
	if _, ok := r.members[rc.ID]; !ok {
		r.members[rc.ID] = make(map[string]struct{})
	}
}

// RestoreFlags seeds persisted per-participant flags at startup.
func (r *Registry) RestoreFlags(roomID, userID string, muted, pinned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[flagKey{roomID, userID}] = participantFlags{muted: muted, pinned: pinned}
}

// Get returns a copy of the room.
func (r *Registry) Get(roomID string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// Archive soft-archives a room. Rooms are never hard-deleted while members
// reference them; archived rooms drop out of listings but keep their state.
func (r *Registry) Archive(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	room.Archived = true
	return nil
}

// Join adds the user to the room. Joining twice is a no-op, not an error.
// Returns true when the user was newly added.
func (r *Registry) Join(roomID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false, coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	if _, exists := r.members[roomID][userID]; exists {
		return false, nil
	}
	r.members[roomID][userID] = struct{}{}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][roomID] = struct{}{}
	room.MemberCount++
	return true, nil
}

// Leave removes the user from the room.
func (r *Registry) Leave(roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	if _, exists := r.members[roomID][userID]; !exists {
		return nil
	}
	delete(r.members[roomID], userID)
	delete(r.byUser[userID], roomID)
	room.MemberCount--
	return nil
}

// SetMuted flips the viewer's mute flag for the room. The flag is
// per-participant: two users mute the same room independently.
func (r *Registry) SetMuted(roomID, userID string, muted bool) error {
	return r.setFlag(roomID, userID, func(f *participantFlags) { f.muted = muted })
}

// SetPinned flips the viewer's pin flag for the room.
func (r *Registry) SetPinned(roomID, userID string, pinned bool) error {
	return r.setFlag(roomID, userID, func(f *participantFlags) { f.pinned = pinned })
}

func (r *Registry) setFlag(roomID, userID string, mutate func(*participantFlags)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return coreError(ErrCodeRoomNotFound, "unknown room "+roomID)
	}
	key := flagKey{roomID, userID}
	f := r.flags[key]
	mutate(&f)
	r.flags[key] = f
	return nil
}

// Flags returns the viewer's mute/pin flags for the room.
func (r *Registry) Flags(roomID, userID string) (muted, pinned bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := r.flags[flagKey{roomID, userID}]
	return f.muted, f.pinned
}

// JoinedRooms returns the ids of rooms the user is a member of.
func (r *Registry) JoinedRooms(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether the user has joined the room.
func (r *Registry) IsMember(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[roomID][userID]
	return ok
}

// List returns the viewer's rooms matching the filter. Ordering is a hard
// contract: pinned-for-viewer first, then descending unread count, ties
// broken by name ascending. unread supplies the viewer's unread count per
// room; it is a parameter because unread math lives in NotificationCounter.
func (r *Registry) List(viewerID string, filter RoomFilter, unread func(roomID string) int) []RoomView {
	r.mu.RLock()
	views := make([]RoomView, 0, len(r.rooms))
	search := strings.ToLower(filter.Search)
	for _, room := range r.rooms {
		if room.Archived {
			continue
		}
		if filter.Kind != "" && room.Kind != filter.Kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(room.Name), search) {
			continue
		}
		f := r.flags[flagKey{room.ID, viewerID}]
		views = append(views, RoomView{
			Room:     *room,
			IsMuted:  f.muted,
			IsPinned: f.pinned,
		})
	}
	r.mu.RUnlock()

	// Unread counts are computed outside the registry lock; the counter
	// takes its own locks on the message log.
	if unread != nil {
		for i := range views {
			views[i].UnreadCount = unread(views[i].ID)
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if a.UnreadCount != b.UnreadCount {
			return a.UnreadCount > b.UnreadCount
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return views
}
