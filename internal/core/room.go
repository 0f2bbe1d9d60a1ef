package core

import "time"

// RoomKind classifies a room.
type RoomKind string

const (
	RoomKindGlobal   RoomKind = "global"
	RoomKindRegional RoomKind = "regional"
	RoomKindPrivate  RoomKind = "private"
	RoomKindGroup    RoomKind = "group"
)

// ModerationLevel controls how aggressively the host filters a room.
// The core only stores it; enforcement is the host's concern.
type ModerationLevel string

const (
	ModerationLow    ModerationLevel = "low"
	ModerationMedium ModerationLevel = "medium"
	ModerationHigh   ModerationLevel = "high"
)

// RoomSettings are per-room knobs set at creation time.
type RoomSettings struct {
	AllowImages     bool
	AllowFiles      bool
	AllowVoice      bool
	SlowModeSeconds int
	Moderation      ModerationLevel
}

// Room is the registry's view of a channel.
type Room struct {
	ID          string
	Name        string
	Kind        RoomKind
	Description string
	MemberCount int
	Settings    RoomSettings
	Archived    bool
	CreatedAt   time.Time
}

// RoomView is a Room enriched with the viewer's per-participant state.
type RoomView struct {
	Room
	IsMuted     bool
	IsPinned    bool
	UnreadCount int
}

// RoomSpec describes a room to create.
type RoomSpec struct {
	Name        string
	Kind        RoomKind
	Description string
	Settings    RoomSettings
}

func (k RoomKind) valid() bool {
	switch k {
	case RoomKindGlobal, RoomKindRegional, RoomKindPrivate, RoomKindGroup:
		return true
	}
	return false
}

func (m ModerationLevel) valid() bool {
	switch m {
	case ModerationLow, ModerationMedium, ModerationHigh:
		return true
	}
	return false
}

func (s RoomSpec) validate() error {
	if s.Name == "" {
		return coreError(ErrCodeInvalidRoomSpec, "room name is required")
	}
	if !s.Kind.valid() {
		return coreError(ErrCodeInvalidRoomSpec, "unknown room kind "+string(s.Kind))
	}
	if s.Settings.Moderation != "" && !s.Settings.Moderation.valid() {
		return coreError(ErrCodeInvalidRoomSpec, "unknown moderation level "+string(s.Settings.Moderation))
	}
	if s.Settings.SlowModeSeconds < 0 {
		return coreError(ErrCodeInvalidRoomSpec, "slow mode seconds must not be negative")
	}
	return nil
}
