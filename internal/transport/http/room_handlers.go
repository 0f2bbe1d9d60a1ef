package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelgrid/chatcore/internal/core"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	engine *core.Engine
	log    *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(engine *core.Engine, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{engine: engine, log: logger}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=64"`
	Kind        string `json:"kind" binding:"required"`
	Description string `json:"description"`
	Settings    struct {
		AllowImages     bool   `json:"allow_images"`
		AllowFiles      bool   `json:"allow_files"`
		AllowVoice      bool   `json:"allow_voice"`
		SlowModeSeconds int    `json:"slow_mode_seconds"`
		Moderation      string `json:"moderation"`
	} `json:"settings"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"member_count"`
	IsMuted     bool   `json:"is_muted"`
	IsPinned    bool   `json:"is_pinned"`
	UnreadCount int    `json:"unread_count"`
	Settings    struct {
		AllowImages     bool   `json:"allow_images"`
		AllowFiles      bool   `json:"allow_files"`
		AllowVoice      bool   `json:"allow_voice"`
		SlowModeSeconds int    `json:"slow_mode_seconds"`
		Moderation      string `json:"moderation"`
	} `json:"settings"`
	CreatedAt string `json:"created_at"`
}

func roomResponse(view core.RoomView) RoomResponse {
	resp := RoomResponse{
		ID:          view.ID,
		Name:        view.Name,
		Kind:        string(view.Kind),
		Description: view.Description,
		MemberCount: view.MemberCount,
		IsMuted:     view.IsMuted,
		IsPinned:    view.IsPinned,
		UnreadCount: view.UnreadCount,
		CreatedAt:   view.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	resp.Settings.AllowImages = view.Settings.AllowImages
	resp.Settings.AllowFiles = view.Settings.AllowFiles
	resp.Settings.AllowVoice = view.Settings.AllowVoice
	resp.Settings.SlowModeSeconds = view.Settings.SlowModeSeconds
	resp.Settings.Moderation = string(view.Settings.Moderation)
	return resp
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	spec := core.RoomSpec{
		Name:        req.Name,
		Kind:        core.RoomKind(req.Kind),
		Description: req.Description,
		Settings: core.RoomSettings{
			AllowImages:     req.Settings.AllowImages,
			AllowFiles:      req.Settings.AllowFiles,
			AllowVoice:      req.Settings.AllowVoice,
			SlowModeSeconds: req.Settings.SlowModeSeconds,
			Moderation:      core.ModerationLevel(req.Settings.Moderation),
		},
	}

	room, err := h.engine.CreateRoom(c.Request.Context(), spec)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}

	h.log.Info().Str("room_id", room.ID).Str("creator", who.ID).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(core.RoomView{Room: room}))
}

// ListRooms handles listing rooms for the caller.
// GET /api/rooms?search=&kind=
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}

	filter := core.RoomFilter{
		Search: c.Query("search"),
		Kind:   core.RoomKind(c.Query("kind")),
	}

	views := h.engine.ListRooms(who.ID, filter)
	response := make([]RoomResponse, 0, len(views))
	for _, view := range views {
		response = append(response, roomResponse(view))
	}
	c.JSON(http.StatusOK, response)
}

// JoinRoom handles joining a room.
// POST /api/rooms/:id/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	if err := h.engine.Join(c.Request.Context(), c.Param("id"), who); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}

// LeaveRoom handles leaving a room.
// POST /api/rooms/:id/leave
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	if err := h.engine.Leave(c.Request.Context(), c.Param("id"), who); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}

// FlagRequest represents a mute or pin toggle body.
type FlagRequest struct {
	Value bool `json:"value"`
}

// SetMuted flips the caller's mute flag for the room.
// PUT /api/rooms/:id/mute
func (h *RoomHandlers) SetMuted(c *gin.Context) {
	h.setFlag(c, h.engine.SetMuted)
}

// SetPinned flips the caller's pin flag for the room.
// PUT /api/rooms/:id/pin
func (h *RoomHandlers) SetPinned(c *gin.Context) {
	h.setFlag(c, h.engine.SetPinned)
}

func (h *RoomHandlers) setFlag(c *gin.Context, set func(ctx context.Context, roomID, userID string, value bool) error) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := set(c.Request.Context(), c.Param("id"), who.ID, req.Value); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}

// ArchiveRoom soft-archives a room.
// POST /api/rooms/:id/archive
func (h *RoomHandlers) ArchiveRoom(c *gin.Context) {
	if _, ok := mustIdentity(c); !ok {
		return
	}
	if err := h.engine.ArchiveRoom(c.Request.Context(), c.Param("id")); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}
