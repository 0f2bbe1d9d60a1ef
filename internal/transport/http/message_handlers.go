package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/proto"
)

// MessageHandlers provides HTTP handlers for messages, reactions, read
// cursors and presence.
type MessageHandlers struct {
	engine *core.Engine
	log    *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(engine *core.Engine, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{engine: engine, log: logger}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content"`
	Kind    string `json:"kind"`
	ReplyTo string `json:"reply_to"`
}

// SendMessage appends a message to the room.
// POST /api/rooms/:id/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.engine.Append(c.Request.Context(), c.Param("id"), who, req.Content, core.MessageKind(req.Kind), req.ReplyTo)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, protoMessage(msg))
}

// History pages the room log.
// GET /api/rooms/:id/messages?after_seq=&limit=
func (h *MessageHandlers) History(c *gin.Context) {
	if _, ok := mustIdentity(c); !ok {
		return
	}
	afterSeq, _ := strconv.ParseInt(c.Query("after_seq"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, err := h.engine.History(c.Param("id"), afterSeq, limit)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}

	out := make([]proto.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, protoMessage(msg))
	}
	c.JSON(http.StatusOK, out)
}

// EditMessageRequest represents the edit request body.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// EditMessage rewrites the caller's own message.
// PUT /api/messages/:id
func (h *MessageHandlers) EditMessage(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.engine.Edit(c.Param("id"), req.Content, who.ID)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, protoMessage(msg))
}

// DeleteMessage soft-deletes the caller's own message.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	if err := h.engine.SoftDelete(c.Param("id"), who.ID); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleReactionRequest represents the reaction toggle body.
type ToggleReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ToggleReactionResponse reports the toggle outcome plus the new summary.
type ToggleReactionResponse struct {
	Added     bool             `json:"added"`
	Reactions []proto.Reaction `json:"reactions"`
}

// ToggleReaction flips the caller's emoji reaction.
// POST /api/messages/:id/reactions
func (h *MessageHandlers) ToggleReaction(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	var req ToggleReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	added, err := h.engine.ToggleReaction(c.Param("id"), who.ID, req.Emoji)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, ToggleReactionResponse{
		Added:     added,
		Reactions: protoReactions(h.engine.Reactions(c.Param("id"))),
	})
}

// MarkReadRequest represents the mark-read body.
type MarkReadRequest struct {
	ThroughSeq int64 `json:"through_seq"`
}

// MarkRead advances the caller's read cursor.
// POST /api/rooms/:id/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.engine.MarkRead(c.Request.Context(), c.Param("id"), who.ID, req.ThroughSeq); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadResponse reports one room's unread count.
type UnreadResponse struct {
	RoomID string `json:"room_id,omitempty"`
	Unread int    `json:"unread"`
}

// Unread reports the caller's unread count in one room.
// GET /api/rooms/:id/unread
func (h *MessageHandlers) Unread(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	if _, err := h.engine.Room(roomID); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, UnreadResponse{RoomID: roomID, Unread: h.engine.UnreadCount(roomID, who.ID)})
}

// TotalUnread reports the caller's unread sum over joined rooms.
// GET /api/unread
func (h *MessageHandlers) TotalUnread(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, UnreadResponse{Unread: h.engine.TotalUnread(who.ID)})
}

// Presence reads the room's live participants.
// GET /api/rooms/:id/presence
func (h *MessageHandlers) Presence(c *gin.Context) {
	who, ok := mustIdentity(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	if _, err := h.engine.Room(roomID); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	// Reading presence is itself a liveness signal.
	h.engine.Heartbeat(roomID, who)
	c.JSON(http.StatusOK, protoPresence(h.engine.PresenceSnapshot(roomID)))
}
