package http

import (
	"errors"
	"net/http"

	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/proto"
)

// statusForError maps domain error codes to HTTP statuses.
func statusForError(err error) (int, ErrorResponse) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}

	body := ErrorResponse{Error: ce.Message, Code: ce.Code}
	if ce.RetryAfter > 0 {
		body.RetryAfter = ce.RetryAfter.Seconds()
	}

	switch ce.Code {
	case core.ErrCodeInvalidRoomSpec, core.ErrCodeEmptyMessage, core.ErrCodeKindNotAllowed:
		return http.StatusBadRequest, body
	case core.ErrCodeRoomNotFound, core.ErrCodeMessageNotFound:
		return http.StatusNotFound, body
	case core.ErrCodeForbidden:
		return http.StatusForbidden, body
	case core.ErrCodeSlowMode, core.ErrCodeRateLimited:
		return http.StatusTooManyRequests, body
	default:
		return http.StatusInternalServerError, body
	}
}

func protoAuthor(id core.Identity) proto.Author {
	return proto.Author{
		ID:       id.ID,
		Name:     id.Name,
		Avatar:   id.Avatar,
		Level:    id.Level,
		Premium:  id.Premium,
		Verified: id.Verified,
	}
}

func protoMessage(m core.Message) proto.Message {
	out := proto.Message{
		ID:       m.ID,
		RoomID:   m.RoomID,
		Seq:      m.Seq,
		Author:   protoAuthor(m.Author),
		Content:  m.Content,
		Kind:     string(m.Kind),
		SentAt:   m.SentAt.Unix(),
		Deleted:  m.Deleted,
		ReplyTo:  m.ReplyTo,
		Mentions: m.Mentions,
	}
	if m.EditedAt != nil {
		edited := m.EditedAt.Unix()
		out.EditedAt = &edited
	}
	return out
}

func protoReactions(counts []core.ReactionCount) []proto.Reaction {
	out := make([]proto.Reaction, 0, len(counts))
	for _, rc := range counts {
		out = append(out, proto.Reaction{Emoji: rc.Emoji, Count: rc.Count, Reactors: rc.Reactors})
	}
	return out
}

func protoPresence(entries []core.Presence) []proto.PresenceEntry {
	out := make([]proto.PresenceEntry, 0, len(entries))
	for _, p := range entries {
		out = append(out, proto.PresenceEntry{
			UserID:   p.UserID,
			Name:     p.Name,
			Status:   string(p.Status),
			Typing:   p.Typing,
			LastSeen: p.LastSeen.Unix(),
		})
	}
	return out
}

// outboundFromEvent converts an engine event into a wire frame.
func outboundFromEvent(event core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageNew, core.EventMessageEdited:
		name := "message"
		if event.Kind == core.EventMessageEdited {
			name = "message_edited"
		}
		if event.Message == nil {
			return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  protoMessage(*event.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "message_deleted",
			Data:  proto.EventDeleted{MessageID: event.MessageID},
		}
	case core.EventReactionChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "reaction_changed",
			Data: proto.EventReaction{
				MessageID: event.MessageID,
				UserID:    event.UserID,
				Reactions: protoReactions(event.Reactions),
			},
		}
	case core.EventPresenceChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "presence_changed",
			Data: proto.EventPresence{
				RoomID:   event.RoomID,
				Presence: protoPresence(event.Presence),
			},
		}
	case core.EventRoomChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: "room_changed",
			Data:  proto.EventRoom{RoomID: event.RoomID, UserID: event.UserID},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

// outboundFromError converts a domain error into a wire error frame.
func outboundFromError(err error) proto.Outbound {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "internal", Msg: "internal error"},
		}
	}
	pe := &proto.Error{Code: ce.Code, Msg: ce.Message}
	if ce.RetryAfter > 0 {
		pe.RetryAfter = ce.RetryAfter.Seconds()
	}
	return proto.Outbound{Type: proto.OutboundTypeError, Error: pe}
}
