package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/identity"
	"github.com/pixelgrid/chatcore/internal/proto"
)

// WSHandler upgrades HTTP connections into a per-room event stream plus an
// inbound command channel. Everything it forwards goes through the same
// engine paths as the REST API.
//
// It is mounted on the plain net/http mux, not gin: the websocket upgrade
// hijacks the connection, which gin's wrapped ResponseWriter does not allow.
type WSHandler struct {
	engine *core.Engine
	codec  *identity.Codec
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(engine *core.Engine, codec *identity.Codec, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{engine: engine, codec: codec, log: logger}
}

// Handle serves GET /ws?room=<id>&token=<identity token>.
func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	who, reason := identityFromRequest(r, h.codec)
	if reason != "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: reason})
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "room is required"})
		return
	}
	if _, err := h.engine.Room(roomID); err != nil {
		status, body := statusForError(err)
		writeJSON(w, status, body)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sub := h.engine.Subscribe(roomID)
	defer sub.Close()

	h.engine.Heartbeat(roomID, who)
	defer h.engine.Disconnect(roomID, who.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, roomID, who)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reasonText := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reasonText = err.Error()
			h.log.Warn().Err(err).Str("user_id", who.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reasonText)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, roomID string, who core.Identity) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if err := h.dispatch(ctx, roomID, who, inbound); err != nil {
			if core.ErrorCode(err) == "" {
				return err
			}
			if writeErr := wsjson.Write(ctx, conn, outboundFromError(err)); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, roomID string, who core.Identity, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return err
		}
		_, err := h.engine.Append(ctx, roomID, who, msg.Content, core.MessageKind(msg.Kind), msg.ReplyTo)
		return err
	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &typing); err != nil {
				return err
			}
		}
		if typing.Stop {
			h.engine.ClearTyping(roomID, who.ID)
		} else {
			h.engine.SetTyping(roomID, who)
		}
		return nil
	case proto.InboundTypeHeartbeat:
		h.engine.Heartbeat(roomID, who)
		return nil
	case proto.InboundTypeRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return err
		}
		return h.engine.MarkRead(ctx, roomID, who.ID, read.ThroughSeq)
	default:
		h.log.Debug().Str("type", inbound.Type).Msg("unknown inbound frame")
		return nil
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *core.Subscription) error {
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
