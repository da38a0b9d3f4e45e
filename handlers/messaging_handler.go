package handlers

import (
	"context"
	"time"

	"github.com/anjiri1684/medichat/middleware"
	"github.com/anjiri1684/medichat/services"
	"github.com/anjiri1684/medichat/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	frameJoin = "join"
	frameSend = "send"

	sendTimeout = 10 * time.Second
)

// clientFrame is anything a client may send over the live channel.
type clientFrame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
	SendMessageRequest
}

type RealtimeHandler struct {
	hub    *websocket.Hub
	chat   *services.ChatService
	secret string
	buffer int
	log    *zap.SugaredLogger
}

func NewRealtimeHandler(hub *websocket.Hub, chat *services.ChatService, secret string, buffer int, log *zap.SugaredLogger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, chat: chat, secret: secret, buffer: buffer, log: log}
}

func errorEvent(msg string) websocket.Event {
	return websocket.Event{Event: websocket.ErrorEvent, Data: fiber.Map{"error": msg}}
}

// ServeWs authenticates the join frame, binds the session to the caller's
// channel and then accepts send frames until the connection drops.
func (h *RealtimeHandler) ServeWs(c *websocketcontrib.Conn) {
	var join clientFrame
	if err := c.ReadJSON(&join); err != nil || join.Type != frameJoin {
		h.log.Debugw("websocket join failed: invalid or missing join frame", "error", err, "type", join.Type)
		_ = c.WriteJSON(errorEvent("Invalid or missing join message"))
		_ = c.Close()
		return
	}

	caller, err := middleware.ParseToken(h.secret, join.Token)
	if err != nil {
		h.log.Debugw("websocket join failed: invalid token", "error", err)
		_ = c.WriteJSON(errorEvent("Invalid token"))
		_ = c.Close()
		return
	}
	if join.UserID != "" {
		if id, err := uuid.Parse(join.UserID); err != nil || id != caller.ID {
			h.log.Debugw("websocket join failed: user mismatch", "claimed", join.UserID, "user_id", caller.ID)
			_ = c.WriteJSON(errorEvent("User ID does not match token"))
			_ = c.Close()
			return
		}
	}

	client := websocket.NewClient(caller.ID, c, h.buffer)
	client.Notify(websocket.Event{Event: websocket.JoinedEvent, Data: fiber.Map{
		"session_id": client.SessionID,
		"user_id":    caller.ID,
	}})
	h.hub.Join(client)
	h.log.Infow("websocket session joined", "session_id", client.SessionID, "participant", caller.String())

	pumped := make(chan struct{})
	go func() {
		client.WritePump()
		close(pumped)
	}()
	defer func() {
		h.hub.Leave(client)
		<-pumped
		h.log.Infow("websocket session closed", "session_id", client.SessionID, "participant", caller.String())
	}()

	for {
		var frame clientFrame
		if err := c.ReadJSON(&frame); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure, websocketcontrib.CloseAbnormalClosure) {
				h.log.Debugw("websocket closed", "session_id", client.SessionID, "error", err)
			} else {
				h.log.Debugw("websocket read error", "session_id", client.SessionID, "error", err)
			}
			return
		}

		switch frame.Type {
		case frameSend:
			if err := validate.Struct(frame.SendMessageRequest); err != nil {
				client.Notify(errorEvent(err.Error()))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			_, err := h.chat.Send(ctx, caller, frame.SendMessageRequest.toService())
			cancel()
			if err != nil {
				_, msg := classify(h.log, err)
				client.Notify(errorEvent(msg))
			}
		case frameJoin:
		default:
			client.Notify(errorEvent("Unknown message type"))
		}
	}
}
