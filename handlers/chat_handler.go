package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/medichat/middleware"
	"github.com/anjiri1684/medichat/models"
	"github.com/anjiri1684/medichat/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

// PresenceLookup answers cross-instance presence queries.
type PresenceLookup interface {
	Online(ctx context.Context, userID uuid.UUID) (bool, error)
}

type ChatHandler struct {
	chat        *services.ChatService
	transcripts *services.TranscriptService
	presence    PresenceLookup
	log         *zap.SugaredLogger
}

func NewChatHandler(chat *services.ChatService, transcripts *services.TranscriptService, presence PresenceLookup, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{chat: chat, transcripts: transcripts, presence: presence, log: log}
}

type SendMessageRequest struct {
	ReceiverID string  `json:"receiver_id" validate:"required,uuid"`
	Message    string  `json:"message" validate:"max=4000"`
	ImageURL   *string `json:"image_url" validate:"omitempty,url"`
	AudioURL   *string `json:"audio_url" validate:"omitempty,url"`
	BookingID  *string `json:"booking_id" validate:"omitempty,uuid"`
}

func (r SendMessageRequest) toService() services.SendRequest {
	req := services.SendRequest{
		ReceiverID: uuid.MustParse(r.ReceiverID),
		Text:       r.Message,
		ImageURL:   r.ImageURL,
		AudioURL:   r.AudioURL,
	}
	if r.BookingID != nil {
		id := uuid.MustParse(*r.BookingID)
		req.BookingID = &id
	}
	return req
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	sender, err := middleware.Principal(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	msg, err := h.chat.Send(c.UserContext(), sender, req.toService())
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	caller, doctorID, patientID, err := h.pair(c, "patientId")
	if err != nil {
		return h.fail(c, err)
	}
	messages, err := h.chat.Fetch(c.UserContext(), caller, doctorID, patientID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(messages)
}

// GetParticipants lists a doctor's contacts. Only that doctor may ask.
func (h *ChatHandler) GetParticipants(c *fiber.Ctx) error {
	caller, err := middleware.Principal(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}
	doctorID, err := uuid.Parse(c.Params("doctorId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid doctor ID"})
	}
	if caller.Kind != models.DoctorKind || caller.ID != doctorID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: not your contact list"})
	}
	profiles, err := h.chat.Contacts(c.UserContext(), doctorID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(profiles)
}

func (h *ChatHandler) GetUnreadTotal(c *fiber.Ctx) error {
	caller, err := middleware.Principal(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}
	n, err := h.chat.UnreadTotal(c.UserContext(), caller)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

func (h *ChatHandler) GetUnreadCount(c *fiber.Ctx) error {
	caller, doctorID, userID, err := h.pair(c, "userId")
	if err != nil {
		return h.fail(c, err)
	}
	n, err := h.chat.UnreadCount(c.UserContext(), caller, doctorID, userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	caller, doctorID, userID, err := h.pair(c, "userId")
	if err != nil {
		return h.fail(c, err)
	}
	n, err := h.chat.MarkRead(c.UserContext(), caller, doctorID, userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"marked": n})
}

func (h *ChatHandler) ClearConversation(c *fiber.Ctx) error {
	caller, doctorID, userID, err := h.pair(c, "userId")
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.chat.Clear(c.UserContext(), caller, doctorID, userID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Conversation cleared"})
}

func (h *ChatHandler) GetTranscript(c *fiber.Ctx) error {
	caller, doctorID, patientID, err := h.pair(c, "patientId")
	if err != nil {
		return h.fail(c, err)
	}
	pdf, err := h.transcripts.Render(c.UserContext(), caller, doctorID, patientID)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"chat_%s_%s.pdf\"", doctorID, patientID))
	return c.Send(pdf)
}

func (h *ChatHandler) GetPresence(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	online := h.chat.Online(userID)
	if !online && h.presence != nil {
		online, err = h.presence.Online(c.UserContext(), userID)
		if err != nil {
			h.log.Warnw("presence lookup failed", "user_id", userID, "error", err)
		}
	}
	return c.JSON(fiber.Map{"user_id": userID, "online": online})
}

// pair reads the caller and the doctor/other-participant path params.
func (h *ChatHandler) pair(c *fiber.Ctx, other string) (models.Participant, uuid.UUID, uuid.UUID, error) {
	caller, err := middleware.Principal(c)
	if err != nil {
		return caller, uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	doctorID, err := uuid.Parse(c.Params("doctorId"))
	if err != nil {
		return caller, uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid doctor ID")
	}
	otherID, err := uuid.Parse(c.Params(other))
	if err != nil {
		return caller, uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid user ID")
	}
	return caller, doctorID, otherID, nil
}

func (h *ChatHandler) fail(c *fiber.Ctx, err error) error {
	status, body := classify(h.log, err)
	return c.Status(status).JSON(fiber.Map{"error": body})
}

// classify maps service errors to a status and a caller-safe message.
func classify(log *zap.SugaredLogger, err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, services.ErrInvalidMessage):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden: not a participant in this conversation"
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, "Doctor not found"
	}
	log.Errorw("chat request failed", "error", err)
	return fiber.StatusInternalServerError, "Internal server error"
}
