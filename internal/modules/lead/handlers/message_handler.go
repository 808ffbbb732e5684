package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
)

type MessageHandler struct {
	store   *repositories.Store
	service *services.ConversationService
}

func NewMessageHandler(store *repositories.Store, service *services.ConversationService) *MessageHandler {
	return &MessageHandler{store: store, service: service}
}

// GetMessages lists a conversation's messages, oldest first.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	rawConversationID := c.Query("conversation_id")
	if rawConversationID == "" {
		return badRequest(c, "conversation_id is required")
	}
	conversationID, err := uuid.Parse(rawConversationID)
	if err != nil {
		return badRequest(c, "invalid conversation_id")
	}

	limit := c.QueryInt("limit", 200)
	messages, err := h.store.Messages.ListByConversation(c.Context(), conversationID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(messages)
}

type createMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,uuid"`
	Content        string `json:"content" validate:"required"`
	MessageType    string `json:"message_type"`
}

// CreateMessage ingests a user message sent from the browser chat. The
// agent turn runs asynchronously; clients receive the reply as an event.
func (h *MessageHandler) CreateMessage(c *fiber.Ctx) error {
	var req createMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	conversationID := uuid.MustParse(req.ConversationID)
	conv, err := h.store.Conversations.GetByID(c.Context(), conversationID)
	if err != nil {
		return respondError(c, err)
	}
	user, err := h.store.Users.GetByID(c.Context(), conv.UserID)
	if err != nil {
		return respondError(c, err)
	}

	party := repositories.Party{
		Platform:   conv.Platform,
		ExternalID: conv.ExternalID,
		FullName:   user.FullName,
	}
	if user.Phone != nil {
		party.Phone = *user.Phone
	}
	if user.Email != nil {
		party.Email = *user.Email
	}

	msg, err := h.service.Ingest(c.Context(), services.InboundMessage{
		Party:       party,
		Content:     req.Content,
		MessageType: req.MessageType,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkMessageRead flags a message as read. Idempotent.
func (h *MessageHandler) MarkMessageRead(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return badRequest(c, "invalid message id")
	}
	msg, err := h.store.Messages.MarkRead(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage tombstones a message.
func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return badRequest(c, "invalid message id")
	}
	if err := h.service.DeleteMessage(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
