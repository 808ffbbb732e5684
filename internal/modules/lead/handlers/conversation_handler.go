package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
)

type ConversationHandler struct {
	conversations repositories.ConversationRepo
	service       *services.ConversationService
}

func NewConversationHandler(conversations repositories.ConversationRepo, service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, service: service}
}

// GetConversations lists conversations, optionally filtered by user.
func (h *ConversationHandler) GetConversations(c *fiber.Ctx) error {
	if rawUserID := c.Query("user_id"); rawUserID != "" {
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			return badRequest(c, "invalid user_id")
		}
		conversations, err := h.conversations.ListByUser(c.Context(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(conversations)
	}

	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)
	conversations, err := h.conversations.List(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conversations)
}

// GetConversationByID returns a single conversation.
func (h *ConversationHandler) GetConversationByID(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}
	conv, err := h.conversations.GetByID(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}

type createConversationRequest struct {
	Platform   string `json:"platform"`
	ExternalID string `json:"external_id" validate:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
}

// CreateConversation opens (or returns) the active conversation for a
// party. A newly opened conversation receives the welcome message.
func (h *ConversationHandler) CreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Phone == "" && req.Email == "" {
		return badRequest(c, "at least one of phone or email is required")
	}

	conv, err := h.service.OpenConversation(c.Context(), repositories.Party{
		Platform:   req.Platform,
		ExternalID: req.ExternalID,
		Phone:      req.Phone,
		Email:      req.Email,
		FullName:   req.FullName,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

type updateConversationRequest struct {
	AgentEnabled *bool `json:"agent_enabled"`
}

// UpdateConversation toggles operator takeover.
func (h *ConversationHandler) UpdateConversation(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return badRequest(c, "invalid conversation id")
	}
	var req updateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentEnabled == nil {
		return badRequest(c, "agent_enabled is required")
	}

	conv, err := h.service.SetAgentEnabled(c.Context(), id, *req.AgentEnabled)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(conv)
}
