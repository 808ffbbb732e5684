package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
)

type UserHandler struct {
	users repositories.UserRepo
}

func NewUserHandler(users repositories.UserRepo) *UserHandler {
	return &UserHandler{users: users}
}

// GetUsers returns all users, paginated.
func (h *UserHandler) GetUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)

	users, err := h.users.List(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetUserByID returns a single user.
func (h *UserHandler) GetUserByID(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	user, err := h.users.GetByID(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

type createUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,min=6"`
	Email    string `json:"email" validate:"omitempty,email"`
	Company  string `json:"company"`
}

// CreateUser registers a user. At least one of phone/email is required.
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Phone == "" && req.Email == "" {
		return badRequest(c, "at least one of phone or email is required")
	}

	user := &models.User{FullName: req.FullName}
	if req.Phone != "" {
		phone := req.Phone
		user.Phone = &phone
	}
	if req.Email != "" {
		email := req.Email
		user.Email = &email
	}
	if req.Company != "" {
		company := req.Company
		user.Company = &company
	}

	if err := h.users.Create(c.Context(), user); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}
