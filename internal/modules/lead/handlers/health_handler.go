package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db                 *gorm.DB
	messagingReady     bool
	calendarConfigured bool
}

func NewHealthHandler(db *gorm.DB, messagingReady, calendarConfigured bool) *HealthHandler {
	return &HealthHandler{
		db:                 db,
		messagingReady:     messagingReady,
		calendarConfigured: calendarConfigured,
	}
}

// Root serves a welcome payload for probes hitting /.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "lead-qualification-agent",
		"status":  "ok",
	})
}

// HealthCheck reports per-integration status.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error"
	} else if err := sqlDB.PingContext(c.Context()); err != nil {
		dbStatus = "error"
	}

	boolStatus := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "not_configured"
	}

	status := fiber.StatusOK
	if dbStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status": dbStatus,
		"integrations": fiber.Map{
			"database":  dbStatus,
			"messaging": boolStatus(h.messagingReady),
			"calendar":  boolStatus(h.calendarConfigured),
		},
	})
}
