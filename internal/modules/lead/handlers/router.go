package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Health       *HealthHandler
	Webhook      *WebhookHandler
	User         *UserHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	WS           *WSHandler
}

// SetupRoutes mounts the HTTP surface. API collection routes are
// registered with and without trailing slash for UI compatibility.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/", h.Health.Root)
	app.Get("/health-check", h.Health.HealthCheck)

	app.Get("/webhook", h.Webhook.Verify)
	app.Post("/webhook", h.Webhook.Receive)

	api := app.Group("/api")

	both := func(path string, method func(string, ...fiber.Handler) fiber.Router, handler fiber.Handler) {
		method(path, handler)
		method(path+"/", handler)
	}

	both("/users", api.Get, h.User.GetUsers)
	both("/users", api.Post, h.User.CreateUser)
	api.Get("/users/:id", h.User.GetUserByID)

	both("/conversations", api.Get, h.Conversation.GetConversations)
	both("/conversations", api.Post, h.Conversation.CreateConversation)
	api.Get("/conversations/:id", h.Conversation.GetConversationByID)
	api.Patch("/conversations/:id", h.Conversation.UpdateConversation)

	both("/messages", api.Get, h.Message.GetMessages)
	both("/messages", api.Post, h.Message.CreateMessage)
	api.Patch("/messages/:id/read", h.Message.MarkMessageRead)
	api.Delete("/messages/:id", h.Message.DeleteMessage)

	app.Get("/ws", h.WS.Upgrade, h.WS.Serve())
}
