package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/agent"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/auth"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/calendar"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/messaging"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/realtime"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/handlers"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/database"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/utils"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	utils.InitLogger()
	log.Printf("🚀 Starting lead-qualification-agent on port %s", cfg.Port)

	// Init database
	db := database.NewDB(cfg.StoreURL)
	defer db.Close()

	store := repositories.NewStore(db.GORM)

	// Init external clients
	messenger, err := messaging.NewCloudAPIClient(messaging.CloudAPIConfig{
		PhoneID:     cfg.MessagingPhoneNumberID,
		AccessToken: cfg.MessagingAccessToken,
	})
	if err != nil {
		log.Fatalf("❌ Failed to init messaging client: %v", err)
	}

	cal, err := calendar.NewClient(calendar.Config{
		TenantID:     cfg.CalendarTenantID,
		ClientID:     cfg.CalendarClientID,
		ClientSecret: cfg.CalendarClientSecret,
		UserEmail:    cfg.CalendarUserEmail,
		Timezone:     cfg.Timezone,
	})
	if err != nil {
		log.Fatalf("❌ Failed to init calendar client: %v", err)
	}

	// Init agent runtime
	llmService := llm.NewService()
	runtime := agent.NewRuntime(llmService, cfg.HistoryWindow)

	// Init fan-out hub and orchestrator
	hub := realtime.NewHub()
	mailbox := services.NewMailbox(2 * time.Minute)
	conversationService := services.NewConversationService(
		store, runtime, messenger, cal, hub, mailbox,
		services.ConversationConfig{
			HistoryWindow: cfg.HistoryWindow,
			SlotDuration:  time.Duration(cfg.SlotDurationMinutes) * time.Minute,
			WorkdayStart:  cfg.WorkdayStart,
			WorkdayEnd:    cfg.WorkdayEnd,
		},
	)

	dashboard := services.NewDashboardService(
		db.GORM, mailbox, conversationService.Metrics(), hub, cal.Location())

	// Background abandonment sweep and calendar reconciliation
	sweeper := services.NewAbandonSweeper(store, hub, conversationService)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("❌ Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Lead Qualification Agent",
	})

	handlers.SetupRoutes(app, handlers.Handlers{
		Health:       handlers.NewHealthHandler(db.GORM, cfg.MessagingAccessToken != "", cfg.CalendarClientID != ""),
		Webhook:      handlers.NewWebhookHandler(cfg.WebhookVerifyToken, cfg.MessagingAppSecret, conversationService, messenger),
		User:         handlers.NewUserHandler(store.Users),
		Conversation: handlers.NewConversationHandler(store.Conversations, conversationService),
		Message:      handlers.NewMessageHandler(store, conversationService),
		WS:           handlers.NewWSHandler(jwtService, hub, store, conversationService, dashboard, cal.Location()),
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("✅ lead-qualification-agent running at :%s", port)
	log.Fatal(app.Listen(":" + port))
}
