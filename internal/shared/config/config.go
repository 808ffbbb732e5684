package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Store (Postgres)
	StoreURL        string
	StoreServiceKey string

	// Messaging provider (WhatsApp Cloud API)
	WebhookVerifyToken     string
	MessagingAccessToken   string
	MessagingAppSecret     string
	MessagingPhoneNumberID string

	// Calendar provider (Microsoft Graph)
	CalendarTenantID     string
	CalendarClientID     string
	CalendarClientSecret string
	CalendarUserEmail    string
	Timezone             string

	// LLM
	LLMAPIKey string
	LLMModel  string

	// Session auth
	JWTSecret string

	// Conversation tuning
	HistoryWindow       int
	SlotDurationMinutes int
	WorkdayStart        string
	WorkdayEnd          string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		Port:            os.Getenv("PORT"),
		Env:             os.Getenv("ENV"),
		StoreURL:        os.Getenv("STORE_URL"),
		StoreServiceKey: os.Getenv("STORE_SERVICE_KEY"),

		WebhookVerifyToken:     os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		MessagingAccessToken:   os.Getenv("MESSAGING_ACCESS_TOKEN"),
		MessagingAppSecret:     os.Getenv("MESSAGING_APP_SECRET"),
		MessagingPhoneNumberID: os.Getenv("MESSAGING_PHONE_NUMBER_ID"),

		CalendarTenantID:     os.Getenv("CALENDAR_TENANT_ID"),
		CalendarClientID:     os.Getenv("CALENDAR_CLIENT_ID"),
		CalendarClientSecret: os.Getenv("CALENDAR_CLIENT_SECRET"),
		CalendarUserEmail:    os.Getenv("CALENDAR_USER_EMAIL"),
		Timezone:             os.Getenv("TIMEZONE"),

		LLMAPIKey: os.Getenv("LLM_API_KEY"),
		LLMModel:  os.Getenv("LLM_MODEL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		HistoryWindow:       envInt("HISTORY_WINDOW", 10),
		SlotDurationMinutes: envInt("SLOT_DURATION_MINUTES", 60),
		WorkdayStart:        os.Getenv("WORKDAY_START"),
		WorkdayEnd:          os.Getenv("WORKDAY_END"),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.WorkdayStart == "" {
		cfg.WorkdayStart = "09:00"
	}
	if cfg.WorkdayEnd == "" {
		cfg.WorkdayEnd = "18:00"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}

	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}
