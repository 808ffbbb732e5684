package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation platforms.
const (
	PlatformWhatsApp = "whatsapp"
	PlatformWeb      = "web"
)

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Conversation groups the messages exchanged with one external party on one
// platform. At most one active conversation exists per (platform, external_id).
type Conversation struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Platform     string    `gorm:"type:text;not null;default:'whatsapp'" json:"platform"`
	ExternalID   string    `gorm:"type:text;not null" json:"external_id"`
	Status       string    `gorm:"type:text;not null;default:'active';index:idx_conversations_party,priority:3" json:"status"`
	AgentEnabled bool      `gorm:"not null;default:true;index" json:"agent_enabled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
