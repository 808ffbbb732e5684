package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageAudio = "audio"
	MessageVideo = "video"
)

// Message is one turn of a conversation. Append-only; deletion is soft.
// ExternalID carries the provider message id for inbound idempotency.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           string         `gorm:"type:text;not null" json:"role"`
	Content        string         `gorm:"type:text;not null;default:''" json:"content"`
	MessageType    string         `gorm:"type:text;not null;default:'text'" json:"message_type"`
	MediaURL       *string        `gorm:"type:text" json:"media_url,omitempty"`
	ExternalID     *string        `gorm:"type:text;uniqueIndex" json:"external_id,omitempty"`
	Read           bool           `gorm:"not null;default:false;index" json:"read"`
	DeliveryError  bool           `gorm:"not null;default:false" json:"delivery_error"`
	Metadata       datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index:idx_messages_conversation_created,priority:2" json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	// Assistant and system turns are born read; user turns wait for the
	// operator (or the provider read receipt).
	if m.Role != RoleUser {
		m.Read = true
	}
	return nil
}
