package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Qualification steps. Order matters: StepRank follows the stage graph.
const (
	StepStart        = "start"
	StepConsent      = "consent"
	StepPersonalData = "personal_data"
	StepBant         = "bant"
	StepRequirements = "requirements"
	StepMeeting      = "meeting"
	StepCompleted    = "completed"
	StepAbandoned    = "abandoned"
)

// StepRank maps a step to its position on the forward path. Abandoned is
// terminal and sits outside the ordering.
var StepRank = map[string]int{
	StepStart:        0,
	StepConsent:      1,
	StepPersonalData: 2,
	StepBant:         3,
	StepRequirements: 4,
	StepMeeting:      5,
	StepCompleted:    6,
}

// LeadQualification tracks one lead through the qualification funnel.
// Exactly one exists per (user_id, conversation_id).
type LeadQualification struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lead_user_conversation,priority:1" json:"user_id"`
	ConversationID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_lead_user_conversation,priority:2" json:"conversation_id"`
	Consent           bool      `gorm:"not null;default:false" json:"consent"`
	CurrentStep       string    `gorm:"type:text;not null;default:'start';index" json:"current_step"`
	ConsentRefusals   int       `gorm:"not null;default:0" json:"consent_refusals"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User         User         `gorm:"foreignKey:UserID;references:ID" json:"-"`
	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LeadQualification) TableName() string {
	return "lead_qualification"
}

func (l *LeadQualification) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the lead left the funnel.
func (l *LeadQualification) IsTerminal() bool {
	return l.CurrentStep == StepCompleted || l.CurrentStep == StepAbandoned
}

// BantData holds the four qualification answers. One-to-one with a lead;
// empty string counts as missing.
type BantData struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	LeadQualificationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"lead_qualification_id"`
	Budget              *string   `gorm:"type:text" json:"budget,omitempty"`
	Authority           *string   `gorm:"type:text" json:"authority,omitempty"`
	Need                *string   `gorm:"type:text" json:"need,omitempty"`
	Timeline            *string   `gorm:"type:text" json:"timeline,omitempty"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	LeadQualification LeadQualification `gorm:"foreignKey:LeadQualificationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (BantData) TableName() string {
	return "bant_data"
}

func (b *BantData) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Complete reports whether all four fields carry a non-empty value.
func (b *BantData) Complete() bool {
	filled := func(s *string) bool { return s != nil && *s != "" }
	return filled(b.Budget) && filled(b.Authority) && filled(b.Need) && filled(b.Timeline)
}
