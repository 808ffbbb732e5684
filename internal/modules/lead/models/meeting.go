package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Meeting statuses.
const (
	MeetingScheduled   = "scheduled"
	MeetingCompleted   = "completed"
	MeetingCancelled   = "cancelled"
	MeetingRescheduled = "rescheduled"
)

// Meeting mirrors a calendar event scheduled for a lead. At most one
// non-cancelled meeting exists per lead at any time.
type Meeting struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID              uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	LeadQualificationID uuid.UUID `gorm:"type:uuid;not null;index" json:"lead_qualification_id"`
	ExternalMeetingID   *string   `gorm:"type:text" json:"external_meeting_id,omitempty"`
	Subject             string    `gorm:"type:text;not null" json:"subject"`
	StartTime           time.Time `gorm:"not null;index" json:"start_time"`
	EndTime             time.Time `gorm:"not null" json:"end_time"`
	Status              string    `gorm:"type:text;not null;default:'scheduled'" json:"status"`
	OnlineMeetingURL    *string   `gorm:"type:text" json:"online_meeting_url,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User              User              `gorm:"foreignKey:UserID;references:ID" json:"-"`
	LeadQualification LeadQualification `gorm:"foreignKey:LeadQualificationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Meeting) TableName() string {
	return "meetings"
}

func (m *Meeting) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Active reports whether the meeting still occupies the lead's slot.
func (m *Meeting) Active() bool {
	return m.Status != MeetingCancelled
}
