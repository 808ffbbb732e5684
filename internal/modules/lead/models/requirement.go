package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Requirements captures what the lead wants built. One-to-one with a lead.
type Requirements struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	LeadQualificationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"lead_qualification_id"`
	AppType             *string   `gorm:"type:text" json:"app_type,omitempty"`
	Deadline            *string   `gorm:"type:text" json:"deadline,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`

	LeadQualification LeadQualification `gorm:"foreignKey:LeadQualificationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Features          []Feature         `gorm:"foreignKey:RequirementID;references:ID" json:"features,omitempty"`
	Integrations      []Integration     `gorm:"foreignKey:RequirementID;references:ID" json:"integrations,omitempty"`
}

func (Requirements) TableName() string {
	return "requirements"
}

func (r *Requirements) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Feature is one requested capability of the app.
type Feature struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequirementID uuid.UUID `gorm:"type:uuid;not null;index" json:"requirement_id"`
	Name          string    `gorm:"type:text;not null" json:"name"`
	Description   *string   `gorm:"type:text" json:"description,omitempty"`
}

func (Feature) TableName() string {
	return "features"
}

func (f *Feature) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Integration is one external system the app must talk to.
type Integration struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequirementID uuid.UUID `gorm:"type:uuid;not null;index" json:"requirement_id"`
	Name          string    `gorm:"type:text;not null" json:"name"`
	Description   *string   `gorm:"type:text" json:"description,omitempty"`
}

func (Integration) TableName() string {
	return "integrations"
}

func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
