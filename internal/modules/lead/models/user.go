package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the contacted party. At least one of Phone/Email is present;
// each is globally unique when non-null.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Phone     *string   `gorm:"type:text;uniqueIndex" json:"phone,omitempty"`
	Email     *string   `gorm:"type:text;uniqueIndex" json:"email,omitempty"`
	FullName  string    `gorm:"type:text;not null;default:''" json:"full_name"`
	Company   *string   `gorm:"type:text" json:"company,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasContactInfo reports whether the qualification contact requirements are
// met: a name plus at least one reachable channel.
func (u *User) HasContactInfo() bool {
	if u.FullName == "" {
		return false
	}
	return (u.Email != nil && *u.Email != "") || (u.Phone != nil && *u.Phone != "")
}
