package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is keyed by email; Id is the handle used by role management routes.
type User struct {
	Id        string    `json:"id" gorm:"primaryKey;size:36"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoURL"`
	Role      Role      `json:"role" gorm:"not null;default:user;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// CreatorApplication is a user's request to be promoted to creator.
type CreatorApplication struct {
	Id        string            `json:"id" gorm:"primaryKey;size:36"`
	Email     string            `json:"email" gorm:"index;not null"`
	Name      string            `json:"name"`
	Status    ApplicationStatus `json:"status" gorm:"not null;default:pending;index"`
	CreatedAt time.Time         `json:"createdAt"`
	DecidedAt *time.Time        `json:"decidedAt,omitempty"`
}

func (a *CreatorApplication) BeforeCreate(tx *gorm.DB) error {
	if a.Id == "" {
		a.Id = uuid.NewString()
	}
	return nil
}
