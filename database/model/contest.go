package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Contest struct {
	Id              string        `json:"id" gorm:"primaryKey;size:36"`
	CreatorEmail    string        `json:"creatorEmail" gorm:"index;not null"`
	Name            string        `json:"name" gorm:"not null"`
	Image           string        `json:"image"`
	Description     string        `json:"description"`
	ContestType     string        `json:"contestType"`
	TaskInstruction string        `json:"taskInstruction"`
	Price           int64         `json:"price"`
	PrizeMoney      int64         `json:"prizeMoney"`
	Deadline        *time.Time    `json:"deadline,omitempty"`
	Status          ContestStatus `json:"status" gorm:"not null;default:pending;index"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	ApprovedAt      *time.Time    `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time    `json:"rejectedAt,omitempty"`
	TrackingId      string        `json:"trackingId,omitempty"`

	// Derived from the payments ledger; the reconcile job can rebuild them.
	PaymentStatus         string `json:"paymentStatus,omitempty"`
	LastTransactionId     string `json:"lastTransactionId,omitempty"`
	LastPaymentTrackingId string `json:"lastPaymentTrackingId,omitempty"`
	ParticipantsCount     int64  `json:"participantsCount" gorm:"not null;default:0"`

	WinnerEmail      string     `json:"winnerEmail,omitempty"`
	WinnerDeclaredAt *time.Time `json:"winnerDeclaredAt,omitempty"`
}

func (c *Contest) BeforeCreate(tx *gorm.DB) error {
	if c.Id == "" {
		c.Id = uuid.NewString()
	}
	return nil
}

// OwnedBy reports whether email created the contest.
func (c *Contest) OwnedBy(email string) bool {
	return c.CreatorEmail == email
}
