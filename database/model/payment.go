package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment is one confirmed gateway payment. TransactionId is the gateway's
// payment identifier and is unique across the table.
type Payment struct {
	Id                    string       `json:"id" gorm:"primaryKey;size:36"`
	TransactionId         string       `json:"transactionId" gorm:"uniqueIndex;not null"`
	TrackingId            string       `json:"trackingId"`
	ContestId             string       `json:"contestId" gorm:"index:idx_payment_contest_email;not null"`
	Email                 string       `json:"email" gorm:"index:idx_payment_contest_email;not null"`
	Amount                int64        `json:"amount"`
	Currency              string       `json:"currency"`
	Gateway               string       `json:"gateway"`
	SessionId             string       `json:"sessionId"`
	PaymentStatus         string       `json:"paymentStatus" gorm:"not null"`
	IsWinner              bool         `json:"isWinner"`
	ContestWinnerDeclared bool         `json:"contestWinnerDeclared"`
	CreatedAt             time.Time    `json:"createdAt"`
	Submissions           []Submission `json:"submissions" gorm:"foreignKey:PaymentId;references:Id"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.Id == "" {
		p.Id = uuid.NewString()
	}
	return nil
}

type Submission struct {
	Id          string    `json:"id" gorm:"primaryKey;size:36"`
	PaymentId   string    `json:"paymentId" gorm:"index;not null"`
	ContestId   string    `json:"contestId" gorm:"index"`
	Email       string    `json:"email"`
	Link        string    `json:"link" gorm:"not null"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.Id == "" {
		s.Id = uuid.NewString()
	}
	return nil
}
