// Package gateway adapts hosted-checkout payment providers to the single
// operation set the payment reconciler needs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/createarena/arena/config"
)

// Metadata keys attached to every checkout session.
const (
	MetaContestID   = "contestId"
	MetaEmail       = "email"
	MetaDisplayName = "displayName"
)

// ErrSignature is returned when a webhook payload fails verification.
var ErrSignature = errors.New("webhook signature verification failed")

// CheckoutRequest describes a one-item checkout for a contest entry fee.
// Amount is in whole currency units.
type CheckoutRequest struct {
	Amount      int64
	Currency    string
	ContestID   string
	ContestName string
	Email       string
	DisplayName string
	// ReturnURL is where the provider sends the payer after paying; the session id is appended.
	ReturnURL string
	CancelURL string
}

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID            string
	URL           string
	Paid          bool
	TransactionID string
	Amount        int64
	Currency      string
	CustomerEmail string
	Metadata      map[string]string
}

// Gateway is a hosted checkout provider.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	// ParseWebhook verifies a push notification and returns the completed session
	// it reports, or nil for events that carry no completed payment.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Session, error)
}

// New returns the gateway selected by ARENA_PAYMENT_PROVIDER.
func New(cfg *config.App) (Gateway, error) {
	switch strings.ToLower(cfg.PaymentProvider) {
	case "stripe":
		return NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	case "omise":
		return NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", cfg.PaymentProvider)
	}
}

// minorUnits converts whole units to the provider's smallest unit.
func minorUnits(amount int64) int64 { return amount * 100 }

func majorUnits(amount int64) int64 { return amount / 100 }

func withSessionParam(returnURL, sessionID string) string {
	sep := "?"
	if strings.Contains(returnURL, "?") {
		sep = "&"
	}
	return returnURL + sep + "session_id=" + sessionID
}
