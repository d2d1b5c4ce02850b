package gateway

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Stripe uses Stripe Checkout; the transaction id is the payment intent id.
type Stripe struct {
	sc            *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{sc: sc, webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(withSessionParam(req.ReturnURL, stripeSessionPlaceholder)),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ContestName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetaContestID: req.ContestID, MetaEmail: req.Email},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(MetaContestID, req.ContestID)
	params.AddMetadata(MetaEmail, req.Email)
	params.AddMetadata(MetaDisplayName, req.DisplayName)

	cs, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripe(cs), nil
}

func (s *Stripe) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, err
	}
	return fromStripe(cs), nil
}

func (s *Stripe) ParseWebhook(_ context.Context, payload []byte, signature string) (*Session, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ErrSignature
	}
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil, nil
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, err
	}
	// delayed methods complete the session before the money arrives
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	return fromStripe(&cs), nil
}

func fromStripe(cs *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:       cs.ID,
		URL:      cs.URL,
		Paid:     cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:   majorUnits(cs.AmountTotal),
		Currency: string(cs.Currency),
		Metadata: cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.TransactionID = cs.PaymentIntent.ID
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		out.CustomerEmail = cs.CustomerDetails.Email
	} else {
		out.CustomerEmail = cs.CustomerEmail
	}
	return out
}
