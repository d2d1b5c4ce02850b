package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/createarena/arena/database"
	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/util/obs"
	"github.com/createarena/arena/util/random"
	"github.com/createarena/arena/web/cache"
	"github.com/createarena/arena/web/events"
	"github.com/createarena/arena/web/gateway"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckoutInput is a request to pay the entry fee of a contest. Price arrives
// as a JSON number and must be a positive whole amount.
type CheckoutInput struct {
	Price       float64
	ContestID   string
	Email       string
	DisplayName string
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// Confirmation is the outcome of recording a payment.
type Confirmation struct {
	TransactionID string         `json:"transactionId"`
	TrackingID    string         `json:"trackingId"`
	Payment       *model.Payment `json:"payment"`
	// Created is false when the transaction had already been recorded.
	Created bool `json:"created"`
}

// Participant is a paid entrant of a contest, enriched with their profile.
type Participant struct {
	PaymentId   string             `json:"paymentId"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	PhotoURL    string             `json:"photoURL"`
	TrackingId  string             `json:"trackingId"`
	IsWinner    bool               `json:"isWinner"`
	PaidAt      time.Time          `json:"paidAt"`
	Submissions []model.Submission `json:"submissions"`
}

// PaymentService reconciles gateway payments into the ledger. Each gateway
// transaction is recorded at most once, however often confirmation is repeated.
type PaymentService struct {
	db         *gorm.DB
	gw         gateway.Gateway
	cache      *cache.Cache
	events     events.Publisher
	siteOrigin string
	currency   string
	now        func() time.Time
}

func NewPaymentService(db *gorm.DB, gw gateway.Gateway, c *cache.Cache, pub events.Publisher, siteOrigin, currency string) *PaymentService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &PaymentService{
		db:         db,
		gw:         gw,
		cache:      c,
		events:     pub,
		siteOrigin: strings.TrimRight(siteOrigin, "/"),
		currency:   currency,
		now:        time.Now,
	}
}

func parsePrice(p float64) (int64, error) {
	if p <= 0 || p != math.Trunc(p) || p > math.MaxInt32 {
		return 0, common.Invalid(common.CodeInvalidPrice, "price must be a positive integer")
	}
	return int64(p), nil
}

// CreateCheckoutSession opens a hosted checkout for one contest entry. The price
// must equal the contest's entry fee. Gateway failures are returned as
// GatewayError and never retried here.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	price, err := parsePrice(in.Price)
	if err != nil {
		return nil, err
	}
	if in.ContestID == "" {
		return nil, common.InvalidInput("contestId is required")
	}
	contest := &model.Contest{}
	err = s.db.WithContext(ctx).Select("id", "name", "price").Where("id = ?", in.ContestID).First(contest).Error
	if database.IsNotFound(err) {
		return nil, common.ContestNotFound()
	}
	if err != nil {
		return nil, common.Internal(err)
	}
	if price != contest.Price {
		return nil, common.Invalid(common.CodeInvalidPrice, "price does not match the contest entry fee")
	}

	ctx, span := obs.Start(ctx, "gateway.create_checkout_session")
	span.SetAttributes(attribute.String("gateway", s.gw.Name()), attribute.String("contest.id", in.ContestID))
	sess, err := s.gw.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		Amount:      price,
		Currency:    s.currency,
		ContestID:   in.ContestID,
		ContestName: contest.Name,
		Email:       normalizeEmail(in.Email),
		DisplayName: in.DisplayName,
		ReturnURL:   s.siteOrigin + "/payment-success",
		CancelURL:   s.siteOrigin + "/payment-cancelled",
	})
	obs.End(span, err)
	if err != nil {
		logger.Warning("create checkout session failed:", err)
		return nil, common.Gateway(err)
	}
	return &CheckoutResult{URL: sess.URL, SessionID: sess.ID}, nil
}

// ConfirmPayment records the payment behind a completed checkout session. It is
// safe to call any number of times for the same session.
func (s *PaymentService) ConfirmPayment(ctx context.Context, sessionID, subjectEmail string) (*Confirmation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, common.InvalidInput("session_id is required")
	}

	ctx, span := obs.Start(ctx, "payment.confirm")
	defer span.End()

	gctx, gspan := obs.Start(ctx, "gateway.retrieve_session")
	sess, err := s.gw.RetrieveSession(gctx, sessionID)
	obs.End(gspan, err)
	if err != nil {
		logger.Warning("retrieve checkout session failed:", err)
		return nil, common.Gateway(err)
	}
	conf, err := s.reconcile(ctx, sess, subjectEmail)
	if err != nil {
		span.RecordError(err)
	}
	return conf, err
}

// HandleWebhook verifies a gateway push notification and records the payment it
// reports through the same path as ConfirmPayment. Events without a completed
// payment yield nil.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Confirmation, error) {
	ctx, span := obs.Start(ctx, "payment.webhook")
	defer span.End()

	sess, err := s.gw.ParseWebhook(ctx, payload, signature)
	if errors.Is(err, gateway.ErrSignature) {
		return nil, common.InvalidInput("invalid webhook signature")
	}
	if err != nil {
		return nil, common.Gateway(err)
	}
	if sess == nil || !sess.Paid {
		return nil, nil
	}
	return s.reconcile(ctx, sess, "")
}

func (s *PaymentService) reconcile(ctx context.Context, sess *gateway.Session, subjectEmail string) (*Confirmation, error) {
	if !sess.Paid {
		return nil, common.Invalid(common.CodePaymentNotCompleted, "payment not completed")
	}
	txID := sess.TransactionID
	if txID == "" {
		txID = sess.ID
	}

	if existing, err := s.byTransaction(ctx, txID); err != nil {
		return nil, err
	} else if existing != nil {
		return confirmation(existing, false), nil
	}

	contestID := sess.Metadata[gateway.MetaContestID]
	email := firstNonEmpty(sess.Metadata[gateway.MetaEmail], sess.CustomerEmail, subjectEmail)
	if contestID == "" || email == "" {
		return nil, common.Invalid(common.CodeMissingContestInfo, "missing contest info")
	}
	var contests int64
	if err := s.db.WithContext(ctx).Model(&model.Contest{}).Where("id = ?", contestID).Count(&contests).Error; err != nil {
		return nil, common.Internal(err)
	}
	if contests == 0 {
		return nil, common.ContestNotFound()
	}

	now := s.now()
	payment := &model.Payment{
		TransactionId: txID,
		TrackingId:    random.TrackingID(now),
		ContestId:     contestID,
		Email:         normalizeEmail(email),
		Amount:        sess.Amount,
		Currency:      sess.Currency,
		Gateway:       s.gw.Name(),
		SessionId:     sess.ID,
		PaymentStatus: model.PaymentStatusPaid,
		CreatedAt:     now,
	}

	// the unique index on transaction_id decides which concurrent call records the payment
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(payment)
	if res.Error != nil {
		return nil, common.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.byTransaction(ctx, txID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, common.Internal(errors.New("payment vanished after conflicting insert"))
		}
		return confirmation(existing, false), nil
	}

	err := s.db.WithContext(ctx).Model(&model.Contest{}).Where("id = ?", contestID).
		Updates(map[string]any{
			"participants_count":       gorm.Expr("participants_count + ?", 1),
			"payment_status":           model.PaymentStatusPaid,
			"last_transaction_id":      txID,
			"last_payment_tracking_id": payment.TrackingId,
			"updated_at":               now,
		}).Error
	if err != nil {
		// the payment stands; the reconcile job repairs the counter
		logger.Errorf("payment %s recorded but contest %s not updated: %v", txID, contestID, err)
		return nil, common.Internal(err)
	}
	s.cache.InvalidateContests(ctx)

	logger.Infof("payment %s recorded for contest %s by %s", txID, contestID, payment.Email)
	publish(ctx, s.events, events.PaymentConfirmed, payment)
	payment.Submissions = []model.Submission{}
	return confirmation(payment, true), nil
}

func (s *PaymentService) byTransaction(ctx context.Context, txID string) (*model.Payment, error) {
	var found []model.Payment
	err := s.db.WithContext(ctx).
		Preload("Submissions", orderSubmissions).
		Where("transaction_id = ?", txID).
		Limit(1).
		Find(&found).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func confirmation(p *model.Payment, created bool) *Confirmation {
	return &Confirmation{TransactionID: p.TransactionId, TrackingID: p.TrackingId, Payment: p, Created: created}
}

func orderSubmissions(db *gorm.DB) *gorm.DB {
	return db.Order("submitted_at ASC, id ASC")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SubmitTask attaches a submission link to the requester's paid entry.
func (s *PaymentService) SubmitTask(ctx context.Context, contestID, email, link string) (*model.Submission, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, common.Invalid(common.CodeMissingLink, "link is required")
	}
	email = normalizeEmail(email)

	var entries []model.Payment
	err := s.db.WithContext(ctx).
		Where("contest_id = ? AND email = ? AND payment_status = ?", contestID, email, model.PaymentStatusPaid).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	if len(entries) == 0 {
		return nil, common.NotRegistered("you have not registered for this contest")
	}

	sub := &model.Submission{
		PaymentId:   entries[0].Id,
		ContestId:   contestID,
		Email:       email,
		Link:        link,
		SubmittedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, common.Internal(err)
	}
	publish(ctx, s.events, events.TaskSubmitted, sub)
	return sub, nil
}

// ListParticipants returns one entry per paying email, earliest payment first.
func (s *PaymentService) ListParticipants(ctx context.Context, contestID string) ([]Participant, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Preload("Submissions", orderSubmissions).
		Where("contest_id = ? AND payment_status = ?", contestID, model.PaymentStatusPaid).
		Order("created_at ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, common.Internal(err)
	}

	emails := make([]string, 0, len(payments))
	seen := make(map[string]bool, len(payments))
	for _, p := range payments {
		if !seen[p.Email] {
			seen[p.Email] = true
			emails = append(emails, p.Email)
		}
	}

	profiles := make(map[string]model.User, len(emails))
	if len(emails) > 0 {
		var users []model.User
		if err := s.db.WithContext(ctx).Where("email IN ?", emails).Find(&users).Error; err != nil {
			return nil, common.Internal(err)
		}
		for _, u := range users {
			profiles[u.Email] = u
		}
	}

	out := make([]Participant, 0, len(emails))
	added := make(map[string]bool, len(emails))
	for _, p := range payments {
		if added[p.Email] {
			continue
		}
		added[p.Email] = true
		u := profiles[p.Email]
		subs := p.Submissions
		if subs == nil {
			subs = []model.Submission{}
		}
		out = append(out, Participant{
			PaymentId:   p.Id,
			Email:       p.Email,
			Name:        u.Name,
			PhotoURL:    u.PhotoURL,
			TrackingId:  p.TrackingId,
			IsWinner:    p.IsWinner,
			PaidAt:      p.CreatedAt,
			Submissions: subs,
		})
	}
	return out, nil
}

// ListByEmail returns the caller's payments, newest first; winningOnly keeps the won ones.
func (s *PaymentService) ListByEmail(ctx context.Context, email string, winningOnly bool) ([]model.Payment, error) {
	q := s.db.WithContext(ctx).Preload("Submissions", orderSubmissions).Where("email = ?", normalizeEmail(email))
	if winningOnly {
		q = q.Where("is_winner = ?", true)
	}
	payments := make([]model.Payment, 0)
	if err := q.Order("created_at DESC, id ASC").Find(&payments).Error; err != nil {
		return nil, common.Internal(err)
	}
	return payments, nil
}

// Reconcile recomputes every contest's participant counter and payment status
// from the ledger and returns how many contests it corrected.
func (s *PaymentService) Reconcile(ctx context.Context) (int, error) {
	type tally struct {
		ContestId string
		Total     int64
	}
	var tallies []tally
	err := s.db.WithContext(ctx).Model(&model.Payment{}).
		Select("contest_id, COUNT(*) AS total").
		Where("payment_status = ?", model.PaymentStatusPaid).
		Group("contest_id").
		Scan(&tallies).Error
	if err != nil {
		return 0, common.Internal(err)
	}
	counts := make(map[string]int64, len(tallies))
	for _, t := range tallies {
		counts[t.ContestId] = t.Total
	}

	var contests []model.Contest
	if err := s.db.WithContext(ctx).Select("id", "participants_count", "payment_status").Find(&contests).Error; err != nil {
		return 0, common.Internal(err)
	}

	fixed := 0
	for _, c := range contests {
		want := counts[c.Id]
		wantStatus := ""
		if want > 0 {
			wantStatus = model.PaymentStatusPaid
		}
		if c.ParticipantsCount == want && c.PaymentStatus == wantStatus {
			continue
		}
		err := s.db.WithContext(ctx).Model(&model.Contest{}).Where("id = ?", c.Id).
			Updates(map[string]any{"participants_count": want, "payment_status": wantStatus}).Error
		if err != nil {
			return fixed, common.Internal(err)
		}
		logger.Warningf("contest %s participants corrected from %d to %d", c.Id, c.ParticipantsCount, want)
		fixed++
	}
	if fixed > 0 {
		s.cache.InvalidateContests(ctx)
	}
	return fixed, nil
}
