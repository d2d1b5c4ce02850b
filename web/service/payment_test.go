package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/util/random"
	"github.com/createarena/arena/web/events"
	"github.com/createarena/arena/web/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCheckoutRejectsBadPrice(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")

	for _, price := range []float64{0, -5, 12.5, 0.01, 1e12} {
		_, err := f.payments.CreateCheckoutSession(context.Background(), CheckoutInput{
			Price: price, ContestID: c.Id, Email: "a@x.io",
		})
		assert.True(t, common.HasCode(err, common.CodeInvalidPrice), "price %v: %v", price, err)
	}
	assert.Zero(t, f.gw.Calls)
}

func TestCheckoutRequiresContestPrice(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")

	for _, price := range []float64{1, 49, 51} {
		_, err := f.payments.CreateCheckoutSession(context.Background(), CheckoutInput{
			Price: price, ContestID: c.Id, Email: "a@x.io",
		})
		assert.True(t, common.HasCode(err, common.CodeInvalidPrice), "price %v: %v", price, err)
	}
	assert.Zero(t, f.gw.Calls)
}

func TestCheckoutCreatesSession(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")

	res, err := f.payments.CreateCheckoutSession(context.Background(), CheckoutInput{
		Price: 50, ContestID: c.Id, Email: "A@x.io", DisplayName: "Alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Contains(t, res.URL, res.SessionID)

	sess, err := f.gw.RetrieveSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, sess.Amount)
	assert.Equal(t, "usd", sess.Currency)
	assert.Equal(t, c.Id, sess.Metadata[gateway.MetaContestID])
	assert.Equal(t, "a@x.io", sess.Metadata[gateway.MetaEmail])
	assert.False(t, sess.Paid)
}

func TestCheckoutErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.CreateCheckoutSession(ctx, CheckoutInput{Price: 10})
	assert.True(t, common.IsKind(err, common.KindInvalidInput))

	_, err = f.payments.CreateCheckoutSession(ctx, CheckoutInput{Price: 10, ContestID: "missing"})
	assert.True(t, common.HasCode(err, common.CodeContestNotFound))

	c := f.contest(t, "maker@x.io")
	f.gw.Fail = errors.New("card network down")
	_, err = f.payments.CreateCheckoutSession(ctx, CheckoutInput{Price: 50, ContestID: c.Id})
	assert.True(t, common.IsKind(err, common.KindGateway))
	assert.Equal(t, 502, common.AsError(err).Kind.HTTPStatus())
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")
	sess := f.paidSession(t, c.Id, "a@x.io")

	first, err := f.payments.ConfirmPayment(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, sess.TransactionID, first.TransactionID)
	assert.True(t, random.IsTrackingID(first.TrackingID))

	second, err := f.payments.ConfirmPayment(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.TrackingID, second.TrackingID)
	assert.Equal(t, first.Payment.Id, second.Payment.Id)

	var count int64
	f.db.Model(&model.Payment{}).Where("transaction_id = ?", sess.TransactionID).Count(&count)
	assert.EqualValues(t, 1, count)

	got, err := f.contests.Get(ctx, c.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ParticipantsCount)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, sess.TransactionID, got.LastTransactionId)
	assert.Equal(t, first.TrackingID, got.LastPaymentTrackingId)

	var confirmed int
	for _, k := range f.events.Keys() {
		if k == events.PaymentConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestConcurrentConfirmationsRecordOnce(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")
	sess := f.paidSession(t, c.Id, "a@x.io")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Confirmation, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.payments.ConfirmPayment(context.Background(), sess.ID, "")
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, sess.TransactionID, results[i].TransactionID)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	got, err := f.contests.Get(context.Background(), c.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ParticipantsCount)
}

func TestConfirmationLosingInsertReturnsRecordedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")
	sess := f.paidSession(t, c.Id, "a@x.io")
	recordedTracking := random.TrackingID(time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC))

	// a concurrent confirmation records the transaction between lookup and insert
	var once sync.Once
	err := f.db.Callback().Create().Before("gorm:create").Register("arena:concurrent_confirmation", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*model.Payment); !ok {
			return
		}
		once.Do(func() {
			tx.AddError(f.db.Exec(
				`INSERT INTO payments (id, transaction_id, tracking_id, contest_id, email, amount, currency, gateway, session_id, payment_status, is_winner, contest_winner_declared, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), sess.TransactionID, recordedTracking, c.Id, "a@x.io", 50, "usd", "memory", sess.ID,
				model.PaymentStatusPaid, false, false, time.Now(),
			).Error)
		})
	})
	require.NoError(t, err)

	conf, err := f.payments.ConfirmPayment(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, conf.Created)
	assert.Equal(t, recordedTracking, conf.TrackingID)
	assert.Equal(t, sess.TransactionID, conf.TransactionID)

	var count int64
	require.NoError(t, f.db.Model(&model.Payment{}).Where("transaction_id = ?", sess.TransactionID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	got, err := f.contests.Get(ctx, c.Id)
	require.NoError(t, err)
	assert.Zero(t, got.ParticipantsCount)
	assert.NotContains(t, f.events.Keys(), events.PaymentConfirmed)
}

func TestConfirmPaymentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")

	_, err := f.payments.ConfirmPayment(ctx, " ", "")
	assert.True(t, common.IsKind(err, common.KindInvalidInput))

	_, err = f.payments.ConfirmPayment(ctx, "cs_unknown", "")
	assert.True(t, common.IsKind(err, common.KindGateway))

	unpaid, err := f.gw.CreateCheckoutSession(ctx, gateway.CheckoutRequest{Amount: 50, ContestID: c.Id, Email: "a@x.io"})
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, unpaid.ID, "")
	assert.True(t, common.HasCode(err, common.CodePaymentNotCompleted))

	f.gw.Put(&gateway.Session{ID: "cs_nometa", TransactionID: "pi_nometa", Paid: true, CustomerEmail: "a@x.io"})
	_, err = f.payments.ConfirmPayment(ctx, "cs_nometa", "")
	assert.True(t, common.HasCode(err, common.CodeMissingContestInfo))

	f.gw.Put(&gateway.Session{ID: "cs_gone", TransactionID: "pi_gone", Paid: true,
		Metadata: map[string]string{gateway.MetaContestID: "deleted", gateway.MetaEmail: "a@x.io"}})
	_, err = f.payments.ConfirmPayment(ctx, "cs_gone", "")
	assert.True(t, common.HasCode(err, common.CodeContestNotFound))

	var count int64
	f.db.Model(&model.Payment{}).Count(&count)
	assert.Zero(t, count)
}

func TestConfirmPaymentFallsBackToSubjectEmail(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")
	f.gw.Put(&gateway.Session{ID: "cs_anon", Paid: true, Amount: 50,
		Metadata: map[string]string{gateway.MetaContestID: c.Id}})

	conf, err := f.payments.ConfirmPayment(context.Background(), "cs_anon", "Signed@x.io")
	require.NoError(t, err)
	assert.Equal(t, "signed@x.io", conf.Payment.Email)
	// without a gateway transaction id the session id identifies the payment
	assert.Equal(t, "cs_anon", conf.TransactionID)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")
	sess := f.paidSession(t, c.Id, "a@x.io")
	payload := []byte(`{"sessionId":"` + sess.ID + `"}`)

	_, err := f.payments.HandleWebhook(ctx, payload, "forged")
	assert.True(t, common.IsKind(err, common.KindInvalidInput))

	conf, err := f.payments.HandleWebhook(ctx, payload, "memory")
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.True(t, conf.Created)

	// the browser redirect arriving after the webhook finds the recorded payment
	again, err := f.payments.ConfirmPayment(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, conf.TrackingID, again.TrackingID)
}

func TestHandleWebhookIgnoresUnpaidSessions(t *testing.T) {
	f := newFixture(t)
	c := f.contest(t, "maker@x.io")
	sess, err := f.gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{Amount: 50, ContestID: c.Id, Email: "a@x.io"})
	require.NoError(t, err)

	conf, err := f.payments.HandleWebhook(context.Background(), []byte(`{"sessionId":"`+sess.ID+`"}`), "memory")
	assert.NoError(t, err)
	assert.Nil(t, conf)
}

// delayedHooks reports every webhook as a completed but unpaid checkout, the
// way delayed payment methods do.
type delayedHooks struct{ *gateway.Memory }

func (delayedHooks) ParseWebhook(context.Context, []byte, string) (*gateway.Session, error) {
	return &gateway.Session{ID: "cs_delayed", Metadata: map[string]string{gateway.MetaContestID: "c1", gateway.MetaEmail: "a@x.io"}}, nil
}

func TestHandleWebhookAcknowledgesUnpaidCompletion(t *testing.T) {
	f := newFixture(t)
	payments := NewPaymentService(f.db, delayedHooks{f.gw}, f.cache, f.events, "https://arena.test", "usd")

	conf, err := payments.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	assert.NoError(t, err)
	assert.Nil(t, conf)

	var count int64
	require.NoError(t, f.db.Model(&model.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleWebhookUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.HandleWebhook(context.Background(), []byte(`{"sessionId":"cs_forged"}`), "memory")
	assert.True(t, common.IsKind(err, common.KindInvalidInput), "got %v", err)
	assert.Equal(t, 400, common.AsError(err).Kind.HTTPStatus())
}

func TestSubmitTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")

	_, err := f.payments.SubmitTask(ctx, c.Id, "a@x.io", "  ")
	assert.True(t, common.HasCode(err, common.CodeMissingLink))

	_, err = f.payments.SubmitTask(ctx, c.Id, "a@x.io", "https://drive.example/a")
	assert.True(t, common.HasCode(err, common.CodeNotRegistered))
	assert.Equal(t, 403, common.AsError(err).Kind.HTTPStatus())

	conf, err := f.payments.ConfirmPayment(ctx, f.paidSession(t, c.Id, "a@x.io").ID, "")
	require.NoError(t, err)

	sub, err := f.payments.SubmitTask(ctx, c.Id, "A@x.io", "https://drive.example/a")
	require.NoError(t, err)
	assert.Equal(t, conf.Payment.Id, sub.PaymentId)
	assert.Equal(t, "a@x.io", sub.Email)
	assert.Contains(t, f.events.Keys(), events.TaskSubmitted)
}

func TestListParticipantsDedupesByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "a@x.io", model.RoleUser)
	c := f.contest(t, "maker@x.io")

	for _, email := range []string{"a@x.io", "b@x.io", "a@x.io"} {
		_, err := f.payments.ConfirmPayment(ctx, f.paidSession(t, c.Id, email).ID, "")
		require.NoError(t, err)
	}
	_, err := f.payments.SubmitTask(ctx, c.Id, "a@x.io", "https://drive.example/a")
	require.NoError(t, err)

	participants, err := f.payments.ListParticipants(ctx, c.Id)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "a@x.io", participants[0].Email)
	assert.Equal(t, "a@x.io", participants[0].Name)
	assert.Len(t, participants[0].Submissions, 1)
	assert.Equal(t, "b@x.io", participants[1].Email)
	assert.Empty(t, participants[1].Name)
	assert.NotNil(t, participants[1].Submissions)
}

func TestListByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")
	other := f.contest(t, "maker@x.io")

	won, err := f.payments.ConfirmPayment(ctx, f.paidSession(t, c.Id, "a@x.io").ID, "")
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, f.paidSession(t, other.Id, "a@x.io").ID, "")
	require.NoError(t, err)
	_, err = f.contests.DeclareWinner(ctx, c.Id, won.Payment.Id, "a@x.io")
	require.NoError(t, err)

	all, err := f.payments.ListByEmail(ctx, "a@x.io", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wins, err := f.payments.ListByEmail(ctx, "a@x.io", true)
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, won.Payment.Id, wins[0].Id)
}

func TestReconcileRepairsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contest(t, "maker@x.io")
	idle := f.contest(t, "maker@x.io")

	_, err := f.payments.ConfirmPayment(ctx, f.paidSession(t, c.Id, "a@x.io").ID, "")
	require.NoError(t, err)

	fixed, err := f.payments.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)

	require.NoError(t, f.db.Model(&model.Contest{}).Where("id = ?", c.Id).Update("participants_count", 7).Error)
	require.NoError(t, f.db.Model(&model.Contest{}).Where("id = ?", idle.Id).Update("participants_count", 2).Error)

	fixed, err = f.payments.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	got, err := f.contests.Get(ctx, c.Id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ParticipantsCount)
	got, err = f.contests.Get(ctx, idle.Id)
	require.NoError(t, err)
	assert.Zero(t, got.ParticipantsCount)
}
