package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/createarena/arena/config"
	"github.com/createarena/arena/database"
	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/web/cache"
	"github.com/createarena/arena/web/events"
	"github.com/createarena/arena/web/gateway"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	cache    *cache.Cache
	gw       *gateway.Memory
	events   *events.Recorder
	users    *UserService
	contests *ContestService
	payments *PaymentService
	creators *CreatorService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(config.InMemory(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	c, err := cache.New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{db: db, cache: c, gw: gateway.NewMemory(), events: &events.Recorder{}}
	f.users = NewUserService(db, f.events)
	f.contests = NewContestService(db, c, f.events)
	f.payments = NewPaymentService(db, f.gw, c, f.events, "https://arena.test/", "usd")
	f.creators = NewCreatorService(db, f.events)

	clock := steppingClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f.users.now = clock
	f.contests.now = clock
	f.payments.now = clock
	f.creators.now = clock
	return f
}

// steppingClock advances one second per reading so creation order is strict.
func steppingClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func (f *fixture) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u, _, err := f.users.Register(context.Background(), email, email, "")
	require.NoError(t, err)
	if role != model.RoleUser {
		require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", u.Id).Update("role", role).Error)
		u.Role = role
	}
	return u
}

func (f *fixture) contest(t *testing.T, creator string) *model.Contest {
	t.Helper()
	c, err := f.contests.Create(context.Background(), creator, ContestInput{Name: "Logo design", Price: 50, PrizeMoney: 500})
	require.NoError(t, err)
	return c
}

// paidSession creates a completed checkout session in the memory gateway.
func (f *fixture) paidSession(t *testing.T, contestID, email string) *gateway.Session {
	t.Helper()
	s, err := f.gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		Amount: 50, Currency: "usd", ContestID: contestID, Email: email, DisplayName: email,
	})
	require.NoError(t, err)
	require.True(t, f.gw.MarkPaid(s.ID))
	s.Paid = true
	return s
}
