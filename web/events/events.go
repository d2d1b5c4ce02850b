// Package events publishes contest and payment domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"sync"
	"time"
)

// Routing keys.
const (
	ContestCreated   = "contest.created"
	ContestApproved  = "contest.approved"
	ContestRejected  = "contest.rejected"
	ContestDeleted   = "contest.deleted"
	WinnerDeclared   = "contest.winner_declared"
	PaymentConfirmed = "payment.confirmed"
	TaskSubmitted    = "payment.task_submitted"
	RoleChanged      = "user.role_changed"
)

// Envelope wraps every published payload.
type Envelope struct {
	Event      string `json:"event"`
	Version    int    `json:"version"`
	OccurredAt string `json:"occurred_at"`
	Data       any    `json:"data"`
}

func NewEnvelope(key string, data any) Envelope {
	return Envelope{Event: key, Version: 1, OccurredAt: time.Now().UTC().Format(time.RFC3339), Data: data}
}

// Publisher sends an event under a routing key. Publishing is best effort:
// callers log failures and do not undo the state change that produced them.
type Publisher interface {
	Publish(ctx context.Context, key string, data any) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Envelope
}

func (r *Recorder) Publish(_ context.Context, key string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, NewEnvelope(key, data))
	return nil
}

func (r *Recorder) Close() error { return nil }

// Keys returns the routing keys seen so far, in order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.Events))
	for i, e := range r.Events {
		keys[i] = e.Event
	}
	return keys
}
