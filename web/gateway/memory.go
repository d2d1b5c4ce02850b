package gateway

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/createarena/arena/util/random"

	"github.com/goccy/go-json"
)

// ErrUnknownSession is returned by Memory for ids it never issued.
var ErrUnknownSession = errors.New("unknown checkout session")

// Memory is an in-process gateway for local development and tests. Sessions
// start unpaid; MarkPaid completes one.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// Fail, when set, is returned by every provider call.
	Fail  error
	Calls int
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*Session)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Fail != nil {
		return nil, m.Fail
	}
	id := "cs_" + random.Seq(16)
	s := &Session{
		ID:            id,
		URL:           "https://checkout.invalid/" + id,
		TransactionID: "pi_" + random.Seq(16),
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.Email,
		Metadata: map[string]string{
			MetaContestID:   req.ContestID,
			MetaEmail:       req.Email,
			MetaDisplayName: req.DisplayName,
		},
	}
	m.sessions[id] = s
	return copySession(s), nil
}

func (m *Memory) RetrieveSession(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Fail != nil {
		return nil, m.Fail
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return copySession(s), nil
}

// ParseWebhook accepts {"sessionId": "..."} signed with the literal signature "memory".
// A payload naming a session this gateway never issued fails verification.
func (m *Memory) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Session, error) {
	if signature != "memory" {
		return nil, ErrSignature
	}
	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Join(ErrSignature, err)
	}
	s, err := m.RetrieveSession(ctx, body.SessionID)
	if errors.Is(err, ErrUnknownSession) {
		return nil, errors.Join(ErrSignature, err)
	}
	if err != nil {
		return nil, err
	}
	if !s.Paid {
		return nil, nil
	}
	return s, nil
}

// Put stores a session as given, replacing any with the same id.
func (m *Memory) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
}

// MarkPaid completes a session; it reports false for unknown ids.
func (m *Memory) MarkPaid(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if ok {
		s.Paid = true
	}
	return ok
}

func copySession(s *Session) *Session {
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}
