package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, ContestApproved, map[string]string{"id": "c1"}))
	require.NoError(t, r.Publish(ctx, PaymentConfirmed, map[string]string{"id": "p1"}))

	assert.Equal(t, []string{ContestApproved, PaymentConfirmed}, r.Keys())
	assert.Equal(t, 1, r.Events[0].Version)
	assert.NotEmpty(t, r.Events[0].OccurredAt)
}

func TestNewWithoutURLIsNop(t *testing.T) {
	p, err := New("", "arena.events")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), ContestCreated, nil))
	assert.NoError(t, p.Close())
}
