package polling

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialogStateCountdownDerivesFromAttempts(t *testing.T) {
	gw := &fakeGateway{fn: func(call int) (*models.Payment, error) {
		return unpaid(42), nil
	}}
	clock := newFakeClock()
	cfg := testConfig()
	engine := NewEngine(gw, cfg, clock)

	session := engine.Start(context.Background(), 42, Callbacks{})
	defer session.Stop()

	sync := NewDialogStateSync(session, cfg)

	require.Eventually(t, func() bool {
		return session.Snapshot().AttemptCount == 1
	}, 2*time.Second, time.Millisecond)

	state := sync.State()
	assert.True(t, state.IsWaiting)
	assert.Equal(t, "1/180", state.AttemptsLabel)
	assert.Equal(t, 895, state.RemainingSeconds)

	clock.tick(t)
	require.Eventually(t, func() bool {
		return session.Snapshot().AttemptCount == 2
	}, 2*time.Second, time.Millisecond)

	state = sync.State()
	assert.Equal(t, "2/180", state.AttemptsLabel)
	assert.Equal(t, 890, state.RemainingSeconds)
}

func TestDialogStateAfterSuccess(t *testing.T) {
	gw := &fakeGateway{fn: func(call int) (*models.Payment, error) {
		return paid(42), nil
	}}
	clock := newFakeClock()
	cfg := testConfig()
	engine := NewEngine(gw, cfg, clock)

	session := engine.Start(context.Background(), 42, Callbacks{})
	<-session.Done()

	state := NewDialogStateSync(session, cfg).State()
	assert.False(t, state.IsWaiting)
	assert.Equal(t, string(PhaseSucceeded), state.Phase)
}

func TestDialogStateRemainingNeverNegative(t *testing.T) {
	session := &Session{phase: PhaseTimedOut, attemptCount: 200}
	state := NewDialogStateSync(session, testConfig()).State()
	assert.Equal(t, 0, state.RemainingSeconds)
	assert.Equal(t, "200/180", state.AttemptsLabel)
}
