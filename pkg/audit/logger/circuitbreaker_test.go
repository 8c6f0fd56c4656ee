package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, time.Hour)

	cb.recordFailure()
	cb.recordFailure()
	assert.True(t, cb.allow(), "below threshold the breaker stays closed")

	cb.recordFailure()
	assert.True(t, cb.open())
	assert.False(t, cb.allow())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := newCircuitBreaker(2, time.Hour)

	cb.recordFailure()
	cb.recordSuccess()
	cb.recordFailure()
	assert.True(t, cb.allow(), "success resets the failure count")
}

func TestCircuitBreaker_ReopensAfterCooldown(t *testing.T) {
	cb := newCircuitBreaker(1, 20*time.Millisecond)

	cb.recordFailure()
	require.False(t, cb.allow())

	assert.Eventually(t, cb.allow, time.Second, 5*time.Millisecond)
	assert.False(t, cb.open())
}
