package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	// Two more failures stay below the threshold after the reset
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, 50*time.Millisecond, nil)

	require.True(t, cb.RecordFailure())
	require.True(t, cb.IsOpen())

	time.Sleep(80 * time.Millisecond)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerFailureWindow(t *testing.T) {
	cb := NewCircuitBreaker(true, 2, 50*time.Millisecond, time.Minute, nil)

	cb.RecordFailure()
	time.Sleep(80 * time.Millisecond)

	// The earlier failure fell out of the window
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)

	require.True(t, cb.RecordFailure())
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())

	count, _, _, threshold := cb.GetState()
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, threshold)
}
