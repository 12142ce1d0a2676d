package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitOpensAtThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, time.Minute)
	now := time.Now()

	assert.False(t, cb.recordFailure("/api/rides", now))
	assert.False(t, cb.recordFailure("/api/rides", now))
	assert.True(t, cb.recordFailure("/api/rides", now), "third failure opens the circuit")

	ok, retryAt := cb.allow("/api/rides", now)
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), retryAt)
}

func TestCircuitIsPerEndpoint(t *testing.T) {
	cb := newCircuitBreaker(1, time.Minute)
	now := time.Now()

	cb.recordFailure("/api/rides", now)

	ok, _ := cb.allow("/api/rides", now)
	assert.False(t, ok)

	ok, _ = cb.allow("/api/drivers", now)
	assert.True(t, ok)
}

func TestCircuitAllowsProbeAfterCooldown(t *testing.T) {
	cb := newCircuitBreaker(1, time.Minute)
	now := time.Now()

	cb.recordFailure("/api/rides", now)

	ok, _ := cb.allow("/api/rides", now.Add(30*time.Second))
	assert.False(t, ok)

	ok, _ = cb.allow("/api/rides", now.Add(61*time.Second))
	assert.True(t, ok, "cooldown elapsed, probe goes through")
}

func TestCircuitSuccessResets(t *testing.T) {
	cb := newCircuitBreaker(2, time.Minute)
	now := time.Now()

	cb.recordFailure("/api/rides", now)
	cb.recordFailure("/api/rides", now)
	cb.recordSuccess("/api/rides")

	ok, _ := cb.allow("/api/rides", now)
	assert.True(t, ok)

	state := cb.snapshot()["/api/rides"]
	assert.False(t, state.IsOpen)
	assert.Zero(t, state.FailureCount)
}
