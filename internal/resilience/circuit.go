package resilience

import (
	"sync"
	"time"
)

// BreakerState is the per-endpoint circuit snapshot. IsOpen implies
// FailureCount reached the threshold.
type BreakerState struct {
	IsOpen        bool      `json:"is_open"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// circuitBreaker tracks failures per endpoint and disables endpoints
// that keep failing. An open circuit lets the next request through
// once NextAttemptAt has passed; that request acts as the probe.
type circuitBreaker struct {
	mu         sync.Mutex
	threshold  int
	resetAfter time.Duration
	states     map[string]*BreakerState
}

func newCircuitBreaker(threshold int, resetAfter time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold:  threshold,
		resetAfter: resetAfter,
		states:     make(map[string]*BreakerState),
	}
}

// allow reports whether a request to endpoint may proceed. When the
// circuit is open and the cooldown has not elapsed it returns false
// and the time the next probe is allowed.
func (c *circuitBreaker) allow(endpoint string, now time.Time) (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[endpoint]
	if !ok || !state.IsOpen {
		return true, time.Time{}
	}

	if now.Before(state.NextAttemptAt) {
		return false, state.NextAttemptAt
	}

	// Cooldown elapsed; let this request through as the probe.
	return true, time.Time{}
}

// recordSuccess closes the circuit and clears the failure count.
func (c *circuitBreaker) recordSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[endpoint]
	if !ok {
		return
	}

	state.IsOpen = false
	state.FailureCount = 0
	state.NextAttemptAt = time.Time{}
}

// recordFailure increments the failure count and opens the circuit
// once the threshold is reached. Returns true when this failure opened
// the circuit.
func (c *circuitBreaker) recordFailure(endpoint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[endpoint]
	if !ok {
		state = &BreakerState{}
		c.states[endpoint] = state
	}

	state.FailureCount++
	state.LastFailureAt = now

	if state.FailureCount >= c.threshold {
		opened := !state.IsOpen
		state.IsOpen = true
		state.NextAttemptAt = now.Add(c.resetAfter)
		return opened
	}

	return false
}

// snapshot copies the current per-endpoint states for diagnostics.
func (c *circuitBreaker) snapshot() map[string]BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]BreakerState, len(c.states))
	for endpoint, state := range c.states {
		out[endpoint] = *state
	}
	return out
}
