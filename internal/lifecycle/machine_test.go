package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driveTo walks the machine through a known-valid path to the target
// state.
func driveTo(t *testing.T, m *Machine, target State) {
	t.Helper()

	paths := map[State][]State{
		StateOnline:                {StateGoingOnline, StateOnline},
		StateCountdown:             {StateGoingOnline, StateOnline, StateIncomingRequest, StateCountdown},
		StateAccepted:              {StateGoingOnline, StateOnline, StateIncomingRequest, StateCountdown, StateAccepting, StateAccepted},
		StateWaitingForRider:       {StateGoingOnline, StateOnline, StateIncomingRequest, StateCountdown, StateAccepting, StateAccepted, StateNavigatingToPickup, StateArrivedAtPickup, StateWaitingForRider},
		StateInProgress:            {StateGoingOnline, StateOnline, StateIncomingRequest, StateCountdown, StateAccepting, StateAccepted, StateNavigatingToPickup, StateArrivedAtPickup, StateWaitingForRider, StateStartingRide, StateInProgress},
		StateCompleted:             {StateGoingOnline, StateOnline, StateIncomingRequest, StateCountdown, StateAccepting, StateAccepted, StateNavigatingToPickup, StateArrivedAtPickup, StateWaitingForRider, StateStartingRide, StateInProgress, StateArrivingAtDestination, StateCompleting, StateCompleted},
	}

	path, ok := paths[target]
	require.True(t, ok, "no scripted path to %s", target)
	for _, s := range path {
		require.True(t, m.Transition(s, "ride-1"), "step to %s", s)
	}
}

func TestInitialStateIsOffline(t *testing.T) {
	m := NewMachine(nil, nil)
	assert.Equal(t, StateOffline, m.State())
	assert.Empty(t, m.RideID())
}

func TestHappyPathToCompleted(t *testing.T) {
	m := NewMachine(nil, nil)
	driveTo(t, m, StateCompleted)

	assert.Equal(t, StateCompleted, m.State())
	assert.Empty(t, m.RideID(), "terminal state clears the ride")
	assert.True(t, m.Transition(StateOnline, ""))
}

func TestTableCompleteness(t *testing.T) {
	for _, from := range AllStates() {
		allowed := make(map[State]bool)
		for _, next := range from.AllowedNext() {
			allowed[next] = true
		}

		for _, to := range AllStates() {
			if allowed[to] {
				continue
			}

			m := NewMachine(nil, nil)
			m.mu.Lock()
			m.current = from
			m.rideID = "ride-1"
			m.mu.Unlock()

			ok := m.Transition(to, "ride-1")
			assert.False(t, ok, "%s -> %s must be rejected", from, to)
			assert.Equal(t, from, m.State(), "%s -> %s must not change state", from, to)
		}
	}
}

func TestUnknownStateRejected(t *testing.T) {
	m := NewMachine(nil, nil)
	assert.False(t, m.Transition(State("nonsense"), ""))
	assert.Equal(t, StateOffline, m.State())
}

func TestRideIDRequired(t *testing.T) {
	m := NewMachine(nil, nil)
	driveTo(t, m, StateOnline)

	assert.False(t, m.Transition(StateIncomingRequest, ""), "incoming_request needs a ride id")
	assert.Equal(t, StateOnline, m.State())

	assert.True(t, m.Transition(StateIncomingRequest, "ride-9"))
	assert.Equal(t, "ride-9", m.RideID())
}

func TestRideIDClearsOnReturnToOnline(t *testing.T) {
	m := NewMachine(nil, nil)
	driveTo(t, m, StateCountdown)
	require.Equal(t, "ride-1", m.RideID())

	require.True(t, m.Transition(StateOnline, ""), "decline returns to online")
	assert.Empty(t, m.RideID())
}

func TestCountdownAutoExpiresToOnline(t *testing.T) {
	var mu sync.Mutex
	var changes []State

	m := NewMachine(nil, &Options{
		TimeoutOverrides: map[State]time.Duration{
			StateIncomingRequest: time.Hour,
			StateCountdown:       20 * time.Millisecond,
		},
		OnChange: func(state State, rideID string) {
			mu.Lock()
			changes = append(changes, state)
			mu.Unlock()
		},
	})
	driveTo(t, m, StateCountdown)

	assert.Eventually(t, func() bool {
		return m.State() == StateOnline
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, m.RideID())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateOnline, changes[len(changes)-1])
}

func TestWaitingForRiderAutoExpiresToCancelling(t *testing.T) {
	m := NewMachine(nil, &Options{
		TimeoutOverrides: map[State]time.Duration{
			StateIncomingRequest: time.Hour,
			StateCountdown:       time.Hour,
			StateWaitingForRider: 20 * time.Millisecond,
		},
	})
	driveTo(t, m, StateWaitingForRider)

	assert.Eventually(t, func() bool {
		return m.State() == StateCancelling
	}, time.Second, 5*time.Millisecond)
}

func TestExplicitTransitionCancelsAutoTimer(t *testing.T) {
	m := NewMachine(nil, &Options{
		TimeoutOverrides: map[State]time.Duration{
			StateIncomingRequest: time.Hour,
			StateCountdown:       30 * time.Millisecond,
		},
	})
	driveTo(t, m, StateCountdown)

	require.True(t, m.Transition(StateAccepting, ""))
	require.True(t, m.Transition(StateAccepted, ""))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateAccepted, m.State(), "stale countdown timer must not fire")
}

func TestCanCancel(t *testing.T) {
	m := NewMachine(nil, nil)
	assert.False(t, m.CanCancel())

	driveTo(t, m, StateInProgress)
	assert.True(t, m.CanCancel())

	require.True(t, m.Transition(StateArrivingAtDestination, ""))
	assert.False(t, m.CanCancel())
}

func TestForceCancel(t *testing.T) {
	m := NewMachine(nil, nil)
	driveTo(t, m, StateInProgress)

	m.ForceCancel("support request")
	assert.Equal(t, StateCancelled, m.State())
	assert.Empty(t, m.RideID())
}

func TestHistoryIsBounded(t *testing.T) {
	m := NewMachine(nil, nil)

	for i := 0; i < 40; i++ {
		require.True(t, m.Transition(StateGoingOnline, ""))
		require.True(t, m.Transition(StateOnline, ""))
		require.True(t, m.Transition(StateOffline, ""))
	}

	history := m.History()
	assert.Len(t, history, 50)
	assert.Equal(t, StateOffline, history[len(history)-1].State)
}

func TestReset(t *testing.T) {
	m := NewMachine(nil, nil)
	driveTo(t, m, StateInProgress)

	m.Reset()
	assert.Equal(t, StateOffline, m.State())
	assert.Empty(t, m.RideID())
	assert.Empty(t, m.History())
}
