package lifecycle

import (
	"sync"
	"time"

	"ridesync/internal/observability"
	"ridesync/pkg/logger"
)

const historyLimit = 50

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	State     State     `json:"state"`
	RideID    string    `json:"ride_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes a machine instance. TimeoutOverrides replaces the
// table timeout for the named states (tests use very short ones);
// OnChange is invoked after every applied transition, outside the
// machine lock.
type Options struct {
	TimeoutOverrides map[State]time.Duration
	OnChange         func(state State, rideID string)
}

// Machine enforces the driver ride-progression table and arms the
// timeout-driven auto-transitions. Pure in-memory state; one instance
// per driver session, injected where needed rather than held as a
// package singleton.
type Machine struct {
	mu       sync.Mutex
	current  State
	rideID   string
	history  []HistoryEntry
	timer    *time.Timer
	opts     Options
	log      *logger.Logger
}

func NewMachine(log *logger.Logger, opts *Options) *Machine {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Machine{
		current: StateOffline,
		log:     log.WithField("component", "lifecycle"),
	}
	if opts != nil {
		m.opts = *opts
	}
	return m
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RideID returns the ride attached to the current state, if any.
func (m *Machine) RideID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rideID
}

// History copies the transition history, most recent last.
func (m *Machine) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// CanCancel reports whether the current state permits cancellation.
func (m *Machine) CanCancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Meta().CanCancel
}

// Transition attempts to move to newState. Invalid moves return false
// with a log entry and no side effect; invalid-transition attempts are
// expected under racy UI conditions and must never panic. rideID is
// required when entering a state that needs one (unless a ride is
// already attached) and ignored otherwise.
func (m *Machine) Transition(newState State, rideID string) bool {
	m.mu.Lock()

	if !newState.Valid() || !m.current.allows(newState) {
		from := m.current
		m.mu.Unlock()
		observability.StateTransitionsTotal.WithLabelValues("rejected").Inc()
		m.log.LogTransition(string(from), string(newState), rideID, false)
		return false
	}

	meta := newState.Meta()
	if meta.RequiresRide && rideID == "" && m.rideID == "" {
		from := m.current
		m.mu.Unlock()
		observability.StateTransitionsTotal.WithLabelValues("rejected").Inc()
		m.log.WithFields(map[string]interface{}{
			"from": string(from),
			"to":   string(newState),
		}).Warn("Transition rejected: ride id required")
		return false
	}

	from := m.current
	m.applyLocked(newState, rideID)
	ride := m.rideID
	m.mu.Unlock()

	observability.StateTransitionsTotal.WithLabelValues("accepted").Inc()
	m.log.LogTransition(string(from), string(newState), ride, true)
	m.notify(newState, ride)
	return true
}

// ForceCancel bypasses the transition table for emergency or
// administrative cancellation. Always succeeds.
func (m *Machine) ForceCancel(reason string) {
	m.mu.Lock()
	from := m.current
	m.applyLocked(StateCancelled, "")
	m.mu.Unlock()

	observability.StateTransitionsTotal.WithLabelValues("forced").Inc()
	m.log.WithFields(map[string]interface{}{
		"from":   string(from),
		"reason": reason,
	}).Warn("Ride force-cancelled")
	m.notify(StateCancelled, "")
}

// Reset returns the machine to offline with cleared history.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.current = StateOffline
	m.rideID = ""
	m.history = nil
	m.mu.Unlock()

	m.notify(StateOffline, "")
}

// applyLocked commits a transition: cancels any pending auto-timer,
// updates state and ride attachment, appends history, and arms the new
// state's auto-transition timer if it declares one.
func (m *Machine) applyLocked(newState State, rideID string) {
	m.cancelTimerLocked()

	meta := newState.Meta()
	m.current = newState

	if meta.RequiresRide {
		if rideID != "" {
			m.rideID = rideID
		}
	} else {
		m.rideID = ""
	}
	if meta.Terminal {
		m.rideID = ""
	}

	m.history = append(m.history, HistoryEntry{
		State:     newState,
		RideID:    m.rideID,
		Timestamp: time.Now(),
	})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}

	timeout := meta.Timeout
	if override, ok := m.opts.TimeoutOverrides[newState]; ok {
		timeout = override
	}
	if timeout > 0 && meta.AutoNext != "" {
		from := newState
		next := meta.AutoNext
		m.timer = time.AfterFunc(timeout, func() {
			m.autoFire(from, next)
		})
	}
}

// autoFire applies a timeout-driven transition. The timer is cancelled
// on every explicit transition, but a fire can still race the lock, so
// the origin state is re-checked before anything happens.
func (m *Machine) autoFire(from, next State) {
	m.mu.Lock()
	if m.current != from {
		m.mu.Unlock()
		return
	}
	m.applyLocked(next, "")
	ride := m.rideID
	m.mu.Unlock()

	observability.StateTransitionsTotal.WithLabelValues("auto").Inc()
	m.log.WithFields(map[string]interface{}{
		"from": string(from),
		"to":   string(next),
	}).Info("State auto-expired")
	m.notify(next, ride)
}

func (m *Machine) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) notify(state State, rideID string) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(state, rideID)
	}
}
