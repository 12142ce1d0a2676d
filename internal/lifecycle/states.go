package lifecycle

import (
	"time"
)

// State is one stage of a driver's ride progression.
type State string

const (
	StateOffline               State = "offline"
	StateGoingOnline           State = "going_online"
	StateOnline                State = "online"
	StateIncomingRequest       State = "incoming_request"
	StateCountdown             State = "countdown"
	StateAccepting             State = "accepting"
	StateAccepted              State = "accepted"
	StateNavigatingToPickup    State = "navigating_to_pickup"
	StateArrivedAtPickup       State = "arrived_at_pickup"
	StateWaitingForRider       State = "waiting_for_rider"
	StateStartingRide          State = "starting_ride"
	StateInProgress            State = "in_progress"
	StateArrivingAtDestination State = "arriving_at_destination"
	StateCompleting            State = "completing"
	StateCompleted             State = "completed"
	StateCancelling            State = "cancelling"
	StateCancelled             State = "cancelled"
)

// Metadata is the static description of a state: its display label,
// whether a ride id is required while in it, whether the driver may
// cancel from it, and an optional timeout that forces a transition to
// AutoNext when nothing else happens first.
type Metadata struct {
	Label        string
	Terminal     bool
	RequiresRide bool
	CanCancel    bool
	Timeout      time.Duration
	AutoNext     State
}

// stateTable maps each state to its metadata and allowed next states.
// Countdown auto-expires to online (an unanswered ride request is
// auto-declined); waiting_for_rider auto-expires to cancelling.
var stateTable = map[State]struct {
	Meta Metadata
	Next []State
}{
	StateOffline: {
		Meta: Metadata{Label: "Offline"},
		Next: []State{StateGoingOnline},
	},
	StateGoingOnline: {
		Meta: Metadata{Label: "Going Online"},
		Next: []State{StateOnline, StateOffline},
	},
	StateOnline: {
		Meta: Metadata{Label: "Online"},
		Next: []State{StateIncomingRequest, StateOffline},
	},
	StateIncomingRequest: {
		Meta: Metadata{Label: "Incoming Request", RequiresRide: true, Timeout: 10 * time.Second, AutoNext: StateOnline},
		Next: []State{StateCountdown, StateOnline},
	},
	StateCountdown: {
		Meta: Metadata{Label: "Request Countdown", RequiresRide: true, Timeout: 30 * time.Second, AutoNext: StateOnline},
		Next: []State{StateAccepting, StateOnline},
	},
	StateAccepting: {
		Meta: Metadata{Label: "Accepting", RequiresRide: true},
		Next: []State{StateAccepted, StateOnline},
	},
	StateAccepted: {
		Meta: Metadata{Label: "Accepted", RequiresRide: true, CanCancel: true},
		Next: []State{StateNavigatingToPickup, StateCancelling},
	},
	StateNavigatingToPickup: {
		Meta: Metadata{Label: "Navigating To Pickup", RequiresRide: true, CanCancel: true},
		Next: []State{StateArrivedAtPickup, StateCancelling},
	},
	StateArrivedAtPickup: {
		Meta: Metadata{Label: "Arrived At Pickup", RequiresRide: true, CanCancel: true},
		Next: []State{StateWaitingForRider, StateCancelling},
	},
	StateWaitingForRider: {
		Meta: Metadata{Label: "Waiting For Rider", RequiresRide: true, CanCancel: true, Timeout: 5 * time.Minute, AutoNext: StateCancelling},
		Next: []State{StateStartingRide, StateCancelling},
	},
	StateStartingRide: {
		Meta: Metadata{Label: "Starting Ride", RequiresRide: true, CanCancel: true},
		Next: []State{StateInProgress, StateCancelling},
	},
	StateInProgress: {
		Meta: Metadata{Label: "Ride In Progress", RequiresRide: true, CanCancel: true},
		Next: []State{StateArrivingAtDestination, StateCancelling},
	},
	StateArrivingAtDestination: {
		Meta: Metadata{Label: "Arriving At Destination", RequiresRide: true},
		Next: []State{StateCompleting},
	},
	StateCompleting: {
		Meta: Metadata{Label: "Completing", RequiresRide: true},
		Next: []State{StateCompleted, StateInProgress},
	},
	StateCompleted: {
		Meta: Metadata{Label: "Completed", Terminal: true},
		Next: []State{StateOnline, StateOffline},
	},
	StateCancelling: {
		Meta: Metadata{Label: "Cancelling", RequiresRide: true},
		Next: []State{StateCancelled},
	},
	StateCancelled: {
		Meta: Metadata{Label: "Cancelled", Terminal: true},
		Next: []State{StateOnline, StateOffline},
	},
}

// Meta returns the metadata for a state. Unknown states get a zero
// Metadata.
func (s State) Meta() Metadata {
	return stateTable[s].Meta
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := stateTable[s]
	return ok
}

// AllowedNext returns the states reachable from s.
func (s State) AllowedNext() []State {
	entry := stateTable[s]
	out := make([]State, len(entry.Next))
	copy(out, entry.Next)
	return out
}

// allows reports whether the table permits s -> next.
func (s State) allows(next State) bool {
	for _, candidate := range stateTable[s].Next {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllStates lists every known state, for table-completeness checks.
func AllStates() []State {
	out := make([]State, 0, len(stateTable))
	for s := range stateTable {
		out = append(out, s)
	}
	return out
}
