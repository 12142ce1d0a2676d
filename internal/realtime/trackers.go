package realtime

import (
	"sync"

	"ridesync/internal/models"
)

// RideTracker projects the event stream for a single ride: the latest
// driver position, a bounded position history, the latest ride status
// and the chat log. Events for other rides are ignored.
type RideTracker struct {
	rideID       string
	historyLimit int
	unsubscribe  func()

	mu         sync.Mutex
	lastCoords *models.Coordinates
	history    []models.Coordinates
	lastStatus *RideStatusUpdate
	chat       []ChatMessage
}

// TrackRide attaches a tracker to the manager's event stream.
// Close the tracker when the ride view is torn down.
func (m *Manager) TrackRide(rideID string) *RideTracker {
	t := &RideTracker{
		rideID:       rideID,
		historyLimit: m.cfg.LocationHistoryLimit,
	}
	t.unsubscribe = m.SubscribeEvents(t.consume)
	return t
}

func (t *RideTracker) consume(ev Event) {
	switch e := ev.(type) {
	case LocationUpdate:
		if e.RideID != t.rideID {
			return
		}
		t.mu.Lock()
		coords := e.Coordinates
		t.lastCoords = &coords
		t.history = append(t.history, coords)
		if len(t.history) > t.historyLimit {
			t.history = t.history[len(t.history)-t.historyLimit:]
		}
		t.mu.Unlock()
	case RideStatusUpdate:
		if e.RideID != t.rideID {
			return
		}
		t.mu.Lock()
		status := e
		t.lastStatus = &status
		t.mu.Unlock()
	case ChatMessage:
		if e.RideID != t.rideID {
			return
		}
		t.mu.Lock()
		t.chat = append(t.chat, e)
		t.mu.Unlock()
	}
}

// LastLocation returns the most recent driver position, if any.
func (t *RideTracker) LastLocation() (models.Coordinates, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastCoords == nil {
		return models.Coordinates{}, false
	}
	return *t.lastCoords, true
}

// LocationHistory returns a copy of the recorded positions, oldest
// first.
func (t *RideTracker) LocationHistory() []models.Coordinates {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Coordinates, len(t.history))
	copy(out, t.history)
	return out
}

// LastStatus returns the most recent ride status update, if any.
func (t *RideTracker) LastStatus() (RideStatusUpdate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastStatus == nil {
		return RideStatusUpdate{}, false
	}
	return *t.lastStatus, true
}

// Chat returns a copy of the chat log, oldest first.
func (t *RideTracker) Chat() []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChatMessage, len(t.chat))
	copy(out, t.chat)
	return out
}

// Close detaches the tracker from the event stream.
func (t *RideTracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
}

// DispatchFeed delivers incoming ride offers for a driver to a
// handler. Offers addressed to other drivers are ignored.
type DispatchFeed struct {
	unsubscribe func()
}

// WatchDispatch routes ride offers for driverID to handler.
func (m *Manager) WatchDispatch(driverID string, handler func(RideRequest)) *DispatchFeed {
	f := &DispatchFeed{}
	f.unsubscribe = m.SubscribeEvents(func(ev Event) {
		req, ok := ev.(RideRequest)
		if !ok || req.DriverID != driverID {
			return
		}
		handler(req)
	})
	return f
}

// Close detaches the feed from the event stream.
func (f *DispatchFeed) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
}
