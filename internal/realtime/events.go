package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"ridesync/internal/models"
)

type EventType string

const (
	EventLocationUpdate EventType = "location_update"
	EventRideStatus     EventType = "ride_status"
	EventDriverUpdate   EventType = "driver_update"
	EventChatMessage    EventType = "chat_message"
	EventRideRequest    EventType = "ride_request"
	EventPing           EventType = "ping"
	EventPong           EventType = "pong"
)

// ErrUnknownEvent marks inbound message types this client does not
// understand. Callers log and ignore them rather than failing.
type ErrUnknownEvent struct {
	Type string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown realtime event type %q", e.Type)
}

// Event is the tagged union of inbound realtime messages.
type Event interface {
	EventType() EventType
}

// LocationUpdate is a driver position broadcast.
type LocationUpdate struct {
	RideID      string             `json:"ride_id,omitempty"`
	DriverID    string             `json:"driver_id"`
	Coordinates models.Coordinates `json:"coordinates"`
}

func (LocationUpdate) EventType() EventType { return EventLocationUpdate }

// RideStatusUpdate reports a server-side ride state change.
type RideStatusUpdate struct {
	RideID    string    `json:"ride_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RideStatusUpdate) EventType() EventType { return EventRideStatus }

// DriverUpdate reports driver availability or assignment changes.
type DriverUpdate struct {
	DriverID string `json:"driver_id"`
	RideID   string `json:"ride_id,omitempty"`
	Status   string `json:"status"`
}

func (DriverUpdate) EventType() EventType { return EventDriverUpdate }

// ChatMessage is an in-ride chat line.
type ChatMessage struct {
	RideID   string    `json:"ride_id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

func (ChatMessage) EventType() EventType { return EventChatMessage }

// RideRequest is a dispatch offer pushed to a driver.
type RideRequest struct {
	RideID        string  `json:"ride_id"`
	DriverID      string  `json:"driver_id"`
	RiderID       string  `json:"rider_id"`
	PickupLat     float64 `json:"pickup_lat"`
	PickupLon     float64 `json:"pickup_lon"`
	DropoffLat    float64 `json:"dropoff_lat"`
	DropoffLon    float64 `json:"dropoff_lon"`
	FareEstimate  float64 `json:"fare_estimate,omitempty"`
	ExpiresInSecs int     `json:"expires_in_secs,omitempty"`
}

func (RideRequest) EventType() EventType { return EventRideRequest }

// Pong answers a client heartbeat ping.
type Pong struct{}

func (Pong) EventType() EventType { return EventPong }

// envelope carries the discriminator used to pick the payload type.
type envelope struct {
	Type string `json:"type"`
}

// DecodeEvent parses one inbound frame into its typed event. Unknown
// types return *ErrUnknownEvent so the caller can log and move on.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("realtime: decode envelope: %w", err)
	}

	switch EventType(env.Type) {
	case EventLocationUpdate:
		var ev LocationUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("realtime: decode location_update: %w", err)
		}
		return ev, nil
	case EventRideStatus:
		var ev RideStatusUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("realtime: decode ride_status: %w", err)
		}
		return ev, nil
	case EventDriverUpdate:
		var ev DriverUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("realtime: decode driver_update: %w", err)
		}
		return ev, nil
	case EventChatMessage:
		var ev ChatMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("realtime: decode chat_message: %w", err)
		}
		return ev, nil
	case EventRideRequest:
		var ev RideRequest
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("realtime: decode ride_request: %w", err)
		}
		return ev, nil
	case EventPong:
		return Pong{}, nil
	default:
		return nil, &ErrUnknownEvent{Type: env.Type}
	}
}
