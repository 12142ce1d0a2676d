package models

import (
	"time"
)

type LocationSource string

const (
	LocationSourceGPS     LocationSource = "gps"
	LocationSourceNetwork LocationSource = "network"
	LocationSourceCached  LocationSource = "cached"
	LocationSourceManual  LocationSource = "manual"
	LocationSourceIP      LocationSource = "ip"
	LocationSourceNone    LocationSource = "none"
)

type AccuracyTier string

const (
	AccuracyTierHigh   AccuracyTier = "high"
	AccuracyTierMedium AccuracyTier = "medium"
	AccuracyTierLow    AccuracyTier = "low"
)

// Coordinates is a single position fix.
type Coordinates struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	HeadingDeg     *float64  `json:"heading_deg,omitempty"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Age returns how old the fix is relative to now.
func (c Coordinates) Age(now time.Time) time.Duration {
	return now.Sub(c.CapturedAt)
}

// LocationFailure describes why a location could not be obtained.
type LocationFailure struct {
	Kind            string `json:"kind"`
	Message         string `json:"message"`
	Retryable       bool   `json:"retryable"`
	NeedsUserAction bool   `json:"needs_user_action"`
}

// LocationResult is the outcome of one acquisition attempt, successful
// or not, tagged with the source that produced it.
type LocationResult struct {
	Success      bool             `json:"success"`
	Coordinates  *Coordinates     `json:"coordinates,omitempty"`
	Failure      *LocationFailure `json:"failure,omitempty"`
	Source       LocationSource   `json:"source"`
	AccuracyTier AccuracyTier     `json:"accuracy_tier"`
}
