package location

import (
	"fmt"

	"ridesync/internal/models"
)

// Failure kinds surfaced to callers. Retryability and the need for
// user action (settings deep-link, manual entry) are fixed per kind.
const (
	KindPermissionDenied     = "PERMISSION_DENIED"
	KindTimeout              = "TIMEOUT"
	KindPositionUnavailable  = "POSITION_UNAVAILABLE"
	KindNetworkError         = "NETWORK_ERROR"
	KindInsufficientAccuracy = "INSUFFICIENT_ACCURACY"
	KindGPSDisabled          = "GPS_DISABLED"
)

// Error is a structured location failure.
type Error struct {
	Kind            string
	Message         string
	Retryable       bool
	NeedsUserAction bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("location: %s: %s", e.Kind, e.Message)
}

func (e *Error) Failure() *models.LocationFailure {
	return &models.LocationFailure{
		Kind:            e.Kind,
		Message:         e.Message,
		Retryable:       e.Retryable,
		NeedsUserAction: e.NeedsUserAction,
	}
}

func ErrPermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: msg, NeedsUserAction: true}
}

func ErrTimeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Retryable: true}
}

func ErrPositionUnavailable(msg string) *Error {
	return &Error{Kind: KindPositionUnavailable, Message: msg, Retryable: true}
}

func ErrNetwork(msg string) *Error {
	return &Error{Kind: KindNetworkError, Message: msg, Retryable: true}
}

func ErrInsufficientAccuracy(msg string) *Error {
	return &Error{Kind: KindInsufficientAccuracy, Message: msg, Retryable: true}
}

func ErrGPSDisabled(msg string) *Error {
	return &Error{Kind: KindGPSDisabled, Message: msg, NeedsUserAction: true}
}

// betterOf picks the more actionable of two failures for reporting
// when the whole cascade fails. Permission and GPS problems beat
// transient ones since the user can actually fix them.
func betterOf(a, b *Error) *Error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if rankKind(b.Kind) < rankKind(a.Kind) {
		return b
	}
	return a
}

func rankKind(kind string) int {
	switch kind {
	case KindPermissionDenied:
		return 0
	case KindGPSDisabled:
		return 1
	case KindInsufficientAccuracy:
		return 2
	case KindPositionUnavailable:
		return 3
	case KindTimeout:
		return 4
	default:
		return 5
	}
}
