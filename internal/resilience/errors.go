package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrOffline is the cause carried by a NetworkError when a request was
// rejected because no connectivity was available and the request was
// not eligible for queuing.
var ErrOffline = errors.New("network offline")

// CircuitOpenError is returned when the endpoint's circuit breaker is
// open; no network call was made. Callers should back off until
// RetryAt.
type CircuitOpenError struct {
	Endpoint string
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Endpoint, e.RetryAt.Format(time.RFC3339))
}

// OfflineQueuedError reports that a mutating request was accepted into
// the offline queue for later delivery. From the user's perspective
// this is "queued, will send", not a failure.
type OfflineQueuedError struct {
	RequestID string
	Priority  string
}

func (e *OfflineQueuedError) Error() string {
	return fmt.Sprintf("request %s queued for replay (priority %s)", e.RequestID, e.Priority)
}

// HTTPError is a non-2xx response from the server. 4xx is generally
// not retryable except 408 and 429; 5xx is retryable.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Status, e.URL)
}

// NetworkError means no usable response was obtained.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsCircuitOpen reports whether err is a circuit-breaker rejection.
func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}

// IsOfflineQueued reports whether err means the request was queued for
// later delivery rather than failed.
func IsOfflineQueued(err error) bool {
	var qe *OfflineQueuedError
	return errors.As(err, &qe)
}

// HTTPStatus extracts the status code from an HTTPError chain, or 0.
func HTTPStatus(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
