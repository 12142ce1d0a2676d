package models

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for queue draining; lower drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// QueuedRequest is a mutating HTTP request captured while offline and
// persisted until it is replayed or its retry budget is exhausted.
type QueuedRequest struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	RetryCount int               `json:"retry_count"`
	Priority   Priority          `json:"priority"`
}

// QueuedMessage is an outbound realtime message held while the
// connection is down.
type QueuedMessage struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// Stale reports whether the message has aged past maxAge at flush time.
func (m QueuedMessage) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(m.EnqueuedAt) > maxAge
}
