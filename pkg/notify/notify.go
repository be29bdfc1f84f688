// Package notify collects user-facing notifications for pickup over the API.
package notify

import (
	"sync"
	"time"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	TourID    string    `json:"tour_id,omitempty"`
	Retryable bool      `json:"retryable"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n Notification)
}

// Ring is a bounded in-memory Notifier. The oldest entries are dropped once
// the capacity is reached.
type Ring struct {
	mu      sync.Mutex
	entries []Notification
	cap     int
}

// NewRing creates a ring holding at most capacity notifications.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 50
	}
	return &Ring{cap: capacity}
}

// Notify implements Notifier.
func (r *Ring) Notify(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, n)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

// Recent returns the stored notifications, oldest first.
func (r *Ring) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.entries))
	copy(out, r.entries)
	return out
}

// Clear drops all stored notifications.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Discard is a Notifier that drops everything. Useful in tests.
type Discard struct{}

func (Discard) Notify(Notification) {}
