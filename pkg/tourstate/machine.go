// Package tourstate models the playback lifecycle of a tour and persists it
// so an interrupted session can resume where it left off.
package tourstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cicerone/pkg/store"
)

// State identifies a phase of the tour playback lifecycle.
type State string

const (
	StateInitial                 State = "INITIAL"
	StateLoadingRecord           State = "LOADING_RECORD"
	StateLoadingRecordWhenPaused State = "LOADING_RECORD_WHEN_PAUSED"
	StateRecordReceived          State = "RECORD_RECEIVED"
	StateRecordActive            State = "RECORD_ACTIVE"
	StateRecordPaused            State = "RECORD_PAUSED"
	StateRecordFinished          State = "RECORD_FINISHED"
	StateTourFinished            State = "TOUR_FINISHED"
	StateError                   State = "ERROR"
)

const keyPrefix = "tour-state-"

// DefaultExpiry is how long a persisted session stays resumable.
const DefaultExpiry = 24 * time.Hour

// persisted is the stored JSON shape. lastUpdated is unix milliseconds,
// audioPosition is seconds into the current utterance.
type persisted struct {
	State         State   `json:"state"`
	TourID        string  `json:"tourId"`
	HasContent    bool    `json:"hasContent"`
	LastUpdated   int64   `json:"lastUpdated"`
	AudioPosition float64 `json:"audioPosition,omitempty"`
}

// Machine tracks and persists the state of one tour.
type Machine struct {
	store        store.StateStore
	tourID       string
	expiry       time.Duration
	now          func() time.Time
	hasContentFn func() bool

	mu            sync.Mutex
	state         State
	audioPosition time.Duration
}

// Option configures a Machine.
type Option func(*Machine)

// WithExpiry overrides the session expiry window.
func WithExpiry(d time.Duration) Option {
	return func(m *Machine) { m.expiry = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithContentCheck sets the function consulted to compute hasContent on
// every transition. Defaults to always false until set.
func WithContentCheck(fn func() bool) Option {
	return func(m *Machine) { m.hasContentFn = fn }
}

// NewMachine creates a state machine for a tour. Call Load to reconcile any
// persisted session before use.
func NewMachine(st store.StateStore, tourID string, opts ...Option) *Machine {
	m := &Machine{
		store:        st,
		tourID:       tourID,
		expiry:       DefaultExpiry,
		now:          time.Now,
		hasContentFn: func() bool { return false },
		state:        StateInitial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the persisted session and reconciles it into a valid resumable
// state. Returns the restored audio position, which is zero unless the
// reconciled state carries a partially spoken utterance.
func (m *Machine) Load(ctx context.Context) (State, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.store.GetState(ctx, keyPrefix+m.tourID)
	if !ok {
		m.state = StateInitial
		return m.state, 0
	}

	var rec persisted
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("Tour state: discarding unreadable session", "tour", m.tourID, "error", err)
		m.state = StateInitial
		return m.state, 0
	}

	state, pos := reconcile(&rec, m.tourID, m.now(), m.expiry)
	m.state = state
	m.audioPosition = pos
	slog.Debug("Tour state: session loaded", "tour", m.tourID, "persisted", rec.State, "reconciled", state)
	return state, pos
}

// reconcile maps a persisted session onto a state that is safe to resume.
func reconcile(rec *persisted, tourID string, now time.Time, expiry time.Duration) (State, time.Duration) {
	if rec.TourID != tourID {
		return StateInitial, 0
	}
	age := now.Sub(time.UnixMilli(rec.LastUpdated))
	if age > expiry {
		return StateInitial, 0
	}

	switch rec.State {
	case StateLoadingRecord, StateLoadingRecordWhenPaused, StateError:
		// Mid-fetch and error states cannot resume; fall back to paused
		// content if there was any, else start over
		if rec.HasContent {
			return StateRecordPaused, secondsToDuration(rec.AudioPosition)
		}
		return StateInitial, 0
	case StateRecordFinished, StateTourFinished:
		// Terminal states are not resumable
		return StateInitial, 0
	case StateRecordReceived, StateRecordActive, StateRecordPaused:
		return rec.State, secondsToDuration(rec.AudioPosition)
	case StateInitial:
		return StateInitial, 0
	default:
		slog.Warn("Tour state: unknown persisted state", "state", rec.State)
		return StateInitial, 0
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Set transitions to the given state and persists the session.
func (m *Machine) Set(ctx context.Context, s State) error {
	return m.SetWithContent(ctx, s, m.hasContentFn())
}

// SetWithContent transitions with an explicit hasContent override.
func (m *Machine) SetWithContent(ctx context.Context, s State, hasContent bool) error {
	m.mu.Lock()
	m.state = s
	rec := persisted{
		State:         s,
		TourID:        m.tourID,
		HasContent:    hasContent,
		LastUpdated:   m.now().UnixMilli(),
		AudioPosition: m.audioPosition.Seconds(),
	}
	m.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := m.store.SetState(ctx, keyPrefix+m.tourID, string(data)); err != nil {
		// Losing persistence degrades resume, not playback
		slog.Warn("Tour state: persist failed", "tour", m.tourID, "state", s, "error", err)
	}
	return nil
}

// SetAudioPosition records the playback offset carried into the next persist.
func (m *Machine) SetAudioPosition(d time.Duration) {
	m.mu.Lock()
	m.audioPosition = d
	m.mu.Unlock()
}

// AudioPosition returns the last recorded playback offset.
func (m *Machine) AudioPosition() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioPosition
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanFetch reports whether the machine permits requesting new content:
// not already loading, not terminal, not errored.
func (m *Machine) CanFetch() bool {
	switch m.Current() {
	case StateLoadingRecord, StateLoadingRecordWhenPaused, StateTourFinished, StateError:
		return false
	default:
		return true
	}
}

// Clear removes the persisted session and resets to INITIAL.
func (m *Machine) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInitial
	m.audioPosition = 0
	m.mu.Unlock()
	return m.store.DeleteState(ctx, keyPrefix+m.tourID)
}

// TourID returns the tour this machine belongs to.
func (m *Machine) TourID() string {
	return m.tourID
}
