package position

import (
	"context"
	"fmt"

	"cicerone/pkg/store"
)

// Mode selects where position samples come from.
type Mode string

const (
	ModeGPS    Mode = "gps"
	ModeManual Mode = "manual"
)

const modeKey = "position-mode"

// ModeStore persists the selected position mode across restarts.
type ModeStore struct {
	st store.StateStore
}

// NewModeStore creates a mode store backed by the given state store.
func NewModeStore(st store.StateStore) *ModeStore {
	return &ModeStore{st: st}
}

// Get returns the persisted mode. Missing or unknown values fall back to GPS.
func (m *ModeStore) Get(ctx context.Context) Mode {
	v, ok := m.st.GetState(ctx, modeKey)
	if !ok {
		return ModeGPS
	}
	switch Mode(v) {
	case ModeGPS, ModeManual:
		return Mode(v)
	default:
		return ModeGPS
	}
}

// Set persists the mode. Unknown modes are rejected.
func (m *ModeStore) Set(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeGPS, ModeManual:
		return m.st.SetState(ctx, modeKey, string(mode))
	default:
		return fmt.Errorf("position: unknown mode %q", mode)
	}
}
