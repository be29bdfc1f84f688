package tourstate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cicerone/pkg/store"
)

func persist(t *testing.T, st store.StateStore, tourID string, rec persisted) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, st.SetState(context.Background(), keyPrefix+tourID, string(data)))
}

func TestLoadReconciliation(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		rec       *persisted
		wantState State
		wantPos   time.Duration
	}{
		{
			name:      "NoPersistedSession",
			rec:       nil,
			wantState: StateInitial,
		},
		{
			name:      "TourIDMismatch",
			rec:       &persisted{State: StateRecordActive, TourID: "other", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "ExpiredSession",
			rec:       &persisted{State: StateRecordActive, TourID: "t1", HasContent: true, LastUpdated: now.Add(-25 * time.Hour).UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "LoadingWithContent",
			rec:       &persisted{State: StateLoadingRecord, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateRecordPaused,
		},
		{
			name:      "LoadingWithoutContent",
			rec:       &persisted{State: StateLoadingRecord, TourID: "t1", HasContent: false, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "LoadingWhenPausedWithContent",
			rec:       &persisted{State: StateLoadingRecordWhenPaused, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateRecordPaused,
		},
		{
			name:      "ErrorWithContent",
			rec:       &persisted{State: StateError, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateRecordPaused,
		},
		{
			name:      "ErrorWithoutContent",
			rec:       &persisted{State: StateError, TourID: "t1", HasContent: false, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "RecordFinishedNotResumable",
			rec:       &persisted{State: StateRecordFinished, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "TourFinishedNotResumable",
			rec:       &persisted{State: StateTourFinished, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
		{
			name:      "ActiveRestoredVerbatim",
			rec:       &persisted{State: StateRecordActive, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli(), AudioPosition: 12.5},
			wantState: StateRecordActive,
			wantPos:   12500 * time.Millisecond,
		},
		{
			name:      "PausedRestoredVerbatim",
			rec:       &persisted{State: StateRecordPaused, TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateRecordPaused,
		},
		{
			name:      "UnknownStateStartsFresh",
			rec:       &persisted{State: "BOGUS", TourID: "t1", HasContent: true, LastUpdated: now.UnixMilli()},
			wantState: StateInitial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			if tt.rec != nil {
				persist(t, st, "t1", *tt.rec)
			}

			m := NewMachine(st, "t1", WithClock(func() time.Time { return now }))
			state, pos := m.Load(context.Background())

			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantState, m.Current())
		})
	}
}

func TestLoadCorruptJSON(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SetState(context.Background(), keyPrefix+"t1", "{not json"))

	m := NewMachine(st, "t1")
	state, _ := m.Load(context.Background())
	assert.Equal(t, StateInitial, state)
}

func TestSetPersists(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m := NewMachine(st, "t1",
		WithClock(func() time.Time { return now }),
		WithContentCheck(func() bool { return true }),
	)
	m.SetAudioPosition(3 * time.Second)
	require.NoError(t, m.Set(context.Background(), StateRecordActive))

	raw, ok := st.GetState(context.Background(), keyPrefix+"t1")
	require.True(t, ok)

	var rec persisted
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, StateRecordActive, rec.State)
	assert.Equal(t, "t1", rec.TourID)
	assert.True(t, rec.HasContent)
	assert.Equal(t, now.UnixMilli(), rec.LastUpdated)
	assert.Equal(t, 3.0, rec.AudioPosition)
}

func TestSetWithContentOverride(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewMachine(st, "t1", WithContentCheck(func() bool { return true }))
	require.NoError(t, m.SetWithContent(context.Background(), StateInitial, false))

	raw, _ := st.GetState(context.Background(), keyPrefix+"t1")
	var rec persisted
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.False(t, rec.HasContent)
}

func TestClear(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewMachine(st, "t1")
	require.NoError(t, m.Set(context.Background(), StateRecordActive))
	require.NoError(t, m.Clear(context.Background()))

	assert.Equal(t, StateInitial, m.Current())
	_, ok := st.GetState(context.Background(), keyPrefix+"t1")
	assert.False(t, ok)
}

func TestCanFetch(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewMachine(st, "t1")

	fetchable := map[State]bool{
		StateInitial:                 true,
		StateLoadingRecord:           false,
		StateLoadingRecordWhenPaused: false,
		StateRecordReceived:          true,
		StateRecordActive:            true,
		StateRecordPaused:            true,
		StateRecordFinished:          true,
		StateTourFinished:            false,
		StateError:                   false,
	}
	for state, want := range fetchable {
		require.NoError(t, m.Set(context.Background(), state))
		assert.Equal(t, want, m.CanFetch(), "state %s", state)
	}
}
