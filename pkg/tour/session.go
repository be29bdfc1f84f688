// Package tour orchestrates one playback session per tour: position updates
// trigger record fetches, records become narration text, text becomes
// speech, and every lifecycle step is persisted for resume.
package tour

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cicerone/pkg/model"
	"cicerone/pkg/narration"
	"cicerone/pkg/notify"
	"cicerone/pkg/position"
	"cicerone/pkg/speech"
	"cicerone/pkg/store"
	"cicerone/pkg/tourstate"
	"cicerone/pkg/tracker"
)

const backendProvider = "backend"

// Speaker is the slice of the speech controller a session drives.
type Speaker interface {
	Speak(ctx context.Context, text string, startAt time.Duration, cb speech.Callbacks) error
	Pause()
	Resume()
	Stop()
	IsSpeaking() bool
	IsPaused() bool
	Position() time.Duration
}

// RecordGateway fetches narration records from the backend.
type RecordGateway interface {
	NextRecord(ctx context.Context, tourID string, p RecordParams) (*model.TourRecord, error)
}

// RecordParams carries the per-fetch inputs for the next narration record.
type RecordParams struct {
	Lat          float64
	Lng          float64
	DurationHint string
	UserText     string
	Pace         string
	LLMVariant   string
	VoiceVariant string
}

// SessionConfig tunes one session.
type SessionConfig struct {
	DurationHint   string
	Pace           string
	LLMVariant     string
	VoiceVariant   string
	AutoPlay       bool
	StateExpiry    time.Duration
	MinMoveMeters  float64
	CellResolution int
}

// Session drives the playback pipeline for one tour.
type Session struct {
	tourID   string
	machine  *tourstate.Machine
	text     *narration.Store
	speech   Speaker
	gw       RecordGateway
	trigger  *position.Trigger
	notifier notify.Notifier
	tracker  *tracker.Tracker
	cfg      SessionConfig

	mu       sync.Mutex
	userText string
	resumeAt time.Duration
}

// NewSession builds a session and reconciles any persisted state for the
// tour. The returned session is ready for position updates.
func NewSession(ctx context.Context, tourID string, st store.StateStore, gw RecordGateway, spk Speaker, notifier notify.Notifier, trk *tracker.Tracker, cfg SessionConfig) *Session {
	s := &Session{
		tourID:   tourID,
		text:     narration.NewStore(),
		speech:   spk,
		gw:       gw,
		notifier: notifier,
		tracker:  trk,
		cfg:      cfg,
	}

	opts := []tourstate.Option{tourstate.WithContentCheck(s.text.HasContent)}
	if cfg.StateExpiry > 0 {
		opts = append(opts, tourstate.WithExpiry(cfg.StateExpiry))
	}
	s.machine = tourstate.NewMachine(st, tourID, opts...)

	state, resumeAt := s.machine.Load(ctx)
	s.resumeAt = resumeAt
	slog.Info("Tour session ready", "tour", tourID, "state", state)

	s.trigger = position.NewTrigger(
		position.TriggerConfig{MinMoveMeters: cfg.MinMoveMeters, CellResolution: cfg.CellResolution},
		func(string) bool { return s.machine.CanFetch() },
		s.fetchRecord,
	)
	return s
}

// HandlePosition feeds one position update into the trigger. Returns true
// if it started a record fetch.
func (s *Session) HandlePosition(ctx context.Context, sample model.PositionSample) bool {
	// Fetches must outlive the HTTP request that delivered the sample
	return s.trigger.HandlePosition(context.WithoutCancel(ctx), s.tourID, sample)
}

// Advance requests the next record from the given position even when the
// listener has not moved. In-flight and state gating still apply.
func (s *Session) Advance(ctx context.Context, sample model.PositionSample) bool {
	return s.trigger.Advance(context.WithoutCancel(ctx), s.tourID, sample)
}

// fetchRecord runs on the trigger's fetch goroutine.
func (s *Session) fetchRecord(ctx context.Context, tourID string, sample model.PositionSample, seq uint64) {
	// A reset may have landed after this fetch was scheduled; a stale seq
	// must not re-persist a loading state over the cleared session
	if !s.trigger.Commit(tourID, seq) {
		slog.Debug("Tour: skipping stale fetch", "tour", tourID, "seq", seq)
		return
	}

	wasPaused := s.machine.Current() == tourstate.StateRecordPaused || s.speech.IsPaused()

	loading := tourstate.StateLoadingRecord
	if wasPaused {
		loading = tourstate.StateLoadingRecordWhenPaused
	}
	if err := s.machine.Set(ctx, loading); err != nil {
		slog.Warn("Tour: state update failed", "tour", tourID, "error", err)
	}

	rec, err := s.gw.NextRecord(ctx, tourID, RecordParams{
		Lat:          sample.Lat,
		Lng:          sample.Lng,
		DurationHint: s.cfg.DurationHint,
		UserText:     s.takeUserText(),
		Pace:         s.cfg.Pace,
		LLMVariant:   s.cfg.LLMVariant,
		VoiceVariant: s.cfg.VoiceVariant,
	})
	if err != nil {
		slog.Error("Tour: record fetch failed", "tour", tourID, "error", err)
		_ = s.machine.Set(ctx, tourstate.StateError)
		s.notifier.Notify(notify.Notification{
			Level:     notify.LevelError,
			Message:   "Could not fetch the next tour record: " + err.Error(),
			TourID:    tourID,
			Retryable: true,
		})
		return
	}

	if !s.trigger.Commit(tourID, seq) {
		slog.Debug("Tour: dropping stale record", "tour", tourID, "seq", seq)
		s.tracker.TrackStaleDropped(backendProvider)
		return
	}

	if strings.TrimSpace(rec.Message) == "" {
		// No further narration: the tour is over
		_ = s.machine.Set(ctx, tourstate.StateTourFinished)
		s.notifier.Notify(notify.Notification{
			Level:   notify.LevelInfo,
			Message: "Tour finished",
			TourID:  tourID,
		})
		return
	}

	s.text.AppendChunk(rec.Message)
	_ = s.machine.Set(ctx, tourstate.StateRecordReceived)

	if s.cfg.AutoPlay && !wasPaused {
		if err := s.Play(ctx); err != nil {
			slog.Warn("Tour: autoplay failed", "tour", tourID, "error", err)
		}
	}
}

// Play speaks the pending narration text, resuming from a persisted offset
// when one was restored.
func (s *Session) Play(ctx context.Context) error {
	txt := s.text.SpeechText()
	if txt == "" {
		slog.Debug("Tour: nothing to speak", "tour", s.tourID)
		return nil
	}

	s.text.SetUtterance(txt)
	startAt := s.takeResumeAt()

	// Active before Speak: a degraded controller reports the end of the
	// utterance asynchronously, and RECORD_FINISHED must not be overwritten
	if err := s.machine.Set(ctx, tourstate.StateRecordActive); err != nil {
		slog.Warn("Tour: state update failed", "tour", s.tourID, "error", err)
	}

	err := s.speech.Speak(ctx, txt, startAt, speech.Callbacks{
		OnBoundary: func(charIndex int) {
			s.text.OnSpeechBoundary(charIndex)
			s.machine.SetAudioPosition(s.speech.Position())
		},
		OnEnd: func() {
			s.machine.SetAudioPosition(0)
			_ = s.machine.Set(context.Background(), tourstate.StateRecordFinished)
		},
	})
	if err != nil {
		if !errors.Is(err, speech.ErrAlreadySpeaking) {
			_ = s.machine.Set(ctx, tourstate.StateRecordPaused)
		}
		return err
	}
	return nil
}

// Pause pauses speech and persists the playback offset.
func (s *Session) Pause(ctx context.Context) error {
	s.speech.Pause()
	s.machine.SetAudioPosition(s.speech.Position())
	return s.machine.Set(ctx, tourstate.StateRecordPaused)
}

// Resume continues a paused utterance, or starts speaking the remainder of
// a restored session.
func (s *Session) Resume(ctx context.Context) error {
	if s.speech.IsPaused() {
		s.speech.Resume()
		return s.machine.Set(ctx, tourstate.StateRecordActive)
	}
	return s.Play(ctx)
}

// Stop cancels speech and parks the session in a resumable state.
func (s *Session) Stop(ctx context.Context) error {
	s.speech.Stop()
	return s.machine.Set(ctx, tourstate.StateRecordPaused)
}

// Rewind truncates the text buffers to the last spoken sentence and
// restarts speech from there.
func (s *Session) Rewind(ctx context.Context) error {
	s.speech.Stop()
	s.text.TrimSpokenFromDisplay()
	s.text.TrimSpokenFromSpeech()
	s.mu.Lock()
	s.resumeAt = 0
	s.mu.Unlock()
	return s.Play(ctx)
}

// Reset wipes the session: speech, buffers, persisted state, trigger history.
func (s *Session) Reset(ctx context.Context) error {
	s.speech.Stop()
	s.text.Reset()
	s.trigger.Reset(s.tourID)
	s.mu.Lock()
	s.resumeAt = 0
	s.userText = ""
	s.mu.Unlock()
	return s.machine.Clear(ctx)
}

// SetUserText stores free-form user input sent along with the next fetch,
// then cleared.
func (s *Session) SetUserText(text string) {
	s.mu.Lock()
	s.userText = text
	s.mu.Unlock()
}

func (s *Session) takeUserText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.userText
	s.userText = ""
	return t
}

func (s *Session) takeResumeAt() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.resumeAt
	s.resumeAt = 0
	return d
}

// State returns the current lifecycle state.
func (s *Session) State() tourstate.State {
	return s.machine.Current()
}

// Snapshot is the API-facing view of a session.
type Snapshot struct {
	TourID          string          `json:"tour_id"`
	State           tourstate.State `json:"state"`
	Display         string          `json:"display_text"`
	SpeechRemainder string          `json:"speech_text"`
	SpokenSentence  string          `json:"spoken_sentence"`
	HighlightedHTML string          `json:"highlighted_html"`
	Speaking        bool            `json:"speaking"`
	Paused          bool            `json:"paused"`
	PositionSeconds float64         `json:"position_seconds"`
	Chunks          int             `json:"chunks"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Snapshot {
	return Snapshot{
		TourID:          s.tourID,
		State:           s.machine.Current(),
		Display:         s.text.Display(),
		SpeechRemainder: s.text.SpeechText(),
		SpokenSentence:  s.text.Cursor().Sentence,
		HighlightedHTML: s.text.HighlightedHTML(),
		Speaking:        s.speech.IsSpeaking(),
		Paused:          s.speech.IsPaused(),
		PositionSeconds: s.speech.Position().Seconds(),
		Chunks:          len(s.text.Chunks()),
	}
}

// teardown releases the session's speech resources, persisting the current
// offset first so the tour can resume later.
func (s *Session) teardown() {
	if s.speech.IsSpeaking() {
		s.machine.SetAudioPosition(s.speech.Position())
		_ = s.machine.Set(context.Background(), tourstate.StateRecordPaused)
	}
	s.speech.Stop()
}
