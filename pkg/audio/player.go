// Package audio provides audio playback for narration files.
package audio

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Player defines the interface for audio playback control.
type Player interface {
	// Play starts playback of an audio file from the given offset.
	// onComplete is called when playback finishes (not when stopped manually).
	Play(filepath string, startAt time.Duration, onComplete func()) error
	// Pause pauses current playback.
	Pause()
	// Resume resumes paused playback.
	Resume()
	// Stop stops current playback.
	Stop()
	// Shutdown stops playback and cleans up residual files.
	Shutdown()

	// IsPlaying returns true if audio is currently playing (not paused).
	IsPlaying() bool
	// IsPaused returns true if playback is paused.
	IsPaused() bool
	// Position returns the current playback position.
	Position() time.Duration
	// Duration returns the total duration of the current audio.
	Duration() time.Duration
	// SetVolume sets playback volume (0.0 to 1.0).
	SetVolume(vol float64)
	// Volume returns current volume level.
	Volume() float64
}

// Manager implements Player using gopxl/beep.
type Manager struct {
	mu                 sync.RWMutex
	ctrl               *beep.Ctrl
	volume             float64
	isPaused           bool
	lastFile           string
	speakerInitialized bool
	currentSampleRate  beep.SampleRate
	volStreamer        *effects.Volume
	trackStreamer      beep.StreamSeekCloser
	trackFormat        beep.Format
}

// New creates a new Manager instance.
func New() *Manager {
	return &Manager{volume: 1.0}
}

// Play starts playback of an audio file from the given offset.
func (m *Manager) Play(filepath string, startAt time.Duration, onComplete func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop any current playback and close the file handle
	m.stopLocked()

	streamer, format, err := decodeStreamer(filepath)
	if err != nil {
		return err
	}

	if err := m.ensureSpeakerInitialized(streamer); err != nil {
		return err
	}

	if startAt > 0 {
		pos := format.SampleRate.N(startAt)
		if pos >= streamer.Len() {
			pos = streamer.Len() - 1
		}
		if err := streamer.Seek(pos); err != nil {
			slog.Warn("Audio: seek failed, starting from the top", "path", filepath, "offset", startAt, "error", err)
		}
	}

	resampled := beep.Resample(3, format.SampleRate, m.currentSampleRate, streamer)

	volStreamer := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.volume <= 0.01,
	}

	m.volStreamer = volStreamer
	m.trackStreamer = streamer
	m.trackFormat = format

	m.ctrl = &beep.Ctrl{Streamer: volStreamer}
	m.isPaused = false

	speaker.Play(beep.Seq(m.ctrl, beep.Callback(func() {
		// Cleanup must not block the speaker thread
		go func() {
			m.mu.Lock()
			m.ctrl = nil
			m.isPaused = false
			m.mu.Unlock()
			streamer.Close()

			if onComplete != nil {
				onComplete()
			}
		}()
	})))

	// The previous narration file is safe to delete once the new one is loaded
	if m.lastFile != "" && m.lastFile != filepath {
		if err := os.Remove(m.lastFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("Audio: Failed to cleanup previous narration artifact", "path", m.lastFile, "error", err)
		}
	}
	m.lastFile = filepath

	slog.Debug("Playing audio", "path", filepath, "start_at", startAt)
	return nil
}

// Pause pauses current playback.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil {
		speaker.Lock()
		m.ctrl.Paused = true
		speaker.Unlock()
		m.isPaused = true
	}
}

// Resume resumes paused playback.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil && m.isPaused {
		speaker.Lock()
		m.ctrl.Paused = false
		speaker.Unlock()
		m.isPaused = false
	}
}

// Stop stops current playback.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.trackStreamer != nil {
		m.trackStreamer.Close()
		m.trackStreamer = nil
	}
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.isPaused = false
	}
}

func (m *Manager) ensureSpeakerInitialized(streamer beep.StreamSeekCloser) error {
	const targetSampleRate = 48000
	if !m.speakerInitialized {
		err := speaker.Init(beep.SampleRate(targetSampleRate), beep.SampleRate(targetSampleRate).N(time.Second/10))
		if err != nil {
			streamer.Close()
			slog.Error("Failed to initialize speaker", "error", err)
			return err
		}
		m.speakerInitialized = true
		m.currentSampleRate = beep.SampleRate(targetSampleRate)
	}
	return nil
}

// Shutdown stops playback and deletes any residual audio artifacts.
func (m *Manager) Shutdown() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastFile != "" {
		if err := os.Remove(m.lastFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("Audio: Failed to cleanup residual artifact on shutdown", "path", m.lastFile, "error", err)
		}
		m.lastFile = ""
	}
}

// IsPlaying returns true if audio is currently playing.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil && !m.isPaused
}

// IsPaused returns true if playback is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// Position returns the current playback position.
func (m *Manager) Position() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trackStreamer == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(m.trackStreamer.Position())
}

// Duration returns the total duration of the current audio.
func (m *Manager) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trackStreamer == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(m.trackStreamer.Len())
}

// SetVolume sets playback volume (0.0 to 1.0).
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	m.volume = vol

	if m.volStreamer != nil {
		speaker.Lock()
		m.volStreamer.Volume = volumeToPower(vol)
		m.volStreamer.Silent = vol <= 0.01
		speaker.Unlock()
	}
}

// Volume returns current volume level.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// volumeToPower maps linear 0..1 volume onto the beep Volume exponent.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}

func decodeStreamer(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	// Try MP3 first
	streamer, format, err := mp3.Decode(f)
	if err == nil {
		return streamer, format, nil
	}

	// Reopen for the WAV attempt, the failed MP3 decode may have consumed bytes
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, format, err = wav.Decode(f)
	if err != nil {
		f.Close()
		slog.Error("Failed to decode audio file", "path", path, "error", err)
		return nil, beep.Format{}, err
	}

	return streamer, format, nil
}
