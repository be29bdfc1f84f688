// Package speech turns narration text into audible playback and synthesizes
// word boundary events from the playback position.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cicerone/pkg/audio"
	"cicerone/pkg/tts"
)

// ErrAlreadySpeaking is returned when Speak is called while an utterance is
// actively playing. A paused utterance may be replaced.
var ErrAlreadySpeaking = errors.New("speech: already speaking")

// Callbacks receive progress events for an utterance. Both are optional.
// They are invoked from internal goroutines and must not block.
type Callbacks struct {
	// OnBoundary fires when the estimated spoken position crosses into a new
	// word. charIndex is the offset of that word in the utterance text.
	OnBoundary func(charIndex int)
	// OnEnd fires once when the utterance finishes playing. It does not fire
	// on Stop or when the utterance is replaced.
	OnEnd func()
}

// Options configure a Controller.
type Options struct {
	Voice            string
	BoundaryInterval time.Duration
	WorkDir          string
}

// Controller drives one utterance at a time through synthesis and playback.
type Controller struct {
	synth    tts.Synthesizer
	player   audio.Player
	voice    string
	interval time.Duration
	workDir  string

	mu         sync.Mutex
	generation int
	speaking   bool
	paused     bool
	degraded   bool
	utterance  string
	spokenAt   int
}

// NewController creates a speech controller.
func NewController(synth tts.Synthesizer, player audio.Player, opts Options) *Controller {
	if opts.BoundaryInterval <= 0 {
		opts.BoundaryInterval = 100 * time.Millisecond
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Controller{
		synth:    synth,
		player:   player,
		voice:    opts.Voice,
		interval: opts.BoundaryInterval,
		workDir:  opts.WorkDir,
	}
}

// Speak synthesizes and plays text, starting playback at startAt.
// It fails with ErrAlreadySpeaking while an utterance is actively playing;
// a paused utterance is stopped and replaced.
func (c *Controller) Speak(ctx context.Context, text string, startAt time.Duration, cb Callbacks) error {
	if strings.TrimSpace(text) == "" {
		slog.Debug("Speech: empty text, nothing to speak")
		return nil
	}

	c.mu.Lock()
	if c.speaking && !c.paused {
		c.mu.Unlock()
		return ErrAlreadySpeaking
	}
	if c.speaking {
		// Replacing a paused utterance
		c.player.Stop()
	}
	c.generation++
	gen := c.generation
	c.speaking = true
	c.paused = false
	c.utterance = text
	c.spokenAt = 0
	degraded := c.degraded
	c.mu.Unlock()

	if degraded {
		c.finishWithoutAudio(gen, cb)
		return nil
	}

	outPath := filepath.Join(c.workDir, uuid.NewString()+".wav")
	if _, err := c.synth.Synthesize(ctx, text, c.voice, outPath); err != nil {
		if ctx.Err() != nil {
			c.reset(gen)
			return ctx.Err()
		}
		if tts.IsFatalError(err) {
			slog.Warn("Speech: synthesizer unavailable, continuing without audio", "error", err)
			c.mu.Lock()
			c.degraded = true
			c.mu.Unlock()
			c.finishWithoutAudio(gen, cb)
			return nil
		}
		c.reset(gen)
		return err
	}

	err := c.player.Play(outPath, startAt, func() {
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.speaking = false
		c.paused = false
		c.mu.Unlock()
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	})
	if err != nil {
		c.reset(gen)
		return err
	}

	go c.pace(gen, text, cb.OnBoundary)
	return nil
}

// finishWithoutAudio reports the utterance as fully spoken so callers can
// keep advancing when no audio backend is available.
func (c *Controller) finishWithoutAudio(gen int, cb Callbacks) {
	go func() {
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.speaking = false
		c.mu.Unlock()
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	}()
}

func (c *Controller) reset(gen int) {
	c.mu.Lock()
	if c.generation == gen {
		c.speaking = false
		c.paused = false
	}
	c.mu.Unlock()
}

// pace maps the playback position onto word offsets in the utterance and
// fires OnBoundary whenever the estimate crosses into a new word.
func (c *Controller) pace(gen int, text string, onBoundary func(int)) {
	starts := wordStarts(text)
	if len(starts) == 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	last := -1
	for range ticker.C {
		c.mu.Lock()
		stale := c.generation != gen || !c.speaking
		paused := c.paused
		c.mu.Unlock()
		if stale {
			return
		}
		if paused {
			continue
		}

		dur := c.player.Duration()
		if dur <= 0 {
			continue
		}
		frac := float64(c.player.Position()) / float64(dur)
		if frac > 1 {
			frac = 1
		}

		idx := starts[wordAt(starts, int(frac*float64(len(text))))]
		if idx != last {
			last = idx
			c.mu.Lock()
			c.spokenAt = idx
			c.mu.Unlock()
			if onBoundary != nil {
				onBoundary(idx)
			}
		}
	}
}

// wordStarts returns the char offsets where words begin.
func wordStarts(text string) []int {
	var starts []int
	inWord := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			starts = append(starts, i)
		}
		inWord = !isSpace
	}
	return starts
}

// wordAt returns the index into starts of the last word beginning at or
// before charIndex.
func wordAt(starts []int, charIndex int) int {
	best := 0
	for i, s := range starts {
		if s > charIndex {
			break
		}
		best = i
	}
	return best
}

// Pause pauses the current utterance.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speaking && !c.paused {
		c.player.Pause()
		c.paused = true
	}
}

// Resume resumes a paused utterance.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speaking && c.paused {
		c.player.Resume()
		c.paused = false
	}
}

// Stop cancels the current utterance. OnEnd does not fire.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.speaking = false
	c.paused = false
	c.player.Stop()
}

// IsSpeaking returns true while an utterance is loaded (playing or paused).
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// IsPaused returns true if the current utterance is paused.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// SpokenOffset returns the char offset of the last word boundary fired.
func (c *Controller) SpokenOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spokenAt
}

// Position returns the playback position of the current utterance.
func (c *Controller) Position() time.Duration {
	return c.player.Position()
}

// Shutdown stops playback and releases the audio backend.
func (c *Controller) Shutdown() {
	c.Stop()
	c.player.Shutdown()
}
