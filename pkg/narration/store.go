// Package narration accumulates tour text and tracks how much of it has
// been spoken.
package narration

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"cicerone/pkg/model"
	"cicerone/pkg/sentence"
)

// Cursor marks the sentence currently being spoken. Start and End are
// offsets within the current utterance, so a sentence that repeats verbatim
// stays unambiguous.
type Cursor struct {
	Sentence string
	Start    int
	End      int
}

// Store maintains the narration text buffers for one tour: everything shown
// so far, the remainder still to be spoken, and the spoken-sentence cursor.
type Store struct {
	mu        sync.RWMutex
	display   string
	speech    string
	utterance string
	cursor    Cursor
	chunks    []model.NarrationChunk
}

// NewStore creates an empty narration store.
func NewStore() *Store {
	return &Store{}
}

// AppendChunk normalizes a message, appends it to the display text and
// replaces the speech remainder with it. Only the newest chunk is queued
// for speech, earlier text has either been spoken or abandoned.
// Empty messages are ignored.
func (s *Store) AppendChunk(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	normalized := sentence.EnsureTerminated(trimmed)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.display == "" {
		s.display = normalized
	} else {
		s.display += " " + normalized
	}
	s.speech = normalized
	s.chunks = append(s.chunks, model.NarrationChunk{
		Message:   normalized,
		CreatedAt: time.Now(),
	})
}

// SetUtterance records the text handed to the speech engine and resets the
// spoken cursor for it.
func (s *Store) SetUtterance(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterance = text
	s.cursor = Cursor{}
}

// OnSpeechBoundary maps a boundary char offset onto the sentence being
// spoken. Returns true if the cursor moved to a different sentence.
func (s *Store) OnSpeechBoundary(charIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent, start, end := sentence.ContainingRange(charIndex, s.utterance)
	if sent == "" {
		return false
	}
	next := Cursor{Sentence: sent, Start: start, End: end}
	if next == s.cursor {
		return false
	}
	s.cursor = next
	return true
}

// Cursor returns the spoken-sentence cursor.
func (s *Store) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Display returns the accumulated display text.
func (s *Store) Display() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}

// SpeechText returns the remainder still to be spoken.
func (s *Store) SpeechText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speech
}

// HasContent reports whether any display text has accumulated.
func (s *Store) HasContent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display != ""
}

// Chunks returns the narration history in arrival order.
func (s *Store) Chunks() []model.NarrationChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.NarrationChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// TrimSpokenFromDisplay drops display text that precedes the spoken
// sentence. A cursor that cannot be located is logged and ignored.
func (s *Store) TrimSpokenFromDisplay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Sentence == "" {
		return
	}
	idx := sentence.StartIndex(s.display, s.cursor.Sentence)
	if idx < 0 {
		slog.Warn("Narration: spoken sentence not found in display text", "sentence", s.cursor.Sentence)
		return
	}
	s.display = s.display[idx:]
}

// TrimSpokenFromSpeech drops the spoken sentence and everything before it
// from the speech remainder.
func (s *Store) TrimSpokenFromSpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Sentence == "" {
		return
	}
	idx := sentence.StartIndex(s.speech, s.cursor.Sentence)
	if idx < 0 {
		slog.Warn("Narration: spoken sentence not found in speech text", "sentence", s.cursor.Sentence)
		return
	}
	s.speech = strings.TrimLeft(s.speech[idx+len(s.cursor.Sentence):], " ")
}

// HighlightedHTML renders the display text with the spoken sentence marked.
func (s *Store) HighlightedHTML() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sentence.Highlight(s.display, s.cursor.Sentence)
}

// Reset clears all buffers.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = ""
	s.speech = ""
	s.utterance = ""
	s.cursor = Cursor{}
	s.chunks = nil
}
