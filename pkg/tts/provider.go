package tts

import (
	"context"
	"fmt"
)

const (
	// MinAudioSize is the minimum size of a synthesized audio file (1KB).
	// Files smaller than this are likely failed synthesis attempts.
	MinAudioSize = 1024
)

// Synthesizer defines the interface for Text-To-Speech engines.
type Synthesizer interface {
	// Synthesize generates audio from text and writes it to outputPath.
	// Returns the audio format ("wav", "mp3") and error.
	Synthesize(ctx context.Context, text, voice, outputPath string) (string, error)
}

// FatalError represents a TTS error that should not be retried.
// Examples: auth failures, a missing synthesizer binary, empty output.
type FatalError struct {
	StatusCode int
	Message    string
}

func (e *FatalError) Error() string {
	return e.Message
}

// NewFatalError creates a new FatalError with the given status code and message.
func NewFatalError(statusCode int, message string) *FatalError {
	return &FatalError{StatusCode: statusCode, Message: message}
}

// IsFatalError checks if an error is a TTS fatal error.
func IsFatalError(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}

// New builds a Synthesizer for the configured engine.
func New(engine, command string) (Synthesizer, error) {
	switch engine {
	case "mock", "":
		return NewMockSynth(), nil
	case "exec":
		return NewExecSynth(command)
	default:
		return nil, fmt.Errorf("unknown tts engine %q", engine)
	}
}
