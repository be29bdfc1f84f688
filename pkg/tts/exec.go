package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecSynth returns a Synthesizer that shells out to an external command.
// The command template may use {text}, {voice} and {output} placeholders,
// e.g. `piper --model {voice} --output_file {output}` (text on stdin when
// the {text} placeholder is absent).
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text, voice, outputPath string) (string, error) {
	// One synthesis at a time; most engines do not handle parallel runs well
	e.mu.Lock()
	defer e.mu.Unlock()

	args := make([]string, len(e.cmd))
	textViaArg := false
	for i, a := range e.cmd {
		a = strings.ReplaceAll(a, "{voice}", voice)
		a = strings.ReplaceAll(a, "{output}", outputPath)
		if strings.Contains(a, "{text}") {
			a = strings.ReplaceAll(a, "{text}", text)
			textViaArg = true
		}
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if !textViaArg {
		cmd.Stdin = strings.NewReader(text)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewFatalError(0, fmt.Sprintf("tts command failed: %v: %s", err, strings.TrimSpace(string(out))))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", NewFatalError(0, "tts command produced no output file")
	}
	if info.Size() < MinAudioSize {
		return "", NewFatalError(0, fmt.Sprintf("tts output too small: %d bytes", info.Size()))
	}

	format := strings.TrimPrefix(filepath.Ext(outputPath), ".")
	if format == "" {
		format = "wav"
	}
	return format, nil
}
