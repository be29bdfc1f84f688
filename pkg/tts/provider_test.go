package tts

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestMockSynth(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.wav")

	synth := NewMockSynth()
	format, err := synth.Synthesize(context.Background(), "Hello world. This is a tour.", "any", out)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if format != "wav" {
		t.Errorf("Expected wav format, got %s", format)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Output file missing: %v", err)
	}
	if info.Size() < MinAudioSize {
		t.Errorf("Output too small: %d bytes", info.Size())
	}

	data, _ := os.ReadFile(out)
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("Output is not a WAV file")
	}
}

func TestMockSynthLongerTextLongerAudio(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.wav")
	long := filepath.Join(dir, "long.wav")

	synth := NewMockSynth()
	if _, err := synth.Synthesize(context.Background(), "One.", "v", short); err != nil {
		t.Fatal(err)
	}
	if _, err := synth.Synthesize(context.Background(), "One two three four five six seven.", "v", long); err != nil {
		t.Fatal(err)
	}

	si, _ := os.Stat(short)
	li, _ := os.Stat(long)
	if li.Size() <= si.Size() {
		t.Errorf("Expected longer text to produce larger file: %d <= %d", li.Size(), si.Size())
	}
}

func TestExecSynth(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	out := filepath.Join(t.TempDir(), "out.wav")

	// Fake engine: pad stdin to a plausible file size
	synth, err := NewExecSynth(`sh -c "cat - > {output}; head -c 2048 /dev/zero >> {output}"`)
	if err != nil {
		t.Fatalf("NewExecSynth failed: %v", err)
	}

	format, err := synth.Synthesize(context.Background(), "Hello.", "v", out)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if format != "wav" {
		t.Errorf("Expected wav format, got %s", format)
	}
}

func TestExecSynthFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	out := filepath.Join(t.TempDir(), "out.wav")

	synth, err := NewExecSynth(`sh -c "exit 1"`)
	if err != nil {
		t.Fatal(err)
	}

	_, err = synth.Synthesize(context.Background(), "Hello.", "v", out)
	if !IsFatalError(err) {
		t.Errorf("Expected FatalError, got %v", err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("mock", ""); err != nil {
		t.Errorf("mock engine: %v", err)
	}
	if _, err := New("exec", "piper --output_file {output}"); err != nil {
		t.Errorf("exec engine: %v", err)
	}
	if _, err := New("bogus", ""); err == nil {
		t.Error("Expected error for unknown engine")
	}
}
