package tts

import (
	"context"
	"encoding/binary"
	"os"
	"strings"
	"time"
)

const (
	mockSampleRate = 22050
	mockPerWord    = 300 * time.Millisecond
)

type mockSynth struct{}

// NewMockSynth returns a Synthesizer that writes silent WAV files whose
// duration scales with the word count. Useful for development and tests
// where no real speech engine is installed.
func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, text, _ string, outputPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	dur := time.Duration(words) * mockPerWord

	if err := writeSilentWAV(outputPath, dur); err != nil {
		return "", NewFatalError(0, "mock synthesis failed: "+err.Error())
	}
	return "wav", nil
}

// writeSilentWAV writes a 16-bit mono PCM WAV of silence.
func writeSilentWAV(path string, dur time.Duration) error {
	samples := int(float64(mockSampleRate) * dur.Seconds())
	dataSize := samples * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], mockSampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], mockSampleRate*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return os.WriteFile(path, buf, 0o644)
}
