package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestVolumeToPower(t *testing.T) {
	tests := []struct {
		vol  float64
		want float64
	}{
		{1.0, 0},
		{0.5, -1},
		{0.25, -2},
		{0.0, -10},
	}
	for _, tt := range tests {
		if got := volumeToPower(tt.vol); got != tt.want {
			t.Errorf("volumeToPower(%v) = %v, want %v", tt.vol, got, tt.want)
		}
	}
}

func TestDecodeStreamerWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wav")
	writeTestWAV(t, path, 22050) // 1 second

	streamer, format, err := decodeStreamer(path)
	if err != nil {
		t.Fatalf("decodeStreamer failed: %v", err)
	}
	defer streamer.Close()

	if format.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", format.SampleRate)
	}
	if streamer.Len() != 22050 {
		t.Errorf("Len = %d, want 22050", streamer.Len())
	}
}

func TestDecodeStreamerGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin")
	if err := os.WriteFile(path, []byte("not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := decodeStreamer(path); err == nil {
		t.Error("Expected decode error for garbage input")
	}
}

// writeTestWAV writes a silent 16-bit mono PCM WAV with the given sample count.
func writeTestWAV(t *testing.T, path string, samples int) {
	t.Helper()
	dataSize := samples * 2
	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 22050)
	binary.LittleEndian.PutUint32(buf[28:32], 22050*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}
