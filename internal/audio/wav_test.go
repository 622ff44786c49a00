package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteWAV_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "speech.wav")
	in := Normalize(sine(2400, 0.5))

	if err := WriteWAV(path, in, 24000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() <= 44 {
		t.Fatalf("expected audio payload after header, size=%d", info.Size())
	}

	out, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 24000 {
		t.Errorf("expected sample rate 24000, got %d", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		// 16-bit 量化误差
		if math.Abs(float64(out[i]-in[i])) > 1.0/16384 {
			t.Fatalf("index %d: expected %f, got %f", i, in[i], out[i])
		}
	}
	if Peak(out) > DefaultPeak+1e-4 {
		t.Errorf("peak %f exceeds headroom", Peak(out))
	}
}

func TestWriteWAV_InvalidSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := WriteWAV(path, []float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestWriteWAV_DiskFull(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	if err := WriteWAV("/dev/full", sine(48000, 0.5), 24000); err == nil {
		t.Fatal("expected error when the device is full")
	}
}

func TestReadWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.wav")
	if err := os.WriteFile(path, []byte("definitely not riff data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Fatal("expected error for invalid WAV file")
	}
}
