package media

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// writeWAV encodes PCM16 data to a temp WAV file and returns its path.
func writeWAV(t *testing.T, sampleRate int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func TestLoadSamples_Normalizes(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, asr.SampleRate, []int{0, 16384, -16384, 32767})

	samples, err := LoadSamples(path)
	if err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}

	want := []float64{0, 0.5, -0.5, float64(32767) / 32768}
	for i, w := range want {
		if math.Abs(float64(samples[i])-w) > 1e-4 {
			t.Errorf("sample %d = %f, want %f", i, samples[i], w)
		}
	}
}

func TestLoadSamples_ResamplesForeignRate(t *testing.T) {
	t.Parallel()

	// One second of 8 kHz audio must come back as roughly one second at the
	// recognition rate.
	data := make([]int, 8000)
	path := writeWAV(t, 8000, data)

	samples, err := LoadSamples(path)
	if err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if got := len(samples); got < asr.SampleRate-10 || got > asr.SampleRate+10 {
		t.Errorf("resampled length = %d, want ≈%d", got, asr.SampleRate)
	}
}

func TestLoadSamples_RejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSamples(path); err == nil {
		t.Fatal("LoadSamples accepted a non-WAV file")
	}
}

func TestLoadSamples_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadSamples(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("LoadSamples accepted a missing file")
	}
}

func TestResampleLinear_Identity(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.25, 0.5, 0.75}
	out := resampleLinear(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("identity resample changed length: %d", len(out))
	}
}

func TestResampleLinear_Upsample(t *testing.T) {
	t.Parallel()

	out := resampleLinear([]float32{0, 1}, 1, 2)
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	// Midpoint interpolation between 0 and 1.
	if math.Abs(float64(out[1])-0.5) > 1e-6 {
		t.Errorf("out[1] = %f, want 0.5", out[1])
	}
}
