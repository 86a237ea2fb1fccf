package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/MrWong99/loquax/pkg/provider/asr"
)

// LoadSamples reads the WAV file at path and returns normalized float32
// samples at [asr.SampleRate]. Files at a different rate are resampled with
// linear interpolation; ffmpeg-extracted files are already at the target
// rate, so this only triggers for user-supplied WAV inputs.
func LoadSamples(path string) ([]float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: read wav: %w", err)
	}
	samples, rate, err := decodeWAV(b)
	if err != nil {
		return nil, fmt.Errorf("media: decode wav %q: %w", path, err)
	}
	if rate != asr.SampleRate {
		samples = resampleLinear(samples, rate, asr.SampleRate)
	}
	return samples, nil
}

// decodeWAV decodes a WAV blob into float32 PCM normalized to [-1, 1] and
// its sample rate.
func decodeWAV(b []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errNoSamples
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}

	rate := int(dec.SampleRate)
	if rate == 0 && buf.Format != nil {
		rate = buf.Format.SampleRate
	}
	if rate == 0 {
		rate = asr.SampleRate
	}
	return out, rate, nil
}

// resampleLinear resamples float32 PCM from inRate to outRate using linear
// interpolation. Good enough for speech; recognition is not sensitive to
// interpolation artefacts at these rates.
func resampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}
