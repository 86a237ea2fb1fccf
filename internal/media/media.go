// Package media handles the external-tool side of ingestion: extracting a
// recognition-ready audio track from arbitrary containers via ffmpeg, probing
// media duration via ffprobe, and decoding the extracted WAV into the float32
// samples the recognition engine consumes.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithFFmpegPath overrides the ffmpeg binary looked up on PATH.
func WithFFmpegPath(path string) Option {
	return func(x *Extractor) {
		x.ffmpeg = path
	}
}

// WithFFprobePath overrides the ffprobe binary looked up on PATH.
func WithFFprobePath(path string) Option {
	return func(x *Extractor) {
		x.ffprobe = path
	}
}

// WithTempDir sets the directory extracted audio files are written to.
// Default: os.TempDir().
func WithTempDir(dir string) Option {
	return func(x *Extractor) {
		x.tmpDir = dir
	}
}

// Extractor shells out to ffmpeg and ffprobe. It is read-only after
// construction and safe for concurrent use.
type Extractor struct {
	ffmpeg  string
	ffprobe string
	tmpDir  string
}

// NewExtractor returns an [Extractor] with the supplied options applied.
func NewExtractor(opts ...Option) *Extractor {
	x := &Extractor{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		tmpDir:  os.TempDir(),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// ExtractAudio extracts a mono 16 kHz 16-bit WAV track from mediaPath and
// returns the path of the extracted file. The caller owns the file and
// should remove it when done.
func (x *Extractor) ExtractAudio(ctx context.Context, mediaPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	out := filepath.Join(x.tmpDir, base+"_audio_16k.wav")

	// ffmpeg -y -i input -vn -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, x.ffmpeg,
		"-y", "-i", mediaPath,
		"-vn",
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("media: ffmpeg extract %q: %w: %s", mediaPath, err, lastLine(stderr.String()))
	}
	return out, nil
}

// Duration probes mediaPath and returns its duration in seconds.
func (x *Extractor) Duration(ctx context.Context, mediaPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, x.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("media: ffprobe %q: %w: %s", mediaPath, err, lastLine(stderr.String()))
	}

	raw := strings.TrimSpace(stdout.String())
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("media: ffprobe %q: parse duration %q: %w", mediaPath, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("media: ffprobe %q: negative duration %f", mediaPath, d)
	}
	return d, nil
}

// lastLine returns the final non-empty line of s. ffmpeg's useful error is
// almost always the last thing it prints.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// errNoSamples is returned when a WAV file decodes to zero samples.
var errNoSamples = errors.New("media: wav contains no samples")
