package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/recognize"
	"github.com/MrWong99/loquax/internal/render"
	"github.com/MrWong99/loquax/internal/segment"
	"github.com/MrWong99/loquax/internal/tier"
	"github.com/MrWong99/loquax/pkg/provider/asr"
)

type stubMedia struct {
	audioPath   string
	duration    float64
	extractErr  error
	durationErr error
}

func (s *stubMedia) ExtractAudio(ctx context.Context, mediaPath string) (string, error) {
	return s.audioPath, s.extractErr
}

func (s *stubMedia) Duration(ctx context.Context, mediaPath string) (float64, error) {
	return s.duration, s.durationErr
}

type stubTranscriber struct {
	outcome *recognize.Outcome
	err     error

	gotLanguage string
	gotPlan     []tier.Tier
}

func (s *stubTranscriber) Recognize(ctx context.Context, samples []float32, language string, plan []tier.Tier) (*recognize.Outcome, error) {
	s.gotLanguage = language
	s.gotPlan = plan
	return s.outcome, s.err
}

type stubCorrector struct {
	transform func(string) string
	report    *correct.Report
	err       error
}

func (s *stubCorrector) Correct(ctx context.Context, segs []segment.Segment) ([]segment.Segment, *correct.Report, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	out := make([]segment.Segment, len(segs))
	copy(out, segs)
	if s.transform != nil {
		for i := range out {
			out[i].Text = s.transform(out[i].Text)
		}
	}
	return out, s.report, nil
}

type stubStore struct {
	archiveErr error
	archived   int
}

func (s *stubStore) Archive(ctx context.Context, doc *render.Document, report *correct.Report) error {
	s.archived++
	return s.archiveErr
}

func (s *stubStore) Close() {}

// newTestPipeline wires stubs around a fixed two-sentence transcript.
func newTestPipeline(t *testing.T, opts ...Option) (*Pipeline, *stubTranscriber) {
	t.Helper()

	transcriber := &stubTranscriber{
		outcome: &recognize.Outcome{
			Segments: []asr.RawSegment{
				{Start: 0, End: 2.5, Text: "Deep learning frameworks are everywhere."},
				{Start: 3.5, End: 6.0, Text: "Training runs take hours."},
			},
			Language: "en",
			Tier:     tier.TierSmall,
			Attempts: []recognize.Attempt{
				{Tier: tier.TierMedium, Err: asr.ErrResourceExhausted},
				{Tier: tier.TierSmall},
			},
		},
	}

	opts = append([]Option{
		WithSampleLoader(func(string) ([]float32, error) {
			return make([]float32, 16000), nil
		}),
	}, opts...)

	p := New(
		&stubMedia{audioPath: filepath.Join(t.TempDir(), "gone.wav"), duration: 6.0},
		transcriber,
		[]tier.Tier{tier.TierMedium, tier.TierSmall},
		opts...,
	)
	return p, transcriber
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	p, transcriber := newTestPipeline(t)
	outPath := filepath.Join(t.TempDir(), "talk.md")

	res, err := p.Run(context.Background(), Input{MediaPath: "/media/talk.mp4", OutputPath: outPath})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if transcriber.gotLanguage != "auto" {
		t.Errorf("language hint = %q, want auto", transcriber.gotLanguage)
	}
	if len(transcriber.gotPlan) != 2 {
		t.Errorf("plan length = %d, want 2", len(transcriber.gotPlan))
	}

	if res.Document.Title != "talk" {
		t.Errorf("title = %q, want talk", res.Document.Title)
	}
	if res.Document.Model != "small" {
		t.Errorf("model = %q, want small", res.Document.Model)
	}
	if res.Document.Language != "en" {
		t.Errorf("language = %q, want en", res.Document.Language)
	}
	if res.Document.Duration != 6.0 {
		t.Errorf("duration = %g, want 6", res.Document.Duration)
	}
	if res.Report != nil {
		t.Error("report should be nil without a corrector")
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	parsed, err := render.Parse(string(raw))
	if err != nil {
		t.Fatalf("written document does not parse back: %v", err)
	}
	if len(parsed.Segments) != 2 {
		t.Errorf("parsed %d segments, want 2", len(parsed.Segments))
	}
	if !strings.Contains(string(raw), "Deep learning frameworks are everywhere.") {
		t.Error("document missing transcript text")
	}
}

func TestRun_DerivesOutputPath(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)
	mediaPath := filepath.Join(t.TempDir(), "lecture.mkv")

	res, err := p.Run(context.Background(), Input{MediaPath: mediaPath})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := strings.TrimSuffix(mediaPath, ".mkv") + ".md"
	if res.OutputPath != want {
		t.Errorf("output path = %q, want %q", res.OutputPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("derived output file missing: %v", err)
	}
}

func TestRun_CorrectorRewritesText(t *testing.T) {
	t.Parallel()

	report := &correct.Report{Batches: 1, Applied: 1}
	p, _ := newTestPipeline(t, WithCorrector(&stubCorrector{
		transform: func(s string) string {
			return strings.ReplaceAll(s, "Deep learning", "Machine learning")
		},
		report: report,
	}))

	outPath := filepath.Join(t.TempDir(), "out.md")
	res, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: outPath})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report != report {
		t.Error("correction report not propagated")
	}
	if got := res.Document.Segments[0].Text; !strings.HasPrefix(got, "Machine learning") {
		t.Errorf("corrected text not in document: %q", got)
	}
}

func TestRun_CorrectorErrorAborts(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("provider down hard")
	p, _ := newTestPipeline(t, WithCorrector(&stubCorrector{err: wantErr}))

	outPath := filepath.Join(t.TempDir(), "out.md")
	if _, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: outPath}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if _, err := os.Stat(outPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("no document should be written when the run aborts")
	}
}

func TestRun_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &stubStore{archiveErr: errors.New("database unreachable")}
	p, _ := newTestPipeline(t, WithArchive(store))

	outPath := filepath.Join(t.TempDir(), "out.md")
	if _, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: outPath}); err != nil {
		t.Fatalf("archive failure should not fail the run: %v", err)
	}
	if store.archived != 1 {
		t.Errorf("archive called %d times, want 1", store.archived)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("document missing despite archive failure: %v", err)
	}
}

func TestRun_RecognitionErrorPropagates(t *testing.T) {
	t.Parallel()

	p, transcriber := newTestPipeline(t)
	transcriber.outcome = nil
	transcriber.err = recognize.ErrAllTiersExhausted

	_, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: filepath.Join(t.TempDir(), "out.md")})
	if !errors.Is(err, recognize.ErrAllTiersExhausted) {
		t.Fatalf("error = %v, want ErrAllTiersExhausted", err)
	}
}

func TestRun_ExtractionErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("ffmpeg exploded")
	p := New(
		&stubMedia{extractErr: wantErr},
		&stubTranscriber{},
		[]tier.Tier{tier.TierTiny},
	)

	if _, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4"}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestRun_DurationFallsBackToLastSegment(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)
	p.media = &stubMedia{
		audioPath:   filepath.Join(t.TempDir(), "gone.wav"),
		durationErr: errors.New("ffprobe missing"),
	}

	res, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: filepath.Join(t.TempDir(), "out.md")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Document.Duration != 6.0 {
		t.Errorf("duration = %g, want last segment end 6", res.Document.Duration)
	}
}

func TestRun_LanguageOption(t *testing.T) {
	t.Parallel()

	p, transcriber := newTestPipeline(t, WithLanguage("de"))
	if _, err := p.Run(context.Background(), Input{MediaPath: "/media/x.mp4", OutputPath: filepath.Join(t.TempDir(), "out.md")}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if transcriber.gotLanguage != "de" {
		t.Errorf("language hint = %q, want de", transcriber.gotLanguage)
	}
}
