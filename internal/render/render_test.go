package render_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/loquax/internal/render"
	"github.com/MrWong99/loquax/internal/segment"
)

func sampleDoc() *render.Document {
	return &render.Document{
		Title:       "team-meeting.mp4",
		GeneratedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Duration:    754.6,
		Language:    "en",
		Model:       "small",
		Segments: []segment.Segment{
			{ID: 0, Start: 0, End: 2.9, Text: "PyTorch is great."},
			{ID: 1, Start: 3661.2, End: 3665.0, Text: "With PyTorch you can train models."},
		},
	}
}

func TestRender_Layout(t *testing.T) {
	t.Parallel()

	out := render.Render(sampleDoc())

	for _, want := range []string{
		"# team-meeting.mp4",
		"> **Generated:** 2026-03-14 09:26:53",
		"> **Duration:** 12m34s",
		"> **Language:** en",
		"> **Model:** small",
		"**[00:00:00 → 00:00:02]**\nPyTorch is great.",
		"**[01:01:01 → 01:01:05]**",
		"| Time | Text |",
		"| 00:00:00 | PyTorch is great. |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered document missing %q\n%s", want, out)
		}
	}
}

func TestRender_TimestampsFloored(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	out := render.Render(doc)

	// 2.9s floors to 00:00:02, never rounds up.
	if strings.Contains(out, "00:00:03]") {
		t.Error("sub-second part was rounded up instead of floored")
	}
}

func TestRender_TableCellEscapedAndTruncated(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	doc.Segments = []segment.Segment{
		{ID: 0, Start: 0, End: 1, Text: "a | b " + strings.Repeat("x", 100)},
	}
	out := render.Render(doc)

	if !strings.Contains(out, `a \| b`) {
		t.Error("pipe character not escaped in table cell")
	}
	if !strings.Contains(out, "…") {
		t.Error("long cell not truncated with ellipsis")
	}
	// The body keeps the full text.
	if !strings.Contains(out, "a | b "+strings.Repeat("x", 100)) {
		t.Error("body text was truncated")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	got, err := render.Parse(render.Render(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Title != doc.Title {
		t.Errorf("title = %q, want %q", got.Title, doc.Title)
	}
	if !got.GeneratedAt.Equal(doc.GeneratedAt) {
		t.Errorf("generated = %v, want %v", got.GeneratedAt, doc.GeneratedAt)
	}
	// Duration survives at second precision.
	if math.Abs(got.Duration-math.Floor(doc.Duration)) > 1e-9 {
		t.Errorf("duration = %v, want %v", got.Duration, math.Floor(doc.Duration))
	}
	if got.Language != doc.Language || got.Model != doc.Model {
		t.Errorf("language/model = %q/%q", got.Language, got.Model)
	}

	if len(got.Segments) != len(doc.Segments) {
		t.Fatalf("parsed %d segments, want %d", len(got.Segments), len(doc.Segments))
	}
	for i, s := range got.Segments {
		orig := doc.Segments[i]
		if s.Text != orig.Text {
			t.Errorf("segment %d text = %q, want %q", i, s.Text, orig.Text)
		}
		if s.Start != math.Floor(orig.Start) || s.End != math.Floor(orig.End) {
			t.Errorf("segment %d times = [%v, %v], want floored [%v, %v]",
				i, s.Start, s.End, math.Floor(orig.Start), math.Floor(orig.End))
		}
		if s.ID != i {
			t.Errorf("segment %d id = %d", i, s.ID)
		}
	}
}

func TestParse_EmptyTranscript(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	doc.Segments = nil

	got, err := render.Parse(render.Render(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Segments) != 0 {
		t.Errorf("parsed %d segments from empty transcript", len(got.Segments))
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"",
		"not a document",
		"# title only, no separator",
	} {
		if _, err := render.Parse(input); !errors.Is(err, render.ErrMalformed) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformed", input, err)
		}
	}
}

func TestParse_BadTimestampRejected(t *testing.T) {
	t.Parallel()

	input := "# t\n\n> **Language:** en\n\n---\n\n**[xx:00:00 → 00:00:01]**\nhello\n\n---\n"
	if _, err := render.Parse(input); !errors.Is(err, render.ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}
