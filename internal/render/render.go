// Package render produces the final Markdown transcript document and parses
// it back for verification.
//
// The layout is: title, a quoted metadata header, the timestamped body, and
// a compact timeline table for skimming. [Parse] inverts [Render] on
// everything except table truncation, which only affects the timeline.
package render

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/loquax/internal/segment"
)

// ErrMalformed is returned by [Parse] when the input does not follow the
// rendered document layout.
var ErrMalformed = errors.New("render: malformed document")

// timeLayout is the header timestamp format.
const timeLayout = "2006-01-02 15:04:05"

// tableCellLimit is the maximum rune length of a timeline table cell before
// truncation.
const tableCellLimit = 80

// Document is the fully processed transcript ready for rendering.
type Document struct {
	// Title is the document heading, typically the media file's base name.
	Title string

	// GeneratedAt is when the pipeline produced the document.
	GeneratedAt time.Time

	// Duration is the source media length in seconds.
	Duration float64

	// Language is the recognized language code.
	Language string

	// Model names the recognition model tier that produced the transcript.
	Model string

	// Segments is the corrected transcript in order.
	Segments []segment.Segment
}

// Render produces the Markdown document.
func Render(doc *Document) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	fmt.Fprintf(&sb, "> **Generated:** %s\n", doc.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "> **Duration:** %s\n", formatDuration(doc.Duration))
	fmt.Fprintf(&sb, "> **Language:** %s\n", doc.Language)
	fmt.Fprintf(&sb, "> **Model:** %s\n", doc.Model)
	sb.WriteString("\n---\n\n")

	for _, s := range doc.Segments {
		fmt.Fprintf(&sb, "**[%s → %s]**\n%s\n\n", formatTimestamp(s.Start), formatTimestamp(s.End), s.Text)
	}

	sb.WriteString("---\n\n")
	sb.WriteString("## Timeline\n\n")
	sb.WriteString("| Time | Text |\n")
	sb.WriteString("|------|------|\n")
	for _, s := range doc.Segments {
		fmt.Fprintf(&sb, "| %s | %s |\n", formatTimestamp(s.Start), tableCell(s.Text))
	}

	return sb.String()
}

// Parse reads a rendered document back into a [Document]. Segment times are
// recovered at second precision and segment ids are reassigned from 0; the
// timeline table is ignored in favour of the untruncated body.
func Parse(s string) (*Document, error) {
	doc := &Document{}
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		sawTitle  bool
		inBody    bool
		pending   *segment.Segment
		separator int
	)

	flush := func() {
		if pending != nil {
			pending.ID = len(doc.Segments)
			doc.Segments = append(doc.Segments, *pending)
			pending = nil
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case !sawTitle:
			if title, ok := strings.CutPrefix(line, "# "); ok {
				doc.Title = title
				sawTitle = true
			} else if line != "" {
				return nil, fmt.Errorf("%w: expected title heading, got %q", ErrMalformed, line)
			}

		case strings.HasPrefix(line, "> **"):
			if err := parseHeaderField(doc, line); err != nil {
				return nil, err
			}

		case line == "---":
			separator++
			if separator == 1 {
				inBody = true
			} else {
				// End of body: the timeline table repeats truncated text.
				flush()
				if !sawTitle {
					return nil, fmt.Errorf("%w: missing title", ErrMalformed)
				}
				return doc, nil
			}

		case inBody && strings.HasPrefix(line, "**["):
			flush()
			start, end, err := parseTimestampLine(line)
			if err != nil {
				return nil, err
			}
			pending = &segment.Segment{Start: start, End: end}

		case inBody && line != "" && pending != nil:
			if pending.Text == "" {
				pending.Text = line
			} else {
				pending.Text += " " + line
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("render: parse: %w", err)
	}

	return nil, fmt.Errorf("%w: missing closing separator", ErrMalformed)
}

// parseHeaderField fills one metadata field from a quoted header line.
func parseHeaderField(doc *Document, line string) error {
	rest, ok := strings.CutPrefix(line, "> **")
	if !ok {
		return fmt.Errorf("%w: bad header line %q", ErrMalformed, line)
	}
	name, value, ok := strings.Cut(rest, ":** ")
	if !ok {
		return fmt.Errorf("%w: bad header line %q", ErrMalformed, line)
	}

	switch name {
	case "Generated":
		t, err := time.Parse(timeLayout, value)
		if err != nil {
			return fmt.Errorf("%w: generated timestamp: %v", ErrMalformed, err)
		}
		doc.GeneratedAt = t
	case "Duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: duration: %v", ErrMalformed, err)
		}
		doc.Duration = d.Seconds()
	case "Language":
		doc.Language = value
	case "Model":
		doc.Model = value
	default:
		// Unknown header fields are tolerated for forward compatibility.
	}
	return nil
}

// parseTimestampLine decodes a body line of the form
// **[HH:MM:SS → HH:MM:SS]**.
func parseTimestampLine(line string) (start, end float64, err error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "**["), "]**")
	from, to, ok := strings.Cut(inner, " → ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: bad timestamp line %q", ErrMalformed, line)
	}
	if start, err = parseTimestamp(from); err != nil {
		return 0, 0, err
	}
	if end, err = parseTimestamp(to); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// formatTimestamp renders seconds as HH:MM:SS, flooring sub-second parts.
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}

// parseTimestamp inverts formatTimestamp.
func parseTimestamp(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
		}
		total = total*60 + n
	}
	return float64(total), nil
}

// formatDuration humanises a media duration, e.g. "12m34s", dropping
// sub-second precision.
func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Truncate(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

// tableCell escapes pipes and truncates long text for the timeline table.
func tableCell(text string) string {
	cell := strings.ReplaceAll(text, "|", "\\|")
	runes := []rune(cell)
	if len(runes) > tableCellLimit {
		cell = string(runes[:tableCellLimit-1]) + "…"
	}
	return cell
}
