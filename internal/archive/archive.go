// Package archive persists finished transcripts to a knowledge base so past
// runs remain searchable. Archival is strictly best-effort: the pipeline
// logs archive failures and still delivers the rendered document.
package archive

import (
	"context"

	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/render"
)

// Store is the abstraction over a transcript archive backend.
type Store interface {
	// Archive persists the document, its segments, and the correction
	// report's accepted terms.
	Archive(ctx context.Context, doc *render.Document, report *correct.Report) error

	// Close releases backend resources.
	Close()
}
