package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/render"
	"github.com/MrWong99/loquax/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// embedChunkSize is how many segment texts go into one embedding request.
const embedChunkSize = 64

// embedParallelism bounds concurrent embedding requests per archive call.
const embedParallelism = 4

// PostgresStore archives transcripts into PostgreSQL. When an embeddings
// provider is configured, segment vectors are stored in a pgvector column
// with an HNSW index so segments can be retrieved by semantic similarity.
//
// All operations are safe for concurrent use.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// ddlDocuments creates the archive schema. The vector dimension is baked
// into the column type at creation time; changing the embedding model after
// the first migration requires a manual schema change.
func ddlDocuments(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id               BIGSERIAL    PRIMARY KEY,
    title            TEXT         NOT NULL,
    generated_at     TIMESTAMPTZ  NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    language         TEXT         NOT NULL DEFAULT '',
    model            TEXT         NOT NULL DEFAULT '',
    batches          INT          NOT NULL DEFAULT 0,
    batches_skipped  INT          NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS document_segments (
    document_id   BIGINT  NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
    seq           INT     NOT NULL,
    start_seconds DOUBLE PRECISION NOT NULL,
    end_seconds   DOUBLE PRECISION NOT NULL,
    text          TEXT    NOT NULL,
    embedding     vector(%d),
    PRIMARY KEY (document_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_document_segments_embedding
    ON document_segments USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_document_segments_fts
    ON document_segments USING GIN (to_tsvector('english', text));

CREATE TABLE IF NOT EXISTS document_terms (
    document_id BIGINT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
    original    TEXT   NOT NULL,
    corrected   TEXT   NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (document_id, original)
);
`, dimensions)
}

// NewPostgresStore connects to the database at dsn, registers pgvector types
// on every connection, and ensures the archive schema exists.
//
// embedder may be nil; segments are then archived without vectors. When
// non-nil, its Dimensions() fixes the vector column width.
func NewPostgresStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	dimensions := 1536
	if embedder != nil {
		dimensions = embedder.Dimensions()
	}
	if _, err := pool.Exec(ctx, ddlDocuments(dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return &PostgresStore{pool: pool, embedder: embedder}, nil
}

// Archive implements [Store]. The document row, its segments, and the
// accepted terms are written in one transaction; segment embeddings are
// computed up front with bounded parallelism.
func (s *PostgresStore) Archive(ctx context.Context, doc *render.Document, report *correct.Report) error {
	texts := make([]string, len(doc.Segments))
	for i, seg := range doc.Segments {
		texts[i] = seg.Text
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("archive: embed segments: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	skipped := 0
	batches := 0
	if report != nil {
		batches = report.Batches
		skipped = len(report.Skipped)
	}

	var docID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (title, generated_at, duration_seconds, language, model, batches, batches_skipped)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		doc.Title, doc.GeneratedAt, doc.Duration, doc.Language, doc.Model, batches, skipped,
	).Scan(&docID)
	if err != nil {
		return fmt.Errorf("archive: insert document: %w", err)
	}

	for i, seg := range doc.Segments {
		var vec any
		if vectors != nil && vectors[i] != nil {
			vec = pgvector.NewVector(vectors[i])
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO document_segments (document_id, seq, start_seconds, end_seconds, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			docID, seg.ID, seg.Start, seg.End, seg.Text, vec,
		)
		if err != nil {
			return fmt.Errorf("archive: insert segment %d: %w", seg.ID, err)
		}
	}

	if report != nil {
		for _, term := range report.Terms {
			_, err := tx.Exec(ctx, `
				INSERT INTO document_terms (document_id, original, corrected, confidence)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (document_id, original) DO NOTHING`,
				docID, term.Original, term.Corrected, term.Confidence,
			)
			if err != nil {
				return fmt.Errorf("archive: insert term %q: %w", term.Original, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Close implements [Store].
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// embedAll computes embeddings for texts in chunks, running up to
// embedParallelism requests concurrently. Returns nil when no embedder is
// configured.
func (s *PostgresStore) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil || len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)

	for start := 0; start < len(texts); start += embedChunkSize {
		end := start + embedChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			chunk, err := s.embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], chunk)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
