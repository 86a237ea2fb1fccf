package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	embmock "github.com/MrWong99/loquax/pkg/provider/embeddings/mock"
)

func TestEmbedAll_ChunksAndReassembles(t *testing.T) {
	t.Parallel()

	texts := make([]string, embedChunkSize*2+5)
	for i := range texts {
		texts[i] = fmt.Sprintf("segment %d", i)
	}

	mock := &embmock.Provider{Dim: 4}
	s := &PostgresStore{embedder: mock}

	vectors, err := s.embedAll(context.Background(), texts)
	if err != nil {
		t.Fatalf("embedAll: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != 4 {
			t.Fatalf("vector %d has %d dimensions, want 4", i, len(v))
		}
	}

	// Order must survive parallel chunking: the vector for each text must
	// equal the one the provider derives from that text.
	want, err := mock.Embed(context.Background(), texts[embedChunkSize+1])
	if err != nil {
		t.Fatal(err)
	}
	got := vectors[embedChunkSize+1]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("vector mismatch at text %d", embedChunkSize+1)
		}
	}

	if len(mock.EmbedBatchCalls) != 3 {
		t.Errorf("provider saw %d batch calls, want 3", len(mock.EmbedBatchCalls))
	}
}

func TestEmbedAll_NilEmbedder(t *testing.T) {
	t.Parallel()

	s := &PostgresStore{}
	vectors, err := s.embedAll(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embedAll: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil vectors without an embedder, got %v", vectors)
	}
}

func TestEmbedAll_PropagatesProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("quota exceeded")
	s := &PostgresStore{embedder: &embmock.Provider{Err: wantErr}}

	if _, err := s.embedAll(context.Background(), []string{"a"}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestDDLBakesDimensions(t *testing.T) {
	t.Parallel()

	ddl := ddlDocuments(768)
	if !strings.Contains(ddl, "vector(768)") {
		t.Error("embedding dimension not baked into the segment schema")
	}
	if !strings.Contains(ddl, "hnsw") {
		t.Error("missing HNSW index on the embedding column")
	}
}
