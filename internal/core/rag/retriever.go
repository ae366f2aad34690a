package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

const (
	DefaultTopK   = 5
	DefaultProbes = 10
)

// Retriever embeds a query with the same capability used at ingestion and
// runs a nearest-neighbor search scoped to one document.
type Retriever struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	dim      int
}

func NewRetriever(db core.DbClient, embedder core.EmbeddingProvider, dim int) *Retriever {
	return &Retriever{db: db, embedder: embedder, dim: dim}
}

// Retrieve returns up to k chunks of the document ordered by ascending
// distance. An embedding failure or an empty chunk set yields an empty
// result with a nil error: callers treat "no grounding available" as a
// valid state and fall back to ungrounded generation. A query vector whose
// dimensionality does not match the store is an error, never silently
// truncated or padded.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, k, probes int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if probes <= 0 {
		probes = DefaultProbes
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("query embedding failed, returning no grounding")
		return nil, nil
	}
	if len(vec) != r.dim {
		return nil, fmt.Errorf("query embedding has %d dimensions, store expects %d", len(vec), r.dim)
	}

	chunks, err := r.db.SearchDocumentChunks(ctx, documentID, vec, k, probes)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return chunks, nil
}
