package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// embedConcurrency bounds parallel embedding calls within one batch.
const embedConcurrency = 8

// BatchStats aggregates one document's embed-and-persist outcome. A chunk
// counts as a success only when it was embedded and its insert slice landed;
// everything else is an error. Errors are counted, not escalated; the state
// machine decides what the aggregate means.
type BatchStats struct {
	Success int
	Errors  int
	Total   int
}

// EmbedBatcher converts chunk text into vectors in bounded batches and
// persists each batch in bounded insert slices. Embedding failures and
// insert failures are independent axes: one chunk's failed embedding never
// fails its batch siblings, and one failed insert slice never aborts the
// slices after it.
type EmbedBatcher struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	cfg      Config
}

func NewEmbedBatcher(db core.DbClient, embedder core.EmbeddingProvider, cfg Config) *EmbedBatcher {
	return &EmbedBatcher{db: db, embedder: embedder, cfg: cfg.withDefaults()}
}

// Run embeds and persists all chunks for one document.
func (b *EmbedBatcher) Run(ctx context.Context, documentID string, chunks []models.Chunk) BatchStats {
	stats := BatchStats{Total: len(chunks)}
	if len(chunks) == 0 {
		return stats
	}

	for start := 0; start < len(chunks); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embedded := b.embedBatch(ctx, batch)
		rows := make([]models.Chunk, len(batch))
		for i := range batch {
			rows[i] = batch[i]
			rows[i].ID = uuid.NewString()
			rows[i].DocumentID = documentID
			rows[i].Embedding = embedded[i]
		}

		inserted := b.insertSlices(ctx, documentID, rows)
		for i := range rows {
			if embedded[i] != nil && inserted[i] {
				stats.Success++
			}
		}
	}

	stats.Errors = stats.Total - stats.Success
	return stats
}

// embedBatch embeds every chunk of one batch independently, each call under
// its own timeout. The result is parallel to the batch; nil marks a failure.
func (b *EmbedBatcher) embedBatch(ctx context.Context, batch []models.Chunk) [][]float32 {
	vectors := make([][]float32, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range batch {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, b.cfg.EmbedTimeout)
			defer cancel()

			vec, err := b.embedder.EmbedDocument(callCtx, batch[i].Text)
			if err != nil {
				log.Warn().Err(err).Int("page", batch[i].Page).Msg("chunk embedding failed")
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	return vectors
}

// insertSlices persists rows in slices small enough for payload limits. A
// failed slice is logged and skipped; later slices still run.
func (b *EmbedBatcher) insertSlices(ctx context.Context, documentID string, rows []models.Chunk) []bool {
	inserted := make([]bool, len(rows))

	for start := 0; start < len(rows); start += b.cfg.InsertSliceSize {
		end := start + b.cfg.InsertSliceSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := b.db.InsertDocumentChunks(ctx, rows[start:end]); err != nil {
			log.Error().Err(err).Str("document_id", documentID).Int("slice_start", start).Msg("chunk insert slice failed")
			continue
		}
		for i := start; i < end; i++ {
			inserted[i] = true
		}
	}
	return inserted
}
