package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// Result reports how one ingestion trigger ended. Skipped means another
// process already held the document (or it was past pending) and this
// trigger was a no-op.
type Result struct {
	Skipped bool   `json:"skipped,omitempty"`
	Status  string `json:"status,omitempty"`
	Pages   int    `json:"pages,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	Errors  int    `json:"errors,omitempty"`
}

// DocumentIngestor coordinates extraction, chunking, embedding and
// persistence behind the document status field.
//
// The pending->processing transition is a single conditional update in the
// store, so concurrent triggers race safely: exactly one wins, losers see
// Skipped. Within one ingestion, prior chunks are fully deleted before the
// new set is inserted; a reader mid-transition may observe zero chunks or
// the new set, never a mix.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor core.PageExtractor
	batcher   *EmbedBatcher
	cfg       Config
	jobs      chan string
}

func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.PageExtractor, cfg Config) *DocumentIngestor {
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db:        db,
		obj:       obj,
		extractor: extractor,
		batcher:   NewEmbedBatcher(db, emb, cfg),
		cfg:       cfg,
		jobs:      make(chan string, 64),
	}
}

// Start launches the worker pool consuming the jobs channel.
func (i *DocumentIngestor) Start(ctx context.Context) {
	for w := 1; w <= i.cfg.Workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Debug().Int("worker", w).Msg("ingest worker shutting down")
					return
				case docID := <-i.jobs:
					res, err := i.Ingest(ctx, docID)
					if err != nil {
						log.Error().Err(err).Str("document_id", docID).Msg("ingestion failed")
						continue
					}
					log.Info().Str("document_id", docID).Bool("skipped", res.Skipped).
						Str("status", res.Status).Int("pages", res.Pages).
						Int("chunks", res.Chunks).Int("errors", res.Errors).
						Msg("ingestion finished")
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. Returns false when the
// queue is full so callers can surface backpressure instead of blocking an
// HTTP handler; the document stays pending and can be enqueued again.
func (i *DocumentIngestor) Enqueue(docID string) bool {
	select {
	case i.jobs <- docID:
		return true
	default:
		return false
	}
}

// Ingest runs the full pipeline for one document. Safe to call from
// concurrent triggers; only the claimant proceeds.
func (i *DocumentIngestor) Ingest(ctx context.Context, docID string) (Result, error) {
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
	defer cancel()

	doc, err := i.db.ClaimDocumentForProcessing(procCtx, docID)
	if err != nil {
		return Result{}, fmt.Errorf("claim document: %w", err)
	}
	if doc == nil {
		return Result{Skipped: true}, nil
	}

	bucket, key := parseS3URL(doc.StorageURL)
	buf, err := i.obj.GetFile(procCtx, bucket, key)
	if err != nil || len(buf) == 0 {
		i.finish(procCtx, docID, models.StatusFailed, nil)
		if err == nil {
			err = fmt.Errorf("downloaded file was empty")
		}
		return Result{Status: models.StatusFailed}, fmt.Errorf("download: %w", err)
	}

	pages, err := i.extractor.ExtractPages(buf)
	if err != nil {
		i.finish(procCtx, docID, models.StatusFailed, nil)
		return Result{Status: models.StatusFailed}, fmt.Errorf("extract: %w", err)
	}

	chunks := ChunkPages(pages, i.cfg)

	// Best-effort: stale chunks may linger after a failed delete, but the
	// next successful ingestion supersedes them.
	if err := i.db.DeleteDocumentChunks(procCtx, docID); err != nil {
		log.Warn().Err(err).Str("document_id", docID).Msg("deleting prior chunks failed")
	}

	stats := i.batcher.Run(procCtx, docID, chunks)

	pageCount := len(pages)
	res := Result{Pages: pageCount, Chunks: stats.Success, Errors: stats.Errors}

	switch {
	case stats.Success == 0:
		res.Status = models.StatusFailed
		i.finish(procCtx, docID, models.StatusFailed, nil)
		return res, fmt.Errorf("no chunks embedded for document %s", docID)
	case float64(stats.Errors) > float64(stats.Total)*0.5:
		res.Status = models.StatusPartial
		i.finish(procCtx, docID, models.StatusPartial, &pageCount)
	default:
		res.Status = models.StatusReady
		i.finish(procCtx, docID, models.StatusReady, &pageCount)
	}
	return res, nil
}

func (i *DocumentIngestor) finish(ctx context.Context, docID, status string, pageCount *int) {
	if err := i.db.FinishDocument(ctx, docID, status, pageCount); err != nil {
		log.Error().Err(err).Str("document_id", docID).Str("status", status).Msg("recording terminal status failed")
	}
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
