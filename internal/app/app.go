package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/config"
	"github.com/kolade-dev/pagetutor/internal/core"
	db "github.com/kolade-dev/pagetutor/internal/core/database"
	"github.com/kolade-dev/pagetutor/internal/core/ingest"
	"github.com/kolade-dev/pagetutor/internal/core/llm"
	"github.com/kolade-dev/pagetutor/internal/core/objectstore"
	"github.com/kolade-dev/pagetutor/internal/core/rag"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Ingestor     *ingest.DocumentIngestor
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	log.Info().Msg("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store init: %w", err)
	}
	log.Info().Msg("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("embedder init: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("llm init: %w", err)
	}

	extractor := ingest.NewPDFExtractor()

	ingestor := ingest.NewDocumentIngestor(dbClient, objClient, embedder, extractor, ingest.Config{
		MaxLen:          cfg.ChunkMaxLen,
		Overlap:         cfg.ChunkOverlap,
		BatchSize:       cfg.EmbedBatchSize,
		InsertSliceSize: cfg.InsertSliceSize,
		Workers:         cfg.IngestWorkers,
	})

	retriever := rag.NewRetriever(dbClient, embedder, cfg.EmbedDim)
	streamer := rag.NewAnswerStreamer(dbClient, retriever, llmProvider)

	server := NewServer(cfg, dbClient, objClient, ingestor, retriever, streamer, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Ingestor:     ingestor,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
