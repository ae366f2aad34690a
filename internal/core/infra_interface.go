package core

import (
	"context"
	"encoding/json"
	"io"

	"github.com/kolade-dev/pagetutor/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// ClaimDocumentForProcessing flips pending -> processing in a single
	// conditional update and returns the claimed row. A nil document with a
	// nil error means the document was not pending: the caller lost the race
	// (or the document was already processed) and must treat the ingestion
	// as a no-op.
	ClaimDocumentForProcessing(ctx context.Context, id string) (*models.Document, error)

	// FinishDocument records the terminal status of an ingestion attempt,
	// along with the discovered page count when there is one (pass nil to
	// leave page_count untouched).
	FinishDocument(ctx context.Context, id string, status string, pageCount *int) error

	// ResetDocumentToPending rearms a document for reprocessing. It refuses
	// to touch a document that is currently processing.
	ResetDocumentToPending(ctx context.Context, id string) error

	DeleteDocumentChunks(ctx context.Context, documentID string) error
	InsertDocumentChunks(ctx context.Context, chunks []models.Chunk) error
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.Chunk, error)

	// SearchDocumentChunks runs a nearest-neighbor search scoped strictly to
	// one document, ordered by ascending distance. probes tunes the ivfflat
	// recall/speed tradeoff for this query only.
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, k, probes int) ([]models.RetrievedChunk, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id string) (*models.Chat, error)
	ListChatsByUser(ctx context.Context, userID string, limit int) ([]models.Chat, error)
	AddChatMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListChatMessages returns a conversation's messages in chronological
	// order. Ownership is the caller's concern.
	ListChatMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error)

	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	GetQuizByID(ctx context.Context, id string) (*models.Quiz, error)
	CreateQuizAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	InsertAnswers(ctx context.Context, answers []models.Answer) error
	ListRecentAttemptScores(ctx context.Context, userID, documentID string, limit int) ([]float64, error)

	GetProgressMetrics(ctx context.Context, userID string) (json.RawMessage, error)
	UpsertProgressMetrics(ctx context.Context, userID string, metrics json.RawMessage) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
