package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// fakeDB implements core.DbClient with overridable hooks for the methods
// the pipeline touches. Everything else is a no-op.
type fakeDB struct {
	mu sync.Mutex

	claimFn  func(ctx context.Context, id string) (*models.Document, error)
	insertFn func(ctx context.Context, chunks []models.Chunk) error

	inserted  []models.Chunk
	finished  []finishCall
	deleted   []string
	documents map[string]*models.Document
}

type finishCall struct {
	id        string
	status    string
	pageCount *int
}

func newFakeDB() *fakeDB {
	return &fakeDB{documents: make(map[string]*models.Document)}
}

func (f *fakeDB) ClaimDocumentForProcessing(ctx context.Context, id string) (*models.Document, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[id]
	if !ok || doc.Status != models.StatusPending {
		return nil, nil
	}
	doc.Status = models.StatusProcessing
	claimed := *doc
	return &claimed, nil
}

func (f *fakeDB) FinishDocument(ctx context.Context, id, status string, pageCount *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, finishCall{id: id, status: status, pageCount: pageCount})
	if doc, ok := f.documents[id]; ok {
		doc.Status = status
		doc.PageCount = pageCount
	}
	return nil
}

func (f *fakeDB) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeDB) InsertDocumentChunks(ctx context.Context, chunks []models.Chunk) error {
	if f.insertFn != nil {
		if err := f.insertFn(ctx, chunks); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeDB) CreateUser(context.Context, *models.User) error            { return nil }
func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, nil
}
func (f *fakeDB) CreateDocument(context.Context, *models.Document) error { return nil }
func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents[id], nil
}
func (f *fakeDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return nil, nil
}
func (f *fakeDB) DeleteDocument(context.Context, string) error { return nil }
func (f *fakeDB) ResetDocumentToPending(context.Context, string) error       { return nil }
func (f *fakeDB) GetChunksByDocument(context.Context, string, int) ([]models.Chunk, error) {
	return nil, nil
}
func (f *fakeDB) SearchDocumentChunks(context.Context, string, []float32, int, int) ([]models.RetrievedChunk, error) {
	return nil, nil
}
func (f *fakeDB) CreateChat(context.Context, *models.Chat) error          { return nil }
func (f *fakeDB) GetChatByID(context.Context, string) (*models.Chat, error) {
	return nil, nil
}
func (f *fakeDB) ListChatsByUser(context.Context, string, int) ([]models.Chat, error) {
	return nil, nil
}
func (f *fakeDB) AddChatMessage(context.Context, *models.ChatMessage) error { return nil }
func (f *fakeDB) ListChatMessages(context.Context, string) ([]models.ChatMessage, error) {
	return nil, nil
}
func (f *fakeDB) CreateQuiz(context.Context, *models.Quiz) error            { return nil }
func (f *fakeDB) GetQuizByID(context.Context, string) (*models.Quiz, error) {
	return nil, nil
}
func (f *fakeDB) CreateQuizAttempt(context.Context, *models.QuizAttempt) error { return nil }
func (f *fakeDB) InsertAnswers(context.Context, []models.Answer) error         { return nil }
func (f *fakeDB) ListRecentAttemptScores(context.Context, string, string, int) ([]float64, error) {
	return nil, nil
}
func (f *fakeDB) GetProgressMetrics(context.Context, string) (json.RawMessage, error) {
	return nil, nil
}
func (f *fakeDB) UpsertProgressMetrics(context.Context, string, json.RawMessage) error {
	return nil
}
func (f *fakeDB) Close() error { return nil }

var _ core.DbClient = (*fakeDB)(nil)

// fakeEmbedder returns a fixed-size vector, failing for texts listed in
// failOn.
type fakeEmbedder struct {
	dim    int
	failOn map[string]bool
}

func (f *fakeEmbedder) embed() []float32 {
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	return make([]float32, dim)
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	if f.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	return f.embed(), nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.failOn[text] {
		return nil, errors.New("embedding unavailable")
	}
	return f.embed(), nil
}

var _ core.EmbeddingProvider = (*fakeEmbedder)(nil)

// fakeObject serves file bytes per key from memory.
type fakeObject struct {
	files map[string][]byte
	err   error
}

func (f *fakeObject) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[key], nil
}

func (f *fakeObject) UploadFile(context.Context, string, string, io.Reader, string) (string, error) {
	return "", nil
}
func (f *fakeObject) DeleteFile(context.Context, string, string) error { return nil }

var _ core.ObjectClient = (*fakeObject)(nil)

// fakeExtractor maps any input to a canned page list.
type fakeExtractor struct {
	pages []core.PageText
	err   error
}

func (f *fakeExtractor) ExtractPages(buf []byte) ([]core.PageText, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

var _ core.PageExtractor = (*fakeExtractor)(nil)
