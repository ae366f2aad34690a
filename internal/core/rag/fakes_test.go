package rag

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// stubDB is a no-op core.DbClient. Test doubles embed it and override only
// what they exercise.
type stubDB struct{}

func (stubDB) CreateUser(context.Context, *models.User) error { return nil }
func (stubDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, nil
}
func (stubDB) CreateDocument(context.Context, *models.Document) error { return nil }
func (stubDB) GetDocumentByID(context.Context, string) (*models.Document, error) {
	return nil, nil
}
func (stubDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return nil, nil
}
func (stubDB) DeleteDocument(context.Context, string) error { return nil }
func (stubDB) ClaimDocumentForProcessing(context.Context, string) (*models.Document, error) {
	return nil, nil
}
func (stubDB) FinishDocument(context.Context, string, string, *int) error { return nil }
func (stubDB) ResetDocumentToPending(context.Context, string) error       { return nil }
func (stubDB) DeleteDocumentChunks(context.Context, string) error         { return nil }
func (stubDB) InsertDocumentChunks(context.Context, []models.Chunk) error { return nil }
func (stubDB) GetChunksByDocument(context.Context, string, int) ([]models.Chunk, error) {
	return nil, nil
}
func (stubDB) SearchDocumentChunks(context.Context, string, []float32, int, int) ([]models.RetrievedChunk, error) {
	return nil, nil
}
func (stubDB) CreateChat(context.Context, *models.Chat) error { return nil }
func (stubDB) GetChatByID(context.Context, string) (*models.Chat, error) {
	return nil, nil
}
func (stubDB) ListChatsByUser(context.Context, string, int) ([]models.Chat, error) {
	return nil, nil
}
func (stubDB) AddChatMessage(context.Context, *models.ChatMessage) error { return nil }
func (stubDB) ListChatMessages(context.Context, string) ([]models.ChatMessage, error) {
	return nil, nil
}
func (stubDB) CreateQuiz(context.Context, *models.Quiz) error            { return nil }
func (stubDB) GetQuizByID(context.Context, string) (*models.Quiz, error) {
	return nil, nil
}
func (stubDB) CreateQuizAttempt(context.Context, *models.QuizAttempt) error { return nil }
func (stubDB) InsertAnswers(context.Context, []models.Answer) error         { return nil }
func (stubDB) ListRecentAttemptScores(context.Context, string, string, int) ([]float64, error) {
	return nil, nil
}
func (stubDB) GetProgressMetrics(context.Context, string) (json.RawMessage, error) {
	return nil, nil
}
func (stubDB) UpsertProgressMetrics(context.Context, string, json.RawMessage) error {
	return nil
}
func (stubDB) Close() error { return nil }

var _ core.DbClient = stubDB{}

// searchDB records vector searches and serves canned results.
type searchDB struct {
	stubDB
	results   []models.RetrievedChunk
	searchErr error

	lastDocID  string
	lastVec    []float32
	lastK      int
	lastProbes int
}

func (s *searchDB) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, k, probes int) ([]models.RetrievedChunk, error) {
	s.lastDocID = documentID
	s.lastVec = queryVec
	s.lastK = k
	s.lastProbes = probes
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results, nil
}

// chatDB records persisted chats and messages.
type chatDB struct {
	searchDB
	chats     []models.Chat
	messages  []models.ChatMessage
	createErr error
}

func (c *chatDB) CreateChat(ctx context.Context, chat *models.Chat) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.chats = append(c.chats, *chat)
	return nil
}

func (c *chatDB) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	c.messages = append(c.messages, *msg)
	return nil
}

// stubEmbedder returns a fixed vector, or an error when set.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

var _ core.EmbeddingProvider = (*stubEmbedder)(nil)

// scriptedStream replays fixed parts, then ends with EOF or a scripted
// failure.
type scriptedStream struct {
	parts []string
	idx   int
	err   error
}

func (s *scriptedStream) Next() (string, error) {
	if s.idx < len(s.parts) {
		part := s.parts[s.idx]
		s.idx++
		return part, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// ctxStream blocks until the request context ends, then fails with its
// error.
type ctxStream struct{ ctx context.Context }

func (s *ctxStream) Next() (string, error) {
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

// ctxLLM hands out a ctxStream so generation hangs until cancellation.
type ctxLLM struct{}

func (ctxLLM) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("not scripted")
}

func (ctxLLM) GenerateStream(ctx context.Context, system, user string) core.TokenStream {
	return &ctxStream{ctx: ctx}
}

var _ core.LLMProvider = ctxLLM{}

// stubLLM serves a scripted stream per GenerateStream call.
type stubLLM struct {
	parts      []string
	streamErr  error
	lastSystem string
	lastUser   string
}

func (s *stubLLM) Generate(ctx context.Context, system, user string) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	return "", errors.New("not scripted")
}

func (s *stubLLM) GenerateStream(ctx context.Context, system, user string) core.TokenStream {
	s.lastSystem = system
	s.lastUser = user
	return &scriptedStream{parts: s.parts, err: s.streamErr}
}

var _ core.LLMProvider = (*stubLLM)(nil)
