package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

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

// quizDB serves documents, quizzes and search results from memory and
// records writes.
type quizDB struct {
	stubDB

	documents    map[string]*models.Document
	quizzes      map[string]*models.Quiz
	searchRes    []models.RetrievedChunk
	storedChunks []models.Chunk
	recentScores []float64

	createdQuiz *models.Quiz
	attempt     *models.QuizAttempt
	answers     []models.Answer
	progress    json.RawMessage
}

func newQuizDB() *quizDB {
	return &quizDB{
		documents: make(map[string]*models.Document),
		quizzes:   make(map[string]*models.Quiz),
	}
}

func (q *quizDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return q.documents[id], nil
}

func (q *quizDB) SearchDocumentChunks(ctx context.Context, documentID string, vec []float32, k, probes int) ([]models.RetrievedChunk, error) {
	return q.searchRes, nil
}

func (q *quizDB) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.Chunk, error) {
	return q.storedChunks, nil
}

func (q *quizDB) ListRecentAttemptScores(ctx context.Context, userID, documentID string, limit int) ([]float64, error) {
	return q.recentScores, nil
}

func (q *quizDB) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	q.createdQuiz = quiz
	q.quizzes[quiz.ID] = quiz
	return nil
}

func (q *quizDB) GetQuizByID(ctx context.Context, id string) (*models.Quiz, error) {
	return q.quizzes[id], nil
}

func (q *quizDB) CreateQuizAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	q.attempt = attempt
	return nil
}

func (q *quizDB) InsertAnswers(ctx context.Context, answers []models.Answer) error {
	q.answers = append(q.answers, answers...)
	return nil
}

func (q *quizDB) GetProgressMetrics(ctx context.Context, userID string) (json.RawMessage, error) {
	return q.progress, nil
}

func (q *quizDB) UpsertProgressMetrics(ctx context.Context, userID string, metrics json.RawMessage) error {
	q.progress = metrics
	return nil
}

// scriptedLLM replays one canned response per Generate call, in order.
// After the script runs out, calls fail.
type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Generate(ctx context.Context, system, user string) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errors.New("model unavailable")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, system, user string) core.TokenStream {
	return nil
}

var _ core.LLMProvider = (*scriptedLLM)(nil)

// stubEmbedder returns a fixed-size vector for every input.
type stubEmbedder struct{ dim int }

func (s *stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

var _ core.EmbeddingProvider = (*stubEmbedder)(nil)
