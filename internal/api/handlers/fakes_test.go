package handlers

import (
	"context"
	"encoding/json"

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
func (stubDB) CreateQuiz(context.Context, *models.Quiz) error { return nil }
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

// chatStoreDB serves canned chats and message histories.
type chatStoreDB struct {
	stubDB
	chats    []models.Chat
	messages map[string][]models.ChatMessage
}

func (c *chatStoreDB) ListChatsByUser(ctx context.Context, userID string, limit int) ([]models.Chat, error) {
	var out []models.Chat
	for _, ch := range c.chats {
		if ch.UserID == userID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *chatStoreDB) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	for _, ch := range c.chats {
		if ch.ID == id {
			found := ch
			return &found, nil
		}
	}
	return nil, nil
}

func (c *chatStoreDB) ListChatMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	return c.messages[chatID], nil
}

// docStoreDB serves canned documents and records status resets.
type docStoreDB struct {
	stubDB
	documents map[string]*models.Document
	resets    []string
}

func (d *docStoreDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return d.documents[id], nil
}

func (d *docStoreDB) ResetDocumentToPending(ctx context.Context, id string) error {
	d.resets = append(d.resets, id)
	if doc, ok := d.documents[id]; ok {
		doc.Status = models.StatusPending
	}
	return nil
}
