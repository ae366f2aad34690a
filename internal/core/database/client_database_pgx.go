package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kolade-dev/pagetutor/internal/config"
	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

type DatabaseClient struct {
	db       *sql.DB
	embedDim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, embedDim: cfg.EmbedDim}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.ContentType, doc.Status)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, status, page_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, status, page_count, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes the document row; chunks, quizzes and attempts go
// with it via ON DELETE CASCADE.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// ClaimDocumentForProcessing is the single cross-process coordination point
// of the ingestion pipeline: one conditional UPDATE, one round trip, so two
// concurrent triggers cannot both win.
func (c *DatabaseClient) ClaimDocumentForProcessing(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		UPDATE documents
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, user_id, file_name, storage_url, content_type, status, page_count, created_at, updated_at
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.Status, &d.PageCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) FinishDocument(ctx context.Context, id string, status string, pageCount *int) error {
	const q = `
		UPDATE documents
		SET status = $2, page_count = COALESCE($3, page_count), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, pageCount)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) ResetDocumentToPending(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET status = 'pending', updated_at = now()
		WHERE id = $1 AND status <> 'processing'
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s is processing or missing", id)
	}
	return nil
}

// Chunks

func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, documentID string) error {
	const q = `DELETE FROM chunks WHERE document_id = $1`
	_, err := c.db.ExecContext(ctx, q, documentID)
	return err
}

// InsertDocumentChunks inserts one slice of chunks in a single transaction.
// A chunk with a nil embedding is stored with a NULL vector; its text and
// locator survive so the chunk can be re-embedded later.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunks
			(id, document_id, page, line_start, line_end, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if ch.Embedding != nil {
			vec = pgvector.NewVector(ch.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Page, ch.LineStart, ch.LineEnd, ch.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.Chunk, error) {
	const q = `
		SELECT id, document_id, page, line_start, line_end, text, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY page ASC, line_start ASC NULLS LAST
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Page, &ch.LineStart, &ch.LineEnd, &ch.Text, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchDocumentChunks finds top-k similar chunks within one document for a
// query embedding. The probes setting is applied with SET LOCAL so it only
// affects this transaction.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, k, probes int) ([]models.RetrievedChunk, error) {
	if len(queryVec) != c.embedDim {
		return nil, fmt.Errorf("query vector has %d dimensions, store expects %d", len(queryVec), c.embedDim)
	}
	if k <= 0 {
		k = 5
	}
	if probes <= 0 {
		probes = 10
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, err
	}

	const q = `
		SELECT id, document_id, page, line_start, line_end, text, embedding <=> $2 AS distance
		FROM chunks
		WHERE document_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := tx.QueryContext(ctx, q, documentID, vec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RetrievedChunk
	for rows.Next() {
		var rc models.RetrievedChunk
		if err := rows.Scan(&rc.ID, &rc.DocumentID, &rc.Page, &rc.LineStart, &rc.LineEnd, &rc.Text, &rc.Distance); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

// Chats

func (c *DatabaseClient) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("nil chat")
	}
	const q = `
		INSERT INTO chats (id, user_id, document_id, created_at)
		VALUES ($1, $2, $3, now())
	`
	_, err := c.db.ExecContext(ctx, q, chat.ID, chat.UserID, chat.DocumentID)
	return err
}

func (c *DatabaseClient) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	const q = `
		SELECT id, user_id, document_id, created_at
		FROM chats WHERE id = $1
	`
	var ch models.Chat
	err := c.db.QueryRowContext(ctx, q, id).Scan(&ch.ID, &ch.UserID, &ch.DocumentID, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *DatabaseClient) ListChatsByUser(ctx context.Context, userID string, limit int) ([]models.Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, user_id, document_id, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		var ch models.Chat
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.DocumentID, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) AddChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	const q = `
		INSERT INTO messages (id, chat_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err := c.db.ExecContext(ctx, q, msg.ID, msg.ChatID, msg.Role, msg.Content)
	return err
}

func (c *DatabaseClient) ListChatMessages(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Quizzes

func (c *DatabaseClient) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	if quiz == nil {
		return errors.New("nil quiz")
	}
	const q = `
		INSERT INTO quizzes (id, user_id, document_id, config, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	_, err := c.db.ExecContext(ctx, q, quiz.ID, quiz.UserID, quiz.DocumentID, []byte(quiz.Config))
	return err
}

func (c *DatabaseClient) GetQuizByID(ctx context.Context, id string) (*models.Quiz, error) {
	const q = `
		SELECT id, user_id, document_id, config, created_at
		FROM quizzes WHERE id = $1
	`
	var (
		quiz models.Quiz
		raw  []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&quiz.ID, &quiz.UserID, &quiz.DocumentID, &raw, &quiz.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	quiz.Config = json.RawMessage(raw)
	return &quiz, nil
}

func (c *DatabaseClient) CreateQuizAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if attempt == nil {
		return errors.New("nil attempt")
	}
	const q = `
		INSERT INTO quiz_attempts (id, quiz_id, user_id, score, details, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := c.db.ExecContext(ctx, q, attempt.ID, attempt.QuizID, attempt.UserID, attempt.Score, []byte(attempt.Details))
	return err
}

func (c *DatabaseClient) InsertAnswers(ctx context.Context, answers []models.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO answers (id, quiz_attempt_id, question_index, user_answer, correct_answer, is_correct)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range answers {
		a := &answers[i]
		if _, err := stmt.ExecContext(ctx, a.ID, a.AttemptID, a.QuestionIndex, a.UserAnswer, a.CorrectAnswer, a.IsCorrect); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListRecentAttemptScores returns the caller's latest attempt scores for one
// document as fractions in [0, 1], newest first.
func (c *DatabaseClient) ListRecentAttemptScores(ctx context.Context, userID, documentID string, limit int) ([]float64, error) {
	const q = `
		SELECT qa.score::float8 / GREATEST(jsonb_array_length(qa.details->'questionScores'), 1)
		FROM quiz_attempts qa
		JOIN quizzes qz ON qz.id = qa.quiz_id
		WHERE qa.user_id = $1 AND qz.document_id = $2
		ORDER BY qa.created_at DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, userID, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Progress

func (c *DatabaseClient) GetProgressMetrics(ctx context.Context, userID string) (json.RawMessage, error) {
	const q = `SELECT metrics FROM user_progress WHERE user_id = $1`
	var raw []byte
	err := c.db.QueryRowContext(ctx, q, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (c *DatabaseClient) UpsertProgressMetrics(ctx context.Context, userID string, metrics json.RawMessage) error {
	const q = `
		INSERT INTO user_progress (user_id, metrics, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET metrics = EXCLUDED.metrics, updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q, userID, []byte(metrics))
	return err
}
