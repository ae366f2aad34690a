package models

import (
	"encoding/json"
	"time"
)

// Document lifecycle statuses. Transitions within one ingestion attempt are
// monotonic: pending -> processing -> {ready | partial | failed}.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded source file.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"`
	PageCount   *int      `db:"page_count" json:"page_count"` // nil until ingestion discovers it
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Chunk is the retrievable unit of text: a bounded span of one page with a
// best-effort line range. LineStart/LineEnd are nil when extraction could not
// track lines; when set they are 1-based and advisory only. Embedding is nil
// when the embedding call failed for this chunk.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Page       int       `db:"page" json:"page"`
	LineStart  *int      `db:"line_start" json:"line_start"`
	LineEnd    *int      `db:"line_end" json:"line_end"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"embedding"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RetrievedChunk is a read-only projection of Chunk plus the similarity
// distance to the query. Produced transiently by retrieval, never persisted.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Page       int     `json:"page"`
	LineStart  *int    `json:"line_start"`
	LineEnd    *int    `json:"line_end"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}

// Citation ties a generated statement back to its source chunk. Excerpt is a
// bounded prefix of the chunk text, not the full chunk.
type Citation struct {
	Page      int    `json:"page"`
	LineStart *int   `json:"line_start"`
	LineEnd   *int   `json:"line_end"`
	Excerpt   string `json:"excerpt"`
}

// Chat represents one conversation, optionally grounded in a document.
type Chat struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	DocumentID *string   `db:"document_id" json:"document_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QuizConfig is the caller's request: how many questions of each type.
type QuizConfig struct {
	MCQ        int    `json:"mcq"`
	SAQ        int    `json:"saq"`
	LAQ        int    `json:"laq"`
	Difficulty string `json:"difficulty"` // easy | medium | hard | auto
}

// Question carries its own citation inherited from the chunk it was
// generated from.
type Question struct {
	ID            int      `json:"id"`
	Type          string   `json:"type"` // mcq | saq | laq
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Page          int      `json:"page"`
	LineStart     *int     `json:"lineStart,omitempty"`
	LineEnd       *int     `json:"lineEnd,omitempty"`
	Topic         string   `json:"topic"`
}

// Quiz owns an ordered list of questions. Config and questions are stored
// together as one JSON document.
type Quiz struct {
	ID         string          `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	DocumentID string          `db:"document_id" json:"document_id"`
	Config     json.RawMessage `db:"config" json:"config"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// StoredQuiz is the decoded shape of Quiz.Config.
type StoredQuiz struct {
	QuizConfig
	Questions []Question `json:"questions"`
}

// QuizAttempt records one scored submission of a quiz.
type QuizAttempt struct {
	ID        string          `db:"id" json:"id"`
	QuizID    string          `db:"quiz_id" json:"quiz_id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Score     int             `db:"score" json:"score"`
	Details   json.RawMessage `db:"details" json:"details"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Answer records one evaluated answer within an attempt.
type Answer struct {
	ID            string `db:"id" json:"id"`
	AttemptID     string `db:"quiz_attempt_id" json:"quiz_attempt_id"`
	QuestionIndex int    `db:"question_index" json:"question_index"`
	UserAnswer    string `db:"user_answer" json:"user_answer"`
	CorrectAnswer string `db:"correct_answer" json:"correct_answer"`
	IsCorrect     bool   `db:"is_correct" json:"is_correct"`
}
