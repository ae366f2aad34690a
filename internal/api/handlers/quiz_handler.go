package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/api/middlewares"
	"github.com/kolade-dev/pagetutor/internal/models"
	"github.com/kolade-dev/pagetutor/internal/services"
)

type QuizHandler struct {
	quizzes *services.QuizService
}

func NewQuizHandler(quizzes *services.QuizService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

type generateQuizRequest struct {
	DocumentID string            `json:"document_id"`
	Config     models.QuizConfig `json:"config"`
}

func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req generateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "document_id required", http.StatusBadRequest)
		return
	}

	quiz, err := h.quizzes.Generate(r.Context(), userID, req.DocumentID, req.Config)
	if err != nil {
		log.Warn().Err(err).Str("document_id", req.DocumentID).Msg("quiz generation failed")
		switch {
		case errors.Is(err, services.ErrDocumentNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNoQuizContent), errors.Is(err, services.ErrDocumentNotReady):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrInvalidConfig):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "quiz generation failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quiz)
}

type evaluateQuizRequest struct {
	QuizID    string         `json:"quiz_id"`
	Answers   map[int]string `json:"answers"`
	TimeTaken int            `json:"time_taken"`
}

func (h *QuizHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req evaluateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.QuizID == "" {
		http.Error(w, "quiz_id required", http.StatusBadRequest)
		return
	}

	results, err := h.quizzes.Evaluate(r.Context(), userID, req.QuizID, req.Answers, req.TimeTaken)
	if err != nil {
		log.Warn().Err(err).Str("quiz_id", req.QuizID).Msg("quiz evaluation failed")
		if errors.Is(err, services.ErrQuizNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "quiz evaluation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
