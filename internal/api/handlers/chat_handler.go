package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/api/middlewares"
	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/core/rag"
	"github.com/kolade-dev/pagetutor/internal/models"
)

type ChatHandler struct {
	dbclient core.DbClient
	streamer *rag.AnswerStreamer
}

func NewChatHandler(db core.DbClient, streamer *rag.AnswerStreamer) *ChatHandler {
	return &ChatHandler{dbclient: db, streamer: streamer}
}

type chatRequest struct {
	ChatID     *string `json:"chat_id"`
	DocumentID *string `json:"document_id"`
	Message    string  `json:"message"`
}

// Query streams the answer as newline-delimited JSON frames. A document_id
// grounds the answer in that document; without one the chat is ungrounded.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	if req.ChatID != nil {
		chat, err := h.dbclient.GetChatByID(ctx, *req.ChatID)
		if err != nil || chat == nil || chat.UserID != userID {
			http.Error(w, "chat not found", http.StatusNotFound)
			return
		}
	}

	if req.DocumentID != nil {
		doc, err := h.dbclient.GetDocumentByID(ctx, *req.DocumentID)
		if err != nil || doc == nil || doc.UserID != userID {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		if doc.Status != models.StatusReady && doc.Status != models.StatusPartial {
			// No queryable chunks yet; answer ungrounded rather than fail.
			log.Debug().Str("document_id", doc.ID).Str("status", doc.Status).Msg("document not queryable, answering ungrounded")
			req.DocumentID = nil
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	frames := h.streamer.Answer(ctx, rag.AnswerRequest{
		UserID:     userID,
		ChatID:     req.ChatID,
		DocumentID: req.DocumentID,
		Message:    req.Message,
	})

	enc := json.NewEncoder(w)
	for frame := range frames {
		if err := enc.Encode(frame); err != nil {
			log.Warn().Err(err).Msg("client went away mid-stream")
			return
		}
		flusher.Flush()
	}
}

// ListChats returns the caller's conversations, newest first.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chats, err := h.dbclient.ListChatsByUser(r.Context(), userID, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chats)
}

// GetMessages returns one conversation's history in chronological order.
// Foreign chats read as not found.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	chatID := chi.URLParam(r, "id")
	chat, err := h.dbclient.GetChatByID(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if chat == nil || chat.UserID != userID {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	messages, err := h.dbclient.ListChatMessages(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
