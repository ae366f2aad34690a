package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/api/middlewares"
	"github.com/kolade-dev/pagetutor/internal/config"
	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/core/ingest"
	"github.com/kolade-dev/pagetutor/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

type DocumentHandler struct {
	dbclient     core.DbClient
	objectclient core.ObjectClient
	ingestor     *ingest.DocumentIngestor
	cfg          *config.Config
}

func NewDocumentHandler(dbclient core.DbClient, objectclient core.ObjectClient, ing *ingest.DocumentIngestor, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, objectclient: objectclient, ingestor: ing, cfg: cfg}
}

// UploadDocument stores the file in S3, records the document as pending and
// hands it to the background ingestor.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "file too large or malformed form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	cleanFilename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(cleanFilename), ".pdf") {
		http.Error(w, "only PDF files are accepted", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	docID := uuid.NewString()
	s3Key := fmt.Sprintf("%s/%s/%s", userID, docID, cleanFilename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, s3Key, file, contentType)
	if err != nil {
		log.Error().Err(err).Str("key", s3Key).Msg("object upload failed")
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:          docID,
		UserID:      userID,
		FileName:    cleanFilename,
		StorageURL:  url,
		ContentType: contentType,
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := h.dbclient.CreateDocument(uploadCtx, doc); err != nil {
		log.Error().Err(err).Str("document_id", docID).Msg("document insert failed")
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	// Queue-full is not fatal: the document is stored as pending and the
	// reprocess endpoint can queue it once load drops.
	queued := h.ingestor.Enqueue(doc.ID)
	if !queued {
		log.Warn().Str("document_id", doc.ID).Msg("ingestion queue full, document left pending")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"document": doc,
		"queued":   queued,
	})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	documents, err := h.dbclient.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetStatus reports where a document is in its ingestion lifecycle.
func (h *DocumentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     doc.Status,
		"page_count": doc.PageCount,
	})
}

// Reprocess rearms a failed or partial document and queues it again. A
// pending document is also accepted: that is the retry path for an upload
// whose enqueue hit a full queue.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	switch doc.Status {
	case models.StatusFailed, models.StatusPartial, models.StatusPending:
	default:
		http.Error(w, "document is not in a reprocessable state", http.StatusConflict)
		return
	}

	if err := h.dbclient.ResetDocumentToPending(r.Context(), doc.ID); err != nil {
		http.Error(w, "could not reset document", http.StatusConflict)
		return
	}

	if !h.ingestor.Enqueue(doc.ID) {
		http.Error(w, "ingestion queue is full, retry later", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": models.StatusPending})
}

// DeleteDocument removes the document and its derived data, then the stored
// file. The S3 delete is best-effort: an orphaned object costs storage, a
// dangling document row costs correctness.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if doc.Status == models.StatusProcessing {
		http.Error(w, "document is being processed", http.StatusConflict)
		return
	}

	if err := h.dbclient.DeleteDocument(r.Context(), doc.ID); err != nil {
		http.Error(w, "could not delete document", http.StatusInternalServerError)
		return
	}

	s3Key := fmt.Sprintf("%s/%s/%s", doc.UserID, doc.ID, doc.FileName)
	if err := h.objectclient.DeleteFile(r.Context(), h.cfg.BucketName, s3Key); err != nil {
		log.Warn().Err(err).Str("key", s3Key).Msg("deleting stored file failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedDocument loads the {id} document and enforces ownership. Foreign
// documents read as not found so IDs are not probeable.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	docID := chi.URLParam(r, "id")
	doc, err := h.dbclient.GetDocumentByID(r.Context(), docID)
	if err != nil || doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}
