package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolade-dev/pagetutor/internal/models"
)

func TestRetrieveScopesSearchToDocument(t *testing.T) {
	db := &searchDB{results: []models.RetrievedChunk{
		{ID: "c1", DocumentID: "doc-1", Page: 2, Text: "nearest", Distance: 0.1},
	}}
	r := NewRetriever(db, &stubEmbedder{vec: []float32{1, 2, 3, 4}}, 4)

	chunks, err := r.Retrieve(context.Background(), "doc-1", "what is inertia", 3, 7)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)

	assert.Equal(t, "doc-1", db.lastDocID)
	assert.Equal(t, []float32{1, 2, 3, 4}, db.lastVec)
	assert.Equal(t, 3, db.lastK)
	assert.Equal(t, 7, db.lastProbes)
}

func TestRetrieveDefaultsKAndProbes(t *testing.T) {
	db := &searchDB{}
	r := NewRetriever(db, &stubEmbedder{vec: make([]float32, 4)}, 4)

	_, err := r.Retrieve(context.Background(), "doc-1", "q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, db.lastK)
	assert.Equal(t, DefaultProbes, db.lastProbes)
}

func TestRetrieveEmbeddingFailureYieldsNoGrounding(t *testing.T) {
	db := &searchDB{}
	r := NewRetriever(db, &stubEmbedder{err: errors.New("quota exceeded")}, 4)

	chunks, err := r.Retrieve(context.Background(), "doc-1", "q", 5, 10)
	require.NoError(t, err, "an embedding failure is not a retrieval error")
	assert.Empty(t, chunks)
	assert.Empty(t, db.lastDocID, "search must not run without a query vector")
}

func TestRetrieveDimensionMismatchIsAnError(t *testing.T) {
	db := &searchDB{}
	r := NewRetriever(db, &stubEmbedder{vec: make([]float32, 3)}, 4)

	_, err := r.Retrieve(context.Background(), "doc-1", "q", 5, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestRetrieveSearchErrorPropagates(t *testing.T) {
	db := &searchDB{searchErr: errors.New("relation does not exist")}
	r := NewRetriever(db, &stubEmbedder{vec: make([]float32, 4)}, 4)

	_, err := r.Retrieve(context.Background(), "doc-1", "q", 5, 10)
	require.Error(t, err)
	assert.ErrorContains(t, err, "similarity search")
}
