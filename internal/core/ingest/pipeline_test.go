package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/models"
)

const testStorageURL = "https://test-bucket.s3.us-east-2.amazonaws.com/u1/d1/file.pdf"

func pendingDoc(id string) *models.Document {
	return &models.Document{
		ID:         id,
		UserID:     "u1",
		FileName:   "file.pdf",
		StorageURL: testStorageURL,
		Status:     models.StatusPending,
	}
}

func newTestIngestor(db *fakeDB, obj core.ObjectClient, ext core.PageExtractor, emb core.EmbeddingProvider) *DocumentIngestor {
	if emb == nil {
		emb = &fakeEmbedder{}
	}
	return NewDocumentIngestor(db, obj, emb, ext, Config{MaxLen: 100, Overlap: 10})
}

func TestIngestOnlyOneConcurrentTriggerWins(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{"u1/d1/file.pdf": []byte("pdf bytes")}}
	ext := &fakeExtractor{pages: []core.PageText{{Number: 1, Text: "some page text"}}}
	ing := newTestIngestor(db, obj, ext, nil)

	const triggers = 5
	results := make([]Result, triggers)
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := ing.Ingest(context.Background(), "d1")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if !res.Skipped {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one trigger claims the document")
	require.Len(t, db.finished, 1)
	assert.Equal(t, models.StatusReady, db.finished[0].status)
}

func TestIngestSkipsNonPendingDocument(t *testing.T) {
	db := newFakeDB()
	doc := pendingDoc("d1")
	doc.Status = models.StatusReady
	db.documents["d1"] = doc
	ing := newTestIngestor(db, &fakeObject{}, &fakeExtractor{}, nil)

	res, err := ing.Ingest(context.Background(), "d1")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, db.finished)
}

func TestIngestDownloadFailureMarksFailed(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{err: errors.New("access denied")}
	ing := newTestIngestor(db, obj, &fakeExtractor{}, nil)

	res, err := ing.Ingest(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	require.Len(t, db.finished, 1)
	assert.Equal(t, models.StatusFailed, db.finished[0].status)
	assert.Nil(t, db.finished[0].pageCount, "page count stays unknown on failure")
}

func TestIngestEmptyDownloadMarksFailed(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{}}
	ing := newTestIngestor(db, obj, &fakeExtractor{}, nil)

	res, err := ing.Ingest(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestIngestExtractionFailureMarksFailed(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{"u1/d1/file.pdf": []byte("not a pdf")}}
	ext := &fakeExtractor{err: ErrNoText}
	ing := newTestIngestor(db, obj, ext, nil)

	res, err := ing.Ingest(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestIngestAllEmbeddingsFailedMarksFailed(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{"u1/d1/file.pdf": []byte("pdf bytes")}}
	ext := &fakeExtractor{pages: []core.PageText{{Number: 1, Text: "only page"}}}
	emb := &fakeEmbedder{failOn: map[string]bool{"only page": true}}
	ing := newTestIngestor(db, obj, ext, emb)

	res, err := ing.Ingest(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, 0, res.Chunks)
}

func TestIngestMajorityFailuresMarkPartial(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{"u1/d1/file.pdf": []byte("pdf bytes")}}

	// Ten single-chunk pages; embedding fails for six of them.
	pages := make([]core.PageText, 10)
	failOn := make(map[string]bool)
	for i := range pages {
		text := fmt.Sprintf("page %d text", i+1)
		pages[i] = core.PageText{Number: i + 1, Text: text}
		if i < 6 {
			failOn[text] = true
		}
	}
	ext := &fakeExtractor{pages: pages}
	ing := newTestIngestor(db, obj, ext, &fakeEmbedder{failOn: failOn})

	res, err := ing.Ingest(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, res.Status)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 6, res.Errors)

	require.Len(t, db.finished, 1)
	require.NotNil(t, db.finished[0].pageCount)
	assert.Equal(t, 10, *db.finished[0].pageCount)
}

func TestIngestDeletesPriorChunksBeforeInsert(t *testing.T) {
	db := newFakeDB()
	db.documents["d1"] = pendingDoc("d1")
	obj := &fakeObject{files: map[string][]byte{"u1/d1/file.pdf": []byte("pdf bytes")}}
	ext := &fakeExtractor{pages: []core.PageText{{Number: 1, Text: "fresh text"}}}
	ing := newTestIngestor(db, obj, ext, nil)

	_, err := ing.Ingest(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, db.deleted)
	require.Len(t, db.inserted, 1)
	assert.Equal(t, "fresh text", db.inserted[0].Text)
}

func TestEnqueueReportsBackpressureInsteadOfBlocking(t *testing.T) {
	ing := newTestIngestor(newFakeDB(), &fakeObject{}, &fakeExtractor{}, nil)

	// No workers are running, so the queue fills to capacity and the next
	// enqueue must refuse rather than block.
	for n := 0; n < cap(ing.jobs); n++ {
		require.True(t, ing.Enqueue("d1"))
	}
	assert.False(t, ing.Enqueue("d1"))
}

func TestParseS3URL(t *testing.T) {
	bucket, key := parseS3URL(testStorageURL)
	assert.Equal(t, "test-bucket", bucket)
	assert.Equal(t, "u1/d1/file.pdf", key)
}
