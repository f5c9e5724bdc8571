package impl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/chunker"
	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type indexFixture struct {
	db        *gorm.DB
	cache     services.CacheService
	embedding *fakeEmbedding
	vectors   *fakeVectorStore
	index     services.IndexService
}

func setupIndexService(t *testing.T) *indexFixture {
	t.Helper()

	db := setupTestDB(t)
	client, _ := setupTestRedis(t)
	cache := NewCacheService(client)
	embedding := &fakeEmbedding{dim: 4}
	vectors := &fakeVectorStore{}
	index := NewIndexService(db, chunker.New(), embedding, vectors, cache, 2)
	return &indexFixture{db: db, cache: cache, embedding: embedding, vectors: vectors, index: index}
}

func seedPdf(t *testing.T, db *gorm.DB, id, gameID string, status models.ProcessingStatus, text string) {
	t.Helper()

	pdf := models.PdfDocument{
		ID:               id,
		GameID:           gameID,
		FileName:         "rules.pdf",
		UploadedBy:       "editor@example.com",
		UploadedAt:       time.Now().UTC(),
		ProcessingStatus: status,
		ExtractedText:    text,
		CharacterCount:   len(text),
	}
	require.NoError(t, db.Create(&pdf).Error)
}

func TestIndexDocumentHappyPath(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	text := strings.Repeat("Players take turns placing tiles on the board. ", 40)
	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, text)

	resp, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Greater(t, resp.ChunkCount, 1)
	require.NotNil(t, resp.IndexedAt)

	require.Len(t, f.vectors.upserts, 1)
	points := f.vectors.upserts[0]
	assert.Len(t, points, resp.ChunkCount)
	for i, point := range points {
		assert.Equal(t, "catan", point.GameID)
		assert.Equal(t, "doc-1", point.DocumentID)
		assert.Equal(t, i, point.ChunkIndex)
	}

	status, err := f.index.Status(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusCompleted, status.IndexingStatus)
	assert.Equal(t, resp.ChunkCount, status.ChunkCount)
	assert.Equal(t, "fake-embedding", status.EmbeddingModel)
	assert.Equal(t, 4, status.EmbeddingDimensions)
	assert.Nil(t, status.IndexingError)
}

func TestIndexDocumentIsIdempotent(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	text := strings.Repeat("Roll the dice and move your pawn. ", 40)
	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, text)

	first, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)
	second, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)

	// Same tracking row, same chunk count, and identical point identities
	// so the second run overwrites instead of duplicating.
	assert.Equal(t, first.VectorDocumentID, second.VectorDocumentID)
	assert.Equal(t, first.ChunkCount, second.ChunkCount)

	var rows int64
	require.NoError(t, f.db.Model(&models.VectorDocument{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	require.Len(t, f.vectors.upserts, 2)
	for i := range f.vectors.upserts[0] {
		a, b := f.vectors.upserts[0][i], f.vectors.upserts[1][i]
		assert.Equal(t, PointID(a.DocumentID, a.ChunkIndex), PointID(b.DocumentID, b.ChunkIndex))
	}
}

func TestIndexDocumentNotFound(t *testing.T) {
	f := setupIndexService(t)

	_, err := f.index.IndexDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, services.ErrPdfNotFound)
}

func TestIndexDocumentRequiresExtractedText(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	seedPdf(t, f.db, "doc-pending", "catan", models.ProcessingStatusProcessing, "")
	_, err := f.index.IndexDocument(ctx, "doc-pending")
	assert.ErrorIs(t, err, services.ErrTextExtractionRequired)

	seedPdf(t, f.db, "doc-empty", "catan", models.ProcessingStatusCompleted, "")
	_, err = f.index.IndexDocument(ctx, "doc-empty")
	assert.ErrorIs(t, err, services.ErrTextExtractionRequired)
}

func TestIndexDocumentEmbeddingFailureMarksRow(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, "Some rulebook text long enough to chunk.")
	f.embedding.fail = true

	_, err := f.index.IndexDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, services.ErrEmbeddingFailed)

	status, err := f.index.Status(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusFailed, status.IndexingStatus)
	require.NotNil(t, status.IndexingError)
	assert.NotEmpty(t, *status.IndexingError)
}

func TestIndexDocumentUpsertFailureMarksRow(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, "Some rulebook text long enough to chunk.")
	f.vectors.failUpsert = true

	_, err := f.index.IndexDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, services.ErrVectorIndexingFailed)

	status, err := f.index.Status(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusFailed, status.IndexingStatus)
}

func TestReindexShrinkingTextDropsStalePoints(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	long := strings.Repeat("Roll the dice and move your pawn. ", 40)
	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, long)

	first, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 1)
	assert.Empty(t, f.vectors.deletes)

	require.NoError(t, f.db.Model(&models.PdfDocument{}).Where("id = ?", "doc-1").
		Update("extracted_text", "Roll the dice.").Error)

	second, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.ChunkCount)

	// The old points are removed before the new, smaller set is written,
	// so no chunk beyond the new count survives the re-index.
	assert.Equal(t, []string{"doc-1"}, f.vectors.deletes)
	require.Len(t, f.vectors.upserts, 2)
	assert.Len(t, f.vectors.upserts[1], 1)
}

func TestIndexDocumentInvalidatesGameCache(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	f.cache.SetString(ctx, QACacheKey("catan", "old question"), "stale", time.Minute)
	f.cache.SetString(ctx, QACacheKey("azul", "other game"), "keep", time.Minute)

	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, "New rules text that changes answers.")
	_, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)

	_, ok := f.cache.GetString(ctx, QACacheKey("catan", "old question"))
	assert.False(t, ok)
	_, ok = f.cache.GetString(ctx, QACacheKey("azul", "other game"))
	assert.True(t, ok)
}

func TestRemoveDocument(t *testing.T) {
	f := setupIndexService(t)
	ctx := context.Background()

	seedPdf(t, f.db, "doc-1", "catan", models.ProcessingStatusCompleted, "Rules text to index and then remove.")
	_, err := f.index.IndexDocument(ctx, "doc-1")
	require.NoError(t, err)

	f.cache.SetString(ctx, QACacheKey("catan", "question"), "stale", time.Minute)

	require.NoError(t, f.index.RemoveDocument(ctx, "doc-1"))
	assert.Equal(t, []string{"doc-1"}, f.vectors.deletes)

	_, err = f.index.Status(ctx, "doc-1")
	assert.ErrorIs(t, err, services.ErrPdfNotFound)

	_, ok := f.cache.GetString(ctx, QACacheKey("catan", "question"))
	assert.False(t, ok)
}

func TestRemoveDocumentNotIndexed(t *testing.T) {
	f := setupIndexService(t)

	err := f.index.RemoveDocument(context.Background(), "never-indexed")
	assert.ErrorIs(t, err, services.ErrPdfNotFound)
}
