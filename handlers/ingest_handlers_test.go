package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type fakePdfService struct {
	uploaded *models.PdfDocument
	err      error
}

func (f *fakePdfService) Upload(ctx context.Context, userID, gameID, fileName string, content []byte) (*models.PdfDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.uploaded, nil
}

func (f *fakePdfService) Get(ctx context.Context, documentID string) (*models.PdfDocument, error) {
	return f.uploaded, nil
}

func (f *fakePdfService) ListByGame(ctx context.Context, gameID string) ([]models.PdfDocument, error) {
	if f.uploaded == nil {
		return nil, nil
	}
	return []models.PdfDocument{*f.uploaded}, nil
}

type fakeIndexService struct {
	mu       sync.Mutex
	indexed  []string
	removed  []string
	response *models.IngestResponse
	status   *models.VectorDocument
	err      error
}

func (f *fakeIndexService) IndexDocument(ctx context.Context, documentID string) (*models.IngestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.indexed = append(f.indexed, documentID)
	return f.response, nil
}

func (f *fakeIndexService) Status(ctx context.Context, documentID string) (*models.VectorDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeIndexService) RemoveDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, documentID)
	return nil
}

func (f *fakeIndexService) indexedDocs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexed...)
}

type fakeGameService struct {
	games []models.Game
}

func (f *fakeGameService) Ensure(ctx context.Context, id, name string) (*models.Game, error) {
	return &models.Game{ID: id, Name: name}, nil
}

func (f *fakeGameService) List(ctx context.Context) ([]models.Game, error) {
	return f.games, nil
}

type ingestTestEnv struct {
	pdfs   *fakePdfService
	index  *fakeIndexService
	games  *fakeGameService
	router *gin.Engine
}

func setupIngestRouter(t *testing.T) *ingestTestEnv {
	t.Helper()

	env := &ingestTestEnv{
		pdfs: &fakePdfService{uploaded: &models.PdfDocument{
			ID:               "doc-1",
			GameID:           "catan",
			FileName:         "rules.pdf",
			ProcessingStatus: models.ProcessingStatusCompleted,
		}},
		index: &fakeIndexService{
			response: &models.IngestResponse{Success: true, VectorDocumentID: "vec-1", ChunkCount: 4},
			status:   &models.VectorDocument{DocumentID: "doc-1", IndexingStatus: models.ProcessingStatusCompleted},
		},
		games: &fakeGameService{games: []models.Game{{ID: "catan", Name: "Catan"}}},
	}

	handlers := NewIngestHandlers(env.pdfs, env.index, env.games)

	router := gin.New()
	router.Use(CorrelationMiddleware())
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "editor-1")
		c.Set("user_role", "editor")
	})
	router.POST("/ingest/pdf", handlers.UploadPdf)
	router.POST("/ingest/pdf/:documentId/index", handlers.Reindex)
	router.GET("/ingest/pdf/:documentId/status", handlers.IndexStatus)
	router.DELETE("/ingest/pdf/:documentId", handlers.RemoveDocument)
	router.GET("/games", handlers.ListGames)
	router.GET("/games/:gameId/pdfs", handlers.ListPdfs)

	env.router = router
	return env
}

func multipartUpload(t *testing.T, gameID, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if gameID != "" {
		require.NoError(t, writer.WriteField("gameId", gameID))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUploadPdfStartsBackgroundIndexing(t *testing.T) {
	env := setupIngestRouter(t)

	body, contentType := multipartUpload(t, "catan", "rules.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest("POST", "/ingest/pdf", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PdfDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.ID)

	// Indexing is kicked off in the background.
	require.Eventually(t, func() bool {
		return len(env.index.indexedDocs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"doc-1"}, env.index.indexedDocs())
}

func TestUploadPdfSkipsIndexingOnExtractionFailure(t *testing.T) {
	env := setupIngestRouter(t)
	reason := "not a pdf"
	env.pdfs.uploaded.ProcessingStatus = models.ProcessingStatusFailed
	env.pdfs.uploaded.ExtractionError = &reason

	body, contentType := multipartUpload(t, "catan", "rules.pdf", []byte("junk"))
	req := httptest.NewRequest("POST", "/ingest/pdf", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, env.index.indexedDocs())
}

func TestUploadPdfMissingGameID(t *testing.T) {
	env := setupIngestRouter(t)

	body, contentType := multipartUpload(t, "", "rules.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest("POST", "/ingest/pdf", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadPdfMissingFile(t *testing.T) {
	env := setupIngestRouter(t)

	body, contentType := multipartUpload(t, "catan", "", nil)
	req := httptest.NewRequest("POST", "/ingest/pdf", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReindexHandler(t *testing.T) {
	env := setupIngestRouter(t)

	w := doJSON(env.router, "POST", "/ingest/pdf/doc-1/index", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.ChunkCount)
}

func TestReindexErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrPdfNotFound, http.StatusNotFound, "NOT_FOUND"},
		{services.ErrTextExtractionRequired, http.StatusConflict, "EXTRACTION_PENDING"},
		{services.ErrChunkingFailed, http.StatusUnprocessableEntity, "NO_CONTENT"},
		{services.ErrEmbeddingFailed, http.StatusBadGateway, "EMBEDDING_FAILED"},
		{services.ErrVectorIndexingFailed, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		env := setupIngestRouter(t)
		env.index.err = tc.err

		w := doJSON(env.router, "POST", "/ingest/pdf/doc-1/index", "")
		assert.Equal(t, tc.wantStatus, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.wantCode, body["code"])
	}
}

func TestIndexStatusHandler(t *testing.T) {
	env := setupIngestRouter(t)

	w := doJSON(env.router, "GET", "/ingest/pdf/doc-1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.VectorDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ProcessingStatusCompleted, resp.IndexingStatus)
}

func TestRemoveDocumentHandler(t *testing.T) {
	env := setupIngestRouter(t)

	w := doJSON(env.router, "DELETE", "/ingest/pdf/doc-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"doc-1"}, env.index.removed)
}

func TestListGamesHandler(t *testing.T) {
	env := setupIngestRouter(t)

	w := doJSON(env.router, "GET", "/games", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Catan")
}

func TestListPdfsHandler(t *testing.T) {
	env := setupIngestRouter(t)

	w := doJSON(env.router, "GET", "/games/catan/pdfs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rules.pdf")
}
