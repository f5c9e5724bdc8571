package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai-api/services"
)

// maxUploadBytes caps rulebook uploads at 50 MB.
const maxUploadBytes = 50 << 20

// IngestHandlers exposes rulebook upload and indexing endpoints.
type IngestHandlers struct {
	pdfService   services.PdfService
	indexService services.IndexService
	gameService  services.GameService
}

func NewIngestHandlers(pdfService services.PdfService, indexService services.IndexService, gameService services.GameService) *IngestHandlers {
	return &IngestHandlers{
		pdfService:   pdfService,
		indexService: indexService,
		gameService:  gameService,
	}
}

// UploadPdf handles POST /ingest/pdf. On successful extraction, indexing is
// started in the background and its state is tracked per document.
func (h *IngestHandlers) UploadPdf(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	gameID := c.PostForm("gameId")
	if gameID == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "gameId is required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		errorJSON(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds the upload limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to open uploaded file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "failed to read uploaded file")
		return
	}
	if len(content) > maxUploadBytes {
		errorJSON(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds the upload limit")
		return
	}

	pdf, err := h.pdfService.Upload(c.Request.Context(), uid, gameID, fileHeader.Filename, content)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to store document")
		return
	}

	// Indexing runs detached from the request; its progress is visible via
	// the status endpoint.
	if pdf.ExtractionError == nil {
		documentID := pdf.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := h.indexService.IndexDocument(ctx, documentID); err != nil {
				log.Printf("background indexing failed for %s: %v", documentID, err)
			}
		}()
	}

	c.JSON(http.StatusOK, pdf)
}

// ListPdfs handles GET /games/:gameId/pdfs.
func (h *IngestHandlers) ListPdfs(c *gin.Context) {
	pdfs, err := h.pdfService.ListByGame(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to list documents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": pdfs})
}

// Reindex handles POST /ingest/pdf/:documentId/index.
func (h *IngestHandlers) Reindex(c *gin.Context) {
	response, err := h.indexService.IndexDocument(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		h.writeIndexError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// IndexStatus handles GET /ingest/pdf/:documentId/status.
func (h *IngestHandlers) IndexStatus(c *gin.Context) {
	status, err := h.indexService.Status(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		h.writeIndexError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RemoveDocument handles DELETE /ingest/pdf/:documentId.
func (h *IngestHandlers) RemoveDocument(c *gin.Context) {
	if err := h.indexService.RemoveDocument(c.Request.Context(), c.Param("documentId")); err != nil {
		h.writeIndexError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListGames handles GET /games.
func (h *IngestHandlers) ListGames(c *gin.Context) {
	games, err := h.gameService.List(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to list games")
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (h *IngestHandlers) writeIndexError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPdfNotFound):
		errorJSON(c, http.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, services.ErrTextExtractionRequired):
		errorJSON(c, http.StatusConflict, "EXTRACTION_PENDING", "text extraction has not completed for this document")
	case errors.Is(err, services.ErrChunkingFailed):
		errorJSON(c, http.StatusUnprocessableEntity, "NO_CONTENT", "document produced no indexable text")
	case errors.Is(err, services.ErrEmbeddingFailed):
		errorJSON(c, http.StatusBadGateway, "EMBEDDING_FAILED", "failed to embed document")
	default:
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "indexing failed")
	}
}
