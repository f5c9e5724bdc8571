package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/chunker"
	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type indexServiceImpl struct {
	db        *gorm.DB
	chunker   *chunker.Chunker
	embedding services.EmbeddingService
	vectors   services.VectorStore
	cache     services.CacheService

	// semaphore caps concurrent indexing jobs across all documents.
	semaphore chan struct{}

	// docLocks serializes work per document so two uploads of the same
	// rulebook never interleave their writes.
	docLocks   map[string]*sync.Mutex
	docLocksMu sync.Mutex
}

// NewIndexService creates the document indexing pipeline.
func NewIndexService(db *gorm.DB, ch *chunker.Chunker, embedding services.EmbeddingService, vectors services.VectorStore, cache services.CacheService, maxWorkers int) services.IndexService {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &indexServiceImpl{
		db:        db,
		chunker:   ch,
		embedding: embedding,
		vectors:   vectors,
		cache:     cache,
		semaphore: make(chan struct{}, maxWorkers),
		docLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *indexServiceImpl) lockFor(documentID string) *sync.Mutex {
	s.docLocksMu.Lock()
	defer s.docLocksMu.Unlock()
	mu, ok := s.docLocks[documentID]
	if !ok {
		mu = &sync.Mutex{}
		s.docLocks[documentID] = mu
	}
	return mu
}

// IndexDocument chunks, embeds and upserts one document's extracted text.
// Re-runs delete the document's previous points before writing, so the index
// always mirrors the latest text.
func (s *indexServiceImpl) IndexDocument(ctx context.Context, documentID string) (*models.IngestResponse, error) {
	var pdf models.PdfDocument
	if err := s.db.WithContext(ctx).Where("id = ?", documentID).First(&pdf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrPdfNotFound
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if pdf.ProcessingStatus != models.ProcessingStatusCompleted || pdf.ExtractedText == "" {
		return nil, services.ErrTextExtractionRequired
	}

	mu := s.lockFor(documentID)
	mu.Lock()
	defer mu.Unlock()

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vdoc, fresh, err := s.prepareVectorDocument(ctx, &pdf)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Prepare(pdf.ExtractedText)
	if len(chunks) == 0 {
		s.markFailed(ctx, vdoc, services.ErrChunkingFailed.Error())
		return nil, services.ErrChunkingFailed
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		s.markFailed(ctx, vdoc, err.Error())
		return nil, fmt.Errorf("%w: %v", services.ErrEmbeddingFailed, err)
	}

	now := time.Now().UTC()
	points := make([]services.VectorPoint, len(chunks))
	for i, ch := range chunks {
		points[i] = services.VectorPoint{
			GameID:     pdf.GameID,
			DocumentID: pdf.ID,
			ChunkIndex: ch.Index,
			Text:       ch.Text,
			Page:       ch.Page,
			CharStart:  ch.CharStart,
			CharEnd:    ch.CharEnd,
			Vector:     vectors[i],
			IndexedAt:  now,
		}
	}

	// Re-indexing drops the document's existing points first. Deterministic
	// IDs overwrite matching chunks, but shrinking text would otherwise
	// leave surplus points from the previous run live in the store.
	if !fresh {
		if result := s.vectors.DeleteByDocument(ctx, pdf.GameID, pdf.ID); !result.Success {
			s.markFailed(ctx, vdoc, result.Error)
			return nil, fmt.Errorf("%w: %s", services.ErrVectorIndexingFailed, result.Error)
		}
	}

	if result := s.vectors.Upsert(ctx, points); !result.Success {
		s.markFailed(ctx, vdoc, result.Error)
		return nil, fmt.Errorf("%w: %s", services.ErrVectorIndexingFailed, result.Error)
	}

	totalChars := 0
	for _, ch := range chunks {
		totalChars += len(ch.Text)
	}

	updates := map[string]any{
		"chunk_count":          len(chunks),
		"total_characters":     totalChars,
		"embedding_model":      s.embedding.ModelName(),
		"embedding_dimensions": s.embedding.Dimensions(),
		"indexing_status":      models.ProcessingStatusCompleted,
		"indexing_error":       nil,
		"indexed_at":           now,
		"updated_at":           now,
	}
	if err := s.db.WithContext(ctx).Model(&models.VectorDocument{}).Where("id = ?", vdoc.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record indexing result: %w", err)
	}

	// New content invalidates every cached answer for the game.
	if _, err := s.cache.InvalidateGame(ctx, pdf.GameID); err != nil {
		log.Printf("cache invalidation failed for game %s: %v", pdf.GameID, err)
	}

	return &models.IngestResponse{
		Success:          true,
		VectorDocumentID: vdoc.ID,
		ChunkCount:       len(chunks),
		IndexedAt:        &now,
	}, nil
}

// prepareVectorDocument finds or creates the tracking row and flips it to
// processing. The second return reports whether the row was newly created,
// which decides if stale points must be deleted before the upsert.
func (s *indexServiceImpl) prepareVectorDocument(ctx context.Context, pdf *models.PdfDocument) (*models.VectorDocument, bool, error) {
	now := time.Now().UTC()

	var vdoc models.VectorDocument
	err := s.db.WithContext(ctx).Where("document_id = ?", pdf.ID).First(&vdoc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		vdoc = models.VectorDocument{
			ID:             uuid.New().String(),
			GameID:         pdf.GameID,
			DocumentID:     pdf.ID,
			IndexingStatus: models.ProcessingStatusProcessing,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.db.WithContext(ctx).Create(&vdoc).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create vector document: %w", err)
		}
		return &vdoc, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load vector document: %w", err)
	}

	updates := map[string]any{
		"indexing_status": models.ProcessingStatusProcessing,
		"indexing_error":  nil,
		"updated_at":      now,
	}
	if err := s.db.WithContext(ctx).Model(&models.VectorDocument{}).Where("id = ?", vdoc.ID).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update vector document: %w", err)
	}
	return &vdoc, false, nil
}

func (s *indexServiceImpl) markFailed(ctx context.Context, vdoc *models.VectorDocument, reason string) {
	updates := map[string]any{
		"indexing_status": models.ProcessingStatusFailed,
		"indexing_error":  reason,
		"updated_at":      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Model(&models.VectorDocument{}).Where("id = ?", vdoc.ID).Updates(updates).Error; err != nil {
		log.Printf("failed to mark indexing failure for %s: %v", vdoc.DocumentID, err)
	}
}

func (s *indexServiceImpl) Status(ctx context.Context, documentID string) (*models.VectorDocument, error) {
	var vdoc models.VectorDocument
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&vdoc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrPdfNotFound
		}
		return nil, fmt.Errorf("failed to load vector document: %w", err)
	}
	return &vdoc, nil
}

// RemoveDocument deletes a document's points and tracking row, then drops
// the game's cached answers.
func (s *indexServiceImpl) RemoveDocument(ctx context.Context, documentID string) error {
	mu := s.lockFor(documentID)
	mu.Lock()
	defer mu.Unlock()

	var vdoc models.VectorDocument
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&vdoc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrPdfNotFound
		}
		return fmt.Errorf("failed to load vector document: %w", err)
	}

	if result := s.vectors.DeleteByDocument(ctx, vdoc.GameID, documentID); !result.Success {
		return fmt.Errorf("%w: %s", services.ErrVectorIndexingFailed, result.Error)
	}

	if err := s.db.WithContext(ctx).Where("id = ?", vdoc.ID).Delete(&models.VectorDocument{}).Error; err != nil {
		return fmt.Errorf("failed to delete vector document: %w", err)
	}

	if _, err := s.cache.InvalidateGame(ctx, vdoc.GameID); err != nil {
		log.Printf("cache invalidation failed for game %s: %v", vdoc.GameID, err)
	}
	return nil
}
