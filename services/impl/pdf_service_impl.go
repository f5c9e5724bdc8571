package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type pdfServiceImpl struct {
	db         *gorm.DB
	extraction services.ExtractionService
	games      services.GameService
}

// NewPdfService creates the rulebook upload pipeline.
func NewPdfService(db *gorm.DB, extraction services.ExtractionService, games services.GameService) services.PdfService {
	return &pdfServiceImpl{db: db, extraction: extraction, games: games}
}

// Upload stores the document row, runs text extraction and records the
// outcome. The caller decides when to trigger indexing.
func (s *pdfServiceImpl) Upload(ctx context.Context, userID, gameID, fileName string, content []byte) (*models.PdfDocument, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	if _, err := s.games.Ensure(ctx, gameID, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pdf := models.PdfDocument{
		ID:               uuid.New().String(),
		GameID:           gameID,
		FileName:         fileName,
		FileSizeBytes:    int64(len(content)),
		UploadedBy:       userID,
		UploadedAt:       now,
		ProcessingStatus: models.ProcessingStatusProcessing,
	}
	if err := s.db.WithContext(ctx).Create(&pdf).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	extraction, err := s.extraction.ExtractText(ctx, fileName, content)
	if err != nil {
		reason := err.Error()
		updates := map[string]any{
			"processing_status": models.ProcessingStatusFailed,
			"extraction_error":  reason,
		}
		if dbErr := s.db.WithContext(ctx).Model(&models.PdfDocument{}).Where("id = ?", pdf.ID).Updates(updates).Error; dbErr != nil {
			log.Printf("failed to record extraction failure for %s: %v", pdf.ID, dbErr)
		}
		pdf.ProcessingStatus = models.ProcessingStatusFailed
		pdf.ExtractionError = &reason
		return &pdf, nil
	}

	updates := map[string]any{
		"processing_status": models.ProcessingStatusCompleted,
		"extracted_text":    extraction.Text,
		"page_count":        extraction.PageCount,
		"character_count":   len(extraction.Text),
	}
	if err := s.db.WithContext(ctx).Model(&models.PdfDocument{}).Where("id = ?", pdf.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to record extraction result: %w", err)
	}

	pdf.ProcessingStatus = models.ProcessingStatusCompleted
	pdf.ExtractedText = extraction.Text
	pdf.PageCount = extraction.PageCount
	pdf.CharacterCount = len(extraction.Text)
	return &pdf, nil
}

func (s *pdfServiceImpl) Get(ctx context.Context, documentID string) (*models.PdfDocument, error) {
	var pdf models.PdfDocument
	if err := s.db.WithContext(ctx).Where("id = ?", documentID).First(&pdf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrPdfNotFound
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &pdf, nil
}

func (s *pdfServiceImpl) ListByGame(ctx context.Context, gameID string) ([]models.PdfDocument, error) {
	var pdfs []models.PdfDocument
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Order("uploaded_at DESC").Find(&pdfs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return pdfs, nil
}
