package impl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type requestLogServiceImpl struct {
	db *gorm.DB
}

// NewRequestLogService creates the AI request telemetry store.
func NewRequestLogService(db *gorm.DB) services.RequestLogService {
	return &requestLogServiceImpl{db: db}
}

// Record inserts a telemetry row. Failures are logged and swallowed so
// telemetry can never fail a user-facing request.
func (s *requestLogServiceImpl) Record(ctx context.Context, entry *models.AIRequestLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Printf("failed to record AI request log: %v", err)
	}
}

func (s *requestLogServiceImpl) Recent(ctx context.Context, gameID string, limit int) ([]models.AIRequestLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.AIRequestLog{})
	if gameID != "" {
		query = query.Where("game_id = ?", gameID)
	}

	var entries []models.AIRequestLog
	if err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	return entries, nil
}
