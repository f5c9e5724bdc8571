package impl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type feedbackServiceImpl struct {
	db *gorm.DB
}

// NewFeedbackService creates the answer feedback store.
func NewFeedbackService(db *gorm.DB) services.FeedbackService {
	return &feedbackServiceImpl{db: db}
}

// Submit upserts the caller's verdict for one answer. A nil outcome clears
// any existing verdict.
func (s *feedbackServiceImpl) Submit(ctx context.Context, userID string, req models.FeedbackRequest) error {
	if req.Outcome == nil {
		err := s.db.WithContext(ctx).
			Where("message_id = ? AND endpoint = ? AND user_id = ?", req.MessageID, req.Endpoint, userID).
			Delete(&models.AgentFeedback{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear feedback: %w", err)
		}
		return nil
	}

	outcome := *req.Outcome
	if outcome != models.FeedbackHelpful && outcome != models.FeedbackNotHelpful {
		return fmt.Errorf("invalid feedback outcome %q", outcome)
	}

	now := time.Now().UTC()
	var existing models.AgentFeedback
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND endpoint = ? AND user_id = ?", req.MessageID, req.Endpoint, userID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		feedback := models.AgentFeedback{
			ID:        uuid.New().String(),
			MessageID: req.MessageID,
			Endpoint:  req.Endpoint,
			UserID:    userID,
			GameID:    req.GameID,
			Outcome:   outcome,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&feedback).Error; err != nil {
			return fmt.Errorf("failed to save feedback: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up feedback: %w", err)
	}

	updates := map[string]any{"outcome": outcome, "updated_at": now}
	if err := s.db.WithContext(ctx).Model(&models.AgentFeedback{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	return nil
}

func (s *feedbackServiceImpl) Stats(ctx context.Context, filter models.FeedbackStatsFilter) (*models.FeedbackStatsResponse, error) {
	base := s.db.WithContext(ctx).Model(&models.AgentFeedback{})
	if filter.GameID != "" {
		base = base.Where("game_id = ?", filter.GameID)
	}
	if filter.Endpoint != "" {
		base = base.Where("endpoint = ?", filter.Endpoint)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byEndpoint []bucket
	if err := base.Session(&gorm.Session{}).Select("endpoint as key, COUNT(*) as count").Group("endpoint").Scan(&byEndpoint).Error; err != nil {
		return nil, fmt.Errorf("failed to group feedback by endpoint: %w", err)
	}

	var byOutcome []bucket
	if err := base.Session(&gorm.Session{}).Select("outcome as key, COUNT(*) as count").Group("outcome").Scan(&byOutcome).Error; err != nil {
		return nil, fmt.Errorf("failed to group feedback by outcome: %w", err)
	}

	response := &models.FeedbackStatsResponse{
		Total:      total,
		ByEndpoint: make(map[string]int64, len(byEndpoint)),
		ByOutcome:  make(map[string]int64, len(byOutcome)),
	}
	for _, b := range byEndpoint {
		response.ByEndpoint[b.Key] = b.Count
	}
	for _, b := range byOutcome {
		response.ByOutcome[b.Key] = b.Count
	}
	return response, nil
}
