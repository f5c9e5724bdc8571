package models

import (
	"time"
)

const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "not-helpful"
)

// AgentFeedback is a user's verdict on one answer. One row per
// (message, endpoint, user); clearing the outcome deletes the row.
type AgentFeedback struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primary_key"`
	MessageID string    `json:"message_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_feedback_identity"`
	Endpoint  string    `json:"endpoint" gorm:"type:varchar(32);not null;uniqueIndex:idx_feedback_identity"`
	UserID    string    `json:"user_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_feedback_identity"`
	GameID    string    `json:"game_id" gorm:"type:varchar(128);not null;index"`
	Outcome   string    `json:"outcome" gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (AgentFeedback) TableName() string {
	return "meepleai_agent_feedbacks"
}

type FeedbackRequest struct {
	MessageID string  `json:"messageId" validate:"required"`
	Endpoint  string  `json:"endpoint" validate:"required"`
	GameID    string  `json:"gameId"`
	Outcome   *string `json:"outcome"`
}

type FeedbackStatsFilter struct {
	GameID   string `form:"gameId"`
	Endpoint string `form:"endpoint"`
}

type FeedbackStatsResponse struct {
	Total      int64            `json:"total"`
	ByEndpoint map[string]int64 `json:"byEndpoint"`
	ByOutcome  map[string]int64 `json:"byOutcome"`
}
