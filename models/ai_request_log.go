package models

import (
	"time"
)

type AIEndpoint string

const (
	AIEndpointQA       AIEndpoint = "qa"
	AIEndpointQAStream AIEndpoint = "qa_stream"
	AIEndpointExplain  AIEndpoint = "explain"
	AIEndpointSetup    AIEndpoint = "setup"
)

// AIRequestLog records one AI request, cached or not. Rows are written
// best-effort: a failed insert never fails the user-facing call.
type AIRequestLog struct {
	ID               string     `json:"id" gorm:"type:varchar(64);primary_key"`
	Endpoint         AIEndpoint `json:"endpoint" gorm:"type:varchar(32);not null;index"`
	GameID           string     `json:"game_id" gorm:"type:varchar(128);not null;index"`
	UserID           string     `json:"user_id" gorm:"type:varchar(255);not null"`
	Query            string     `json:"query" gorm:"type:text"`
	LatencyMs        int        `json:"latency_ms" gorm:"default:0"`
	PromptTokens     int        `json:"prompt_tokens" gorm:"default:0"`
	CompletionTokens int        `json:"completion_tokens" gorm:"default:0"`
	TotalTokens      int        `json:"total_tokens" gorm:"default:0"`
	Confidence       *float64   `json:"confidence,omitempty"`
	Success          bool       `json:"success" gorm:"not null;default:false"`
	FromCache        bool       `json:"from_cache" gorm:"not null;default:false"`
	ErrorMessage     *string    `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null"`
}

func (AIRequestLog) TableName() string {
	return "meepleai_ai_request_logs"
}
