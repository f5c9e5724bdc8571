package models

import (
	"time"
)

// QACacheStats is the persisted hit/miss counter for one (game, question)
// pair. Counters only ever increase.
type QACacheStats struct {
	ID           uint       `json:"id" gorm:"primary_key;autoIncrement"`
	GameID       string     `json:"game_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_game_question"`
	QuestionHash string     `json:"question_hash" gorm:"type:varchar(64);not null;uniqueIndex:idx_game_question"`
	HitCount     int64      `json:"hit_count" gorm:"not null;default:0"`
	MissCount    int64      `json:"miss_count" gorm:"not null;default:0"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	LastHitAt    *time.Time `json:"last_hit_at,omitempty"`
}

func (QACacheStats) TableName() string {
	return "meepleai_qa_cache_stats"
}

// CacheStatsEntry is one row of the top-questions breakdown.
type CacheStatsEntry struct {
	GameID       string `json:"gameId"`
	QuestionHash string `json:"questionHash"`
	HitCount     int64  `json:"hitCount"`
	MissCount    int64  `json:"missCount"`
}

// CacheStatsResponse aggregates persisted counters with a best-effort scan
// of the live cache backend.
type CacheStatsResponse struct {
	TotalHits      int64             `json:"totalHits"`
	TotalMisses    int64             `json:"totalMisses"`
	HitRate        float64           `json:"hitRate"`
	TopQuestions   []CacheStatsEntry `json:"topQuestions"`
	CachedKeyCount int64             `json:"cachedKeyCount"`
	CachedBytes    int64             `json:"cachedBytes"`
}
