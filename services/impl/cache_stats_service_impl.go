package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type cacheStatsServiceImpl struct {
	db    *gorm.DB
	cache services.CacheService
}

// NewCacheStatsService creates the persisted cache hit/miss counter store.
func NewCacheStatsService(db *gorm.DB, cache services.CacheService) services.CacheStatsService {
	return &cacheStatsServiceImpl{db: db, cache: cache}
}

// RecordHit increments the hit counter. Counter writes are best-effort; a
// database hiccup never fails the request being served.
func (s *cacheStatsServiceImpl) RecordHit(ctx context.Context, gameID, questionHash string) {
	now := time.Now().UTC()
	if err := s.increment(ctx, gameID, questionHash, "hit_count", map[string]any{"last_hit_at": now}); err != nil {
		log.Printf("failed to record cache hit for %s: %v", gameID, err)
	}
}

func (s *cacheStatsServiceImpl) RecordMiss(ctx context.Context, gameID, questionHash string) {
	if err := s.increment(ctx, gameID, questionHash, "miss_count", nil); err != nil {
		log.Printf("failed to record cache miss for %s: %v", gameID, err)
	}
}

func (s *cacheStatsServiceImpl) increment(ctx context.Context, gameID, questionHash, column string, extra map[string]any) error {
	var row models.QACacheStats
	err := s.db.WithContext(ctx).Where("game_id = ? AND question_hash = ?", gameID, questionHash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.QACacheStats{
			GameID:       gameID,
			QuestionHash: questionHash,
			CreatedAt:    time.Now().UTC(),
		}
		if createErr := s.db.WithContext(ctx).Create(&row).Error; createErr != nil {
			// Lost a create race; fall through to the update path.
			if findErr := s.db.WithContext(ctx).Where("game_id = ? AND question_hash = ?", gameID, questionHash).First(&row).Error; findErr != nil {
				return createErr
			}
		}
	} else if err != nil {
		return err
	}

	updates := map[string]any{column: gorm.Expr(column+" + ?", 1)}
	for k, v := range extra {
		updates[k] = v
	}
	return s.db.WithContext(ctx).Model(&models.QACacheStats{}).Where("id = ?", row.ID).Updates(updates).Error
}

// Stats aggregates persisted counters and scans the live cache for key count
// and size. An empty gameID aggregates across all games.
func (s *cacheStatsServiceImpl) Stats(ctx context.Context, gameID string, topN int) (*models.CacheStatsResponse, error) {
	if topN <= 0 {
		topN = 10
	}

	query := s.db.WithContext(ctx).Model(&models.QACacheStats{})
	if gameID != "" {
		query = query.Where("game_id = ?", gameID)
	}

	type totals struct {
		Hits   int64
		Misses int64
	}
	var t totals
	if err := query.Select("COALESCE(SUM(hit_count),0) as hits, COALESCE(SUM(miss_count),0) as misses").Scan(&t).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate cache stats: %w", err)
	}

	topQuery := s.db.WithContext(ctx).Model(&models.QACacheStats{})
	if gameID != "" {
		topQuery = topQuery.Where("game_id = ?", gameID)
	}
	var rows []models.QACacheStats
	if err := topQuery.Order("hit_count DESC").Limit(topN).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list top questions: %w", err)
	}

	top := make([]models.CacheStatsEntry, len(rows))
	for i, row := range rows {
		top[i] = models.CacheStatsEntry{
			GameID:       row.GameID,
			QuestionHash: row.QuestionHash,
			HitCount:     row.HitCount,
			MissCount:    row.MissCount,
		}
	}

	pattern := "ai:*"
	if gameID != "" {
		pattern = GameCachePattern(gameID)
	}
	keyCount, bytes, err := s.cache.ScanUsage(ctx, pattern)
	if err != nil {
		log.Printf("cache usage scan failed: %v", err)
	}

	response := &models.CacheStatsResponse{
		TotalHits:      t.Hits,
		TotalMisses:    t.Misses,
		TopQuestions:   top,
		CachedKeyCount: keyCount,
		CachedBytes:    bytes,
	}
	if total := t.Hits + t.Misses; total > 0 {
		response.HitRate = float64(t.Hits) / float64(total)
	}
	return response, nil
}
