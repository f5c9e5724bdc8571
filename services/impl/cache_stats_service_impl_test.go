package impl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai-api/services"
)

func setupCacheStatsService(t *testing.T) (services.CacheStatsService, services.CacheService) {
	t.Helper()

	db := setupTestDB(t)
	client, _ := setupTestRedis(t)
	cache := NewCacheService(client)
	return NewCacheStatsService(db, cache), cache
}

func TestCacheStatsCounters(t *testing.T) {
	stats, _ := setupCacheStatsService(t)
	ctx := context.Background()

	hash := HashQuery("how many cards?")
	stats.RecordMiss(ctx, "catan", hash)
	stats.RecordHit(ctx, "catan", hash)
	stats.RecordHit(ctx, "catan", hash)

	resp, err := stats.Stats(ctx, "catan", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(2), resp.TotalHits)
	assert.Equal(t, int64(1), resp.TotalMisses)
	assert.InDelta(t, 2.0/3.0, resp.HitRate, 0.001)
	require.Len(t, resp.TopQuestions, 1)
	assert.Equal(t, hash, resp.TopQuestions[0].QuestionHash)
	assert.Equal(t, int64(2), resp.TopQuestions[0].HitCount)
}

func TestCacheStatsTopNOrdering(t *testing.T) {
	stats, _ := setupCacheStatsService(t)
	ctx := context.Background()

	popular := HashQuery("popular question")
	rare := HashQuery("rare question")
	for i := 0; i < 3; i++ {
		stats.RecordHit(ctx, "catan", popular)
	}
	stats.RecordHit(ctx, "catan", rare)

	resp, err := stats.Stats(ctx, "catan", 1)
	require.NoError(t, err)
	require.Len(t, resp.TopQuestions, 1)
	assert.Equal(t, popular, resp.TopQuestions[0].QuestionHash)
}

func TestCacheStatsFilterByGame(t *testing.T) {
	stats, _ := setupCacheStatsService(t)
	ctx := context.Background()

	stats.RecordHit(ctx, "catan", HashQuery("q1"))
	stats.RecordMiss(ctx, "azul", HashQuery("q2"))

	catan, err := stats.Stats(ctx, "catan", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), catan.TotalHits)
	assert.Zero(t, catan.TotalMisses)

	all, err := stats.Stats(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), all.TotalHits)
	assert.Equal(t, int64(1), all.TotalMisses)
}

func TestCacheStatsIncludesLiveCacheUsage(t *testing.T) {
	stats, cache := setupCacheStatsService(t)
	ctx := context.Background()

	cache.SetString(ctx, QACacheKey("catan", "q1"), "abcde", time.Minute)
	cache.SetString(ctx, QACacheKey("catan", "q2"), "xyz", time.Minute)

	resp, err := stats.Stats(ctx, "catan", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.CachedKeyCount)
	assert.Equal(t, int64(8), resp.CachedBytes)
}

func TestCacheStatsEmpty(t *testing.T) {
	stats, _ := setupCacheStatsService(t)

	resp, err := stats.Stats(context.Background(), "catan", 10)
	require.NoError(t, err)
	assert.Zero(t, resp.TotalHits)
	assert.Zero(t, resp.TotalMisses)
	assert.Zero(t, resp.HitRate)
	assert.Empty(t, resp.TopQuestions)
}
