package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meepleai/meepleai-api/services"
)

const (
	// CacheOpTimeout bounds every cache round trip so a slow Redis never
	// stalls a request.
	CacheOpTimeout = 1 * time.Second

	// DefaultCacheTTL applies when no explicit TTL is configured (24 hours).
	DefaultCacheTTL = 24 * time.Hour
)

// Cache key builders. Key shapes are part of the operational contract; the
// admin invalidation endpoints and the warm-up path both rely on them.

// HashQuery normalizes a query (lowercase, trimmed) and hashes it for use in
// cache keys. Two queries differing only in case or surrounding whitespace
// share a cache entry.
func HashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

func QACacheKey(gameID, query string) string {
	return fmt.Sprintf("ai:qa:%s:%s", gameID, HashQuery(query))
}

func ExplainCacheKey(gameID, topic string) string {
	return fmt.Sprintf("ai:explain:%s:%s", gameID, HashQuery(topic))
}

func SetupCacheKey(gameID string) string {
	return fmt.Sprintf("ai:setup:%s", gameID)
}

func PromptCacheKey(name string) string {
	return fmt.Sprintf("prompt:%s:active", name)
}

// GameCachePattern matches every AI response cached for one game.
func GameCachePattern(gameID string) string {
	return fmt.Sprintf("ai:*:%s:*", gameID)
}

// GameTag is the invalidation tag every game-scoped response is indexed
// under.
func GameTag(gameID string) string {
	return fmt.Sprintf("game:%s", gameID)
}

// TagSetKey names the set holding the cache keys recorded for a tag.
func TagSetKey(tag string) string {
	return fmt.Sprintf("tag:%s", tag)
}

// EndpointCachePattern narrows invalidation to one endpoint's keys for a
// game. The setup endpoint caches a single key per game, so its pattern is
// the key itself.
func EndpointCachePattern(endpoint, gameID string) string {
	if endpoint == "setup" {
		return SetupCacheKey(gameID)
	}
	return fmt.Sprintf("ai:%s:%s:*", endpoint, gameID)
}

// cacheServiceImpl implements CacheService over Redis. All reads fail open:
// a backend outage degrades to cache misses, never to request failures.
type cacheServiceImpl struct {
	redis *redis.Client
}

// NewCacheService creates a cache service backed by an existing Redis client.
func NewCacheService(redisClient *redis.Client) services.CacheService {
	return &cacheServiceImpl{redis: redisClient}
}

func (s *cacheServiceImpl) GetJSON(ctx context.Context, key string, out any) bool {
	if s.redis == nil {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	data, err := s.redis.Get(opCtx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("cache get failed for %s: %v", key, err)
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		// Corrupt entry, drop it so the next write repairs the key.
		log.Printf("cache entry corrupt for %s, deleting: %v", key, err)
		s.redis.Del(ctx, key)
		return false
	}
	return true
}

func (s *cacheServiceImpl) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache marshal failed for %s: %v", key, err)
		return
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	if err := s.redis.Set(opCtx, key, data, ttl).Err(); err != nil {
		log.Printf("cache set failed for %s: %v", key, err)
	}
}

func (s *cacheServiceImpl) SetJSONTagged(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) {
	s.SetJSON(ctx, key, value, ttl)
	if s.redis == nil || len(tags) == 0 {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	pipe := s.redis.Pipeline()
	for _, tag := range tags {
		pipe.SAdd(opCtx, TagSetKey(tag), key)
	}
	if _, err := pipe.Exec(opCtx); err != nil {
		log.Printf("cache tag index failed for %s: %v", key, err)
	}
}

// InvalidateGame clears the qa and explain entries via the game pattern and
// the setup entry by its exact key.
func (s *cacheServiceImpl) InvalidateGame(ctx context.Context, gameID string) (int64, error) {
	deleted, err := s.DeletePattern(ctx, GameCachePattern(gameID))
	if err != nil {
		return deleted, err
	}
	n, err := s.DeletePattern(ctx, SetupCacheKey(gameID))
	return deleted + n, err
}

// InvalidateTag deletes every key listed in the tag set, then the set.
func (s *cacheServiceImpl) InvalidateTag(ctx context.Context, tag string) (int64, error) {
	if s.redis == nil {
		return 0, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	setKey := TagSetKey(tag)
	keys, err := s.redis.SMembers(opCtx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read tag set %s: %w", setKey, err)
	}

	var deleted int64
	if len(keys) > 0 {
		n, err := s.redis.Del(opCtx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete tagged keys: %w", err)
		}
		deleted = n
	}
	if err := s.redis.Del(opCtx, setKey).Err(); err != nil {
		return deleted, fmt.Errorf("failed to delete tag set %s: %w", setKey, err)
	}
	return deleted, nil
}

func (s *cacheServiceImpl) GetString(ctx context.Context, key string) (string, bool) {
	if s.redis == nil {
		return "", false
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	value, err := s.redis.Get(opCtx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("cache get failed for %s: %v", key, err)
		return "", false
	}
	return value, true
}

func (s *cacheServiceImpl) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	if s.redis == nil {
		return
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	if err := s.redis.Set(opCtx, key, value, ttl).Err(); err != nil {
		log.Printf("cache set failed for %s: %v", key, err)
	}
}

func (s *cacheServiceImpl) Delete(ctx context.Context, keys ...string) error {
	if s.redis == nil || len(keys) == 0 {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, CacheOpTimeout)
	defer cancel()

	if err := s.redis.Del(opCtx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// DeletePattern removes keys matching a glob pattern via SCAN, never KEYS,
// so large invalidations do not block the Redis event loop.
func (s *cacheServiceImpl) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	if s.redis == nil {
		return 0, nil
	}

	var deleted int64
	var cursor uint64
	for {
		keys, newCursor, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += n
		}
		cursor = newCursor
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

func (s *cacheServiceImpl) ScanUsage(ctx context.Context, pattern string) (int64, int64, error) {
	if s.redis == nil {
		return 0, 0, nil
	}

	var count, bytes int64
	var cursor uint64
	for {
		keys, newCursor, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count, bytes, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		for _, key := range keys {
			count++
			size, err := s.redis.StrLen(ctx, key).Result()
			if err != nil {
				continue
			}
			bytes += size
		}
		cursor = newCursor
		if cursor == 0 {
			break
		}
	}
	return count, bytes, nil
}
