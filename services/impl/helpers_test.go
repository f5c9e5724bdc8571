package impl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Game{},
		&models.PdfDocument{},
		&models.VectorDocument{},
		&models.PromptTemplate{},
		&models.PromptVersion{},
		&models.PromptAudit{},
		&models.AIRequestLog{},
		&models.QACacheStats{},
		&models.AgentFeedback{},
	))
	return db
}

// fakeEmbedding returns deterministic vectors and optionally fails.
type fakeEmbedding struct {
	dim      int
	fail     bool
	requests [][]string
}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.requests = append(f.requests, texts)
	if f.fail {
		return nil, fmt.Errorf("%w: upstream unavailable", services.ErrEmbeddingFailed)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		vectors[i] = vec
	}
	return vectors, nil
}

func (f *fakeEmbedding) Dimensions() int   { return f.dim }
func (f *fakeEmbedding) ModelName() string { return "fake-embedding" }

// fakeVectorStore records upserts and serves canned hits.
type fakeVectorStore struct {
	mu         sync.Mutex
	hits       []services.SearchHit
	failSearch bool
	failUpsert bool
	upserts    [][]services.VectorPoint
	deletes    []string
}

func (f *fakeVectorStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectorStore) Upsert(ctx context.Context, points []services.VectorPoint) services.UpsertResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return services.UpsertResult{Error: "index unavailable"}
	}
	f.upserts = append(f.upserts, points)
	return services.UpsertResult{Success: true, PointsWritten: len(points)}
}

func (f *fakeVectorStore) Search(ctx context.Context, gameID string, vector []float32, limit int) services.SearchResult {
	if f.failSearch {
		return services.SearchResult{Error: "index unavailable"}
	}
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return services.SearchResult{Success: true, Hits: hits}
}

func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, gameID, documentID string) services.DeleteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, documentID)
	return services.DeleteResult{Success: true}
}

// fakeLLM serves canned completions and token streams.
type fakeLLM struct {
	completeText string
	tokens       []string
	failComplete bool
	failStream   bool
	streamErr    error
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (*services.CompletionResult, error) {
	if f.failComplete {
		return nil, fmt.Errorf("%w: upstream unavailable", services.ErrLlmFailed)
	}
	return &services.CompletionResult{
		Text:             f.completeText,
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
	}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error, error) {
	if f.failStream {
		return nil, nil, fmt.Errorf("%w: upstream unavailable", services.ErrLlmFailed)
	}

	tokens := make(chan string, len(f.tokens))
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for _, token := range f.tokens {
			tokens <- token
		}
		close(tokens)
		errc <- f.streamErr
	}()
	return tokens, errc, nil
}

// fakeCacheStats counts recorded hits and misses.
type fakeCacheStats struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (f *fakeCacheStats) RecordHit(ctx context.Context, gameID, questionHash string) {
	f.mu.Lock()
	f.hits++
	f.mu.Unlock()
}

func (f *fakeCacheStats) RecordMiss(ctx context.Context, gameID, questionHash string) {
	f.mu.Lock()
	f.misses++
	f.mu.Unlock()
}

func (f *fakeCacheStats) Stats(ctx context.Context, gameID string, topN int) (*models.CacheStatsResponse, error) {
	return &models.CacheStatsResponse{}, nil
}

// fakeExtraction returns fixed text.
type fakeExtraction struct {
	text  string
	pages int
	fail  bool
}

func (f *fakeExtraction) ExtractText(ctx context.Context, fileName string, content []byte) (*services.ExtractionResult, error) {
	if f.fail {
		return nil, fmt.Errorf("extraction failed")
	}
	return &services.ExtractionResult{Text: f.text, PageCount: f.pages}, nil
}
