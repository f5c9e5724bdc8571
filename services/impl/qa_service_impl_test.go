package impl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type qaFixture struct {
	cache     services.CacheService
	stats     *fakeCacheStats
	embedding *fakeEmbedding
	vectors   *fakeVectorStore
	llm       *fakeLLM
	qa        services.QAService
}

func setupQAService(t *testing.T) *qaFixture {
	t.Helper()

	db := setupTestDB(t)
	client, _ := setupTestRedis(t)
	cache := NewCacheService(client)
	stats := &fakeCacheStats{}
	embedding := &fakeEmbedding{dim: 4}
	vectors := &fakeVectorStore{hits: []services.SearchHit{
		{Text: "Each player draws two cards at the start of their turn.", DocumentID: "doc-1", ChunkIndex: 0, Page: 3, Score: 0.92},
		{Text: "Cards are drawn from the shared deck.", DocumentID: "doc-1", ChunkIndex: 4, Page: 5, Score: 0.81},
	}}
	llm := &fakeLLM{completeText: "You draw two cards at the start of your turn."}
	prompts := NewPromptService(db, cache, 1024, time.Minute, nil)
	qa := NewQAService(embedding, vectors, llm, cache, stats, prompts, time.Minute)
	return &qaFixture{cache: cache, stats: stats, embedding: embedding, vectors: vectors, llm: llm, qa: qa}
}

func TestAskEmptyQuery(t *testing.T) {
	f := setupQAService(t)

	_, _, err := f.qa.Ask(context.Background(), "user-1", models.QARequest{GameID: "catan", Query: "   "})
	assert.ErrorIs(t, err, services.ErrEmptyQuery)
	assert.Zero(t, f.stats.misses)
}

func TestAskMissThenHit(t *testing.T) {
	f := setupQAService(t)
	ctx := context.Background()
	req := models.QARequest{GameID: "catan", Query: "How many cards do I draw?"}

	resp, fromCache, err := f.qa.Ask(ctx, "user-1", req)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "You draw two cards at the start of your turn.", resp.Answer)
	assert.Equal(t, 0.92, resp.Confidence)
	assert.Equal(t, 30, resp.TotalTokens)
	require.Len(t, resp.Snippets, 2)
	assert.Equal(t, "PDF:doc-1", resp.Snippets[0].Source)
	assert.Equal(t, 3, resp.Snippets[0].Page)
	assert.Equal(t, 0, resp.Snippets[0].Line)

	cached, fromCache, err := f.qa.Ask(ctx, "user-2", req)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, resp.Answer, cached.Answer)

	assert.Equal(t, 1, f.stats.misses)
	assert.Equal(t, 1, f.stats.hits)
}

func TestAskCacheKeyNormalization(t *testing.T) {
	f := setupQAService(t)
	ctx := context.Background()

	_, fromCache, err := f.qa.Ask(ctx, "user-1", models.QARequest{GameID: "catan", Query: "How do ties work?"})
	require.NoError(t, err)
	assert.False(t, fromCache)

	// Same question with different case and whitespace hits the cache.
	_, fromCache, err = f.qa.Ask(ctx, "user-1", models.QARequest{GameID: "catan", Query: "  how do ties WORK?  "})
	require.NoError(t, err)
	assert.True(t, fromCache)
}

func TestAskNoResults(t *testing.T) {
	f := setupQAService(t)
	f.vectors.hits = nil

	_, _, err := f.qa.Ask(context.Background(), "user-1", models.QARequest{GameID: "catan", Query: "unknown topic"})
	assert.ErrorIs(t, err, services.ErrNoResults)
	assert.Equal(t, "NO_RESULTS", services.ErrorCode(err))
}

func TestAskEmbeddingFailure(t *testing.T) {
	f := setupQAService(t)
	f.embedding.fail = true

	_, _, err := f.qa.Ask(context.Background(), "user-1", models.QARequest{GameID: "catan", Query: "anything"})
	assert.ErrorIs(t, err, services.ErrEmbeddingFailed)
	assert.Equal(t, "EMBEDDING_FAILED", services.ErrorCode(err))
}

func TestAskLLMFailureNotCached(t *testing.T) {
	f := setupQAService(t)
	ctx := context.Background()
	f.llm.failComplete = true

	req := models.QARequest{GameID: "catan", Query: "How do I win?"}
	_, _, err := f.qa.Ask(ctx, "user-1", req)
	require.Error(t, err)

	var cached models.QAResponse
	assert.False(t, f.cache.GetJSON(ctx, QACacheKey(req.GameID, req.Query), &cached))
}

func TestBuildContextPrompt(t *testing.T) {
	snippets := []models.Snippet{
		{Text: "First excerpt.", Source: "PDF:doc-1", Page: 2},
		{Text: "Second excerpt.", Source: "PDF:doc-2", Page: 7},
	}

	prompt := BuildContextPrompt(snippets, "How do I score?")

	assert.Contains(t, prompt, "[1] (PDF:doc-1, page 2)\nFirst excerpt.")
	assert.Contains(t, prompt, "[2] (PDF:doc-2, page 7)\nSecond excerpt.")
	assert.Contains(t, prompt, "Question: How do I score?")
}
