package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meepleai/meepleai-api/config"
	"github.com/meepleai/meepleai-api/services"
)

func newEmbeddingConfig(baseURL string) *config.EmbeddingConfig {
	return &config.EmbeddingConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "test-embedding",
		Dimensions: 3,
		Timeout:    5,
		MaxRetries: 0,
	}
}

func TestEmbedBatchPreservesInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// Results arrive out of order; the index field is authoritative.
		fmt.Fprint(w, `{
			"data": [
				{"index": 1, "embedding": [0.4, 0.5, 0.6]},
				{"index": 0, "embedding": [0.1, 0.2, 0.3]}
			]
		}`)
	}))
	defer server.Close()

	embedding := NewEmbeddingService(newEmbeddingConfig(server.URL))
	vectors, err := embedding.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
}

func TestEmbedBatchSplitsLargeInput(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Input), embeddingBatchSize)

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Index: i, Embedding: []float32{float32(i), 0, 0}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
	defer server.Close()

	texts := make([]string, embeddingBatchSize+10)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	embedding := NewEmbeddingService(newEmbeddingConfig(server.URL))
	vectors, err := embedding.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	assert.Len(t, vectors, len(texts))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"index": 0, "embedding": [0.1, 0.2, 0.3]}]}`)
	}))
	defer server.Close()

	embedding := NewEmbeddingService(newEmbeddingConfig(server.URL))
	_, err := embedding.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, services.ErrEmbeddingFailed)
}

func TestEmbedBatchRetriesOnRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": [{"index": 0, "embedding": [1, 2, 3]}]}`)
	}))
	defer server.Close()

	cfg := newEmbeddingConfig(server.URL)
	cfg.MaxRetries = 1
	embedding := NewEmbeddingService(cfg)

	vector, err := embedding.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	embedding := NewEmbeddingService(newEmbeddingConfig("http://unused"))

	vectors, err := embedding.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
