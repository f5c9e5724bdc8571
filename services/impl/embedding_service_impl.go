package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/meepleai/meepleai-api/config"
	"github.com/meepleai/meepleai-api/services"
)

// embeddingBatchSize is the maximum number of texts per upstream request.
const embeddingBatchSize = 100

type embeddingServiceImpl struct {
	config     *config.EmbeddingConfig
	httpClient *http.Client
}

// NewEmbeddingService creates a client for an OpenAI-compatible embeddings
// endpoint.
func NewEmbeddingService(cfg *config.EmbeddingConfig) services.EmbeddingService {
	return &embeddingServiceImpl{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

func (s *embeddingServiceImpl) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingServiceImpl) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *embeddingServiceImpl) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(embeddingRequest{
		Model: s.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", s.config.BaseURL)

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.config.APIKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.config.APIKey))
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = services.Transient(err)
			if attempt < s.config.MaxRetries {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			statusErr := fmt.Errorf("embeddings returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode == 429 || resp.StatusCode >= 500 {
				lastErr = services.Transient(statusErr)
				if attempt < s.config.MaxRetries {
					time.Sleep(time.Duration(attempt+1) * time.Second)
					continue
				}
				break
			}
			return nil, fmt.Errorf("%w: %v", services.ErrEmbeddingFailed, statusErr)
		}

		var embResp embeddingResponse
		err = json.NewDecoder(resp.Body).Decode(&embResp)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", services.ErrEmbeddingFailed, err)
		}
		if len(embResp.Data) != len(texts) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", services.ErrEmbeddingFailed, len(texts), len(embResp.Data))
		}

		// The endpoint may reorder results; the index field is authoritative.
		vectors := make([][]float32, len(texts))
		for _, item := range embResp.Data {
			if item.Index < 0 || item.Index >= len(texts) {
				return nil, fmt.Errorf("%w: embedding index %d out of range", services.ErrEmbeddingFailed, item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("%w: failed after %d retries: %v", services.ErrEmbeddingFailed, s.config.MaxRetries, lastErr)
}

func (s *embeddingServiceImpl) Dimensions() int {
	return s.config.Dimensions
}

func (s *embeddingServiceImpl) ModelName() string {
	return s.config.Model
}
