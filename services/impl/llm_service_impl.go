package impl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/meepleai/meepleai-api/config"
	"github.com/meepleai/meepleai-api/services"
)

type llmServiceImpl struct {
	config       *config.LLMConfig
	httpClient   *http.Client
	streamClient *http.Client // No total timeout, for SSE streaming
}

// NewLLMService creates a chat-completion client for an OpenAI-compatible
// endpoint.
func NewLLMService(cfg *config.LLMConfig) services.LLMService {
	return &llmServiceImpl{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.CompleteTimeout) * time.Second,
		},
		streamClient: &http.Client{
			// No Timeout. Streaming responses flow incrementally, so a total
			// timeout would kill long-running generations. Idle streams are
			// cut by the per-token deadline in the streaming engine.
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type chatStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
}

func (s *llmServiceImpl) buildRequest(ctx context.Context, systemPrompt, userPrompt string, stream bool) (*http.Request, []byte, error) {
	request := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", s.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.config.APIKey))
	}
	return req, jsonData, nil
}

func (s *llmServiceImpl) Complete(ctx context.Context, systemPrompt, userPrompt string) (*services.CompletionResult, error) {
	req, jsonData, err := s.buildRequest(ctx, systemPrompt, userPrompt, false)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = services.Transient(err)
			if attempt < s.config.MaxRetries {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				req.Body = io.NopCloser(bytes.NewBuffer(jsonData))
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			statusErr := fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode == 429 || resp.StatusCode >= 500 {
				lastErr = services.Transient(statusErr)
				if attempt < s.config.MaxRetries {
					time.Sleep(time.Duration(attempt+1) * time.Second)
					req.Body = io.NopCloser(bytes.NewBuffer(jsonData))
					continue
				}
				break
			}
			return nil, fmt.Errorf("%w: %v", services.ErrLlmFailed, statusErr)
		}

		var chatResp chatResponse
		err = json.NewDecoder(resp.Body).Decode(&chatResp)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode response: %v", services.ErrLlmFailed, err)
		}
		if len(chatResp.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices in response", services.ErrLlmFailed)
		}

		return &services.CompletionResult{
			Text:             chatResp.Choices[0].Message.Content,
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}, nil
	}

	return nil, fmt.Errorf("%w: failed after %d retries: %v", services.ErrLlmFailed, s.config.MaxRetries, lastErr)
}

// Stream starts a streaming completion. The token channel carries content
// deltas in arrival order; the error channel delivers exactly one value after
// the token channel closes.
func (s *llmServiceImpl) Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error, error) {
	req, _, err := s.buildRequest(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.streamClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", services.ErrLlmFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, fmt.Errorf("%w: llm returned status %d: %s", services.ErrLlmFailed, resp.StatusCode, string(body))
	}

	tokens := make(chan string, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer resp.Body.Close()
		errc <- s.readTokenStream(ctx, resp.Body, tokens)
	}()

	return tokens, errc, nil
}

// readTokenStream parses SSE "data:" lines from the body and forwards content
// deltas. It closes the token channel before returning.
func (s *llmServiceImpl) readTokenStream(ctx context.Context, body io.Reader, tokens chan<- string) error {
	defer close(tokens)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Printf("[STREAM] Failed to parse SSE chunk: %v (data: %.100s)", err, data)
			continue
		}

		for _, choice := range chunk.Choices {
			if choice.Delta == nil || choice.Delta.Content == "" {
				continue
			}
			select {
			case tokens <- choice.Delta.Content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: error reading SSE stream: %v", services.ErrLlmFailed, err)
	}
	return nil
}
