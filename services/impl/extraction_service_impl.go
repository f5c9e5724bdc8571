package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/meepleai/meepleai-api/config"
	"github.com/meepleai/meepleai-api/services"
)

type extractionServiceImpl struct {
	config     *config.ExtractionConfig
	httpClient *http.Client
}

// NewExtractionService creates a client for the PDF text extraction
// endpoint. Extraction itself runs in a separate service; this client only
// ships bytes and receives text.
func NewExtractionService(cfg *config.ExtractionConfig) services.ExtractionService {
	return &extractionServiceImpl{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

type extractionResponse struct {
	Text      string `json:"text"`
	PageCount int    `json:"pageCount"`
}

func (s *extractionServiceImpl) ExtractText(ctx context.Context, fileName string, content []byte) (*services.ExtractionResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	url := fmt.Sprintf("%s/extract", s.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extraction returned status %d: %s", resp.StatusCode, string(body))
	}

	var extResp extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&extResp); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	return &services.ExtractionResult{
		Text:      extResp.Text,
		PageCount: extResp.PageCount,
	}, nil
}
