package impl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

const (
	// qaTopK is how many chunks are retrieved per question.
	qaTopK = 5

	// Prompt template names resolved through the prompt service.
	PromptNameQA      = "qa-default"
	PromptNameExplain = "explain-default"
	PromptNameSetup   = "setup-default"
)

// Built-in prompts used when no managed template is active yet.
const (
	fallbackQAPrompt = "You are a board game rules assistant. Answer the question using only the provided rulebook excerpts. " +
		"If the excerpts do not contain the answer, say you cannot find it in the rulebook. Be concise and cite specific rules."

	fallbackExplainPrompt = "You are a board game rules assistant. Explain the requested topic using only the provided rulebook excerpts. " +
		"Structure the explanation as markdown with '## ' section headings and '- ' bullet points under each heading."

	fallbackSetupPrompt = "You are a board game rules assistant. Produce a step-by-step setup guide from the provided rulebook excerpts. " +
		"Structure the guide as markdown with '## ' step headings and '- ' bullet points under each heading."
)

type qaServiceImpl struct {
	embedding  services.EmbeddingService
	vectors    services.VectorStore
	llm        services.LLMService
	cache      services.CacheService
	cacheStats services.CacheStatsService
	prompts    services.PromptService
	cacheTTL   time.Duration
}

// NewQAService creates the synchronous question answering engine.
func NewQAService(embedding services.EmbeddingService, vectors services.VectorStore, llm services.LLMService, cache services.CacheService, cacheStats services.CacheStatsService, prompts services.PromptService, cacheTTL time.Duration) services.QAService {
	return &qaServiceImpl{
		embedding:  embedding,
		vectors:    vectors,
		llm:        llm,
		cache:      cache,
		cacheStats: cacheStats,
		prompts:    prompts,
		cacheTTL:   cacheTTL,
	}
}

func (s *qaServiceImpl) Ask(ctx context.Context, userID string, req models.QARequest) (*models.QAResponse, bool, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, false, services.ErrEmptyQuery
	}

	cacheKey := QACacheKey(req.GameID, query)
	questionHash := HashQuery(query)

	var cached models.QAResponse
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		s.cacheStats.RecordHit(ctx, req.GameID, questionHash)
		return &cached, true, nil
	}
	s.cacheStats.RecordMiss(ctx, req.GameID, questionHash)

	snippets, confidence, err := s.retrieve(ctx, req.GameID, query)
	if err != nil {
		return nil, false, err
	}

	systemPrompt := s.activePrompt(ctx, PromptNameQA, fallbackQAPrompt)
	userPrompt := BuildContextPrompt(snippets, query)

	result, err := s.llm.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, false, err
	}

	response := &models.QAResponse{
		Answer:           result.Text,
		Snippets:         snippets,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		Confidence:       confidence,
	}

	s.cache.SetJSONTagged(ctx, cacheKey, response, s.cacheTTL, GameTag(req.GameID))
	return response, false, nil
}

// retrieve embeds the query and runs the filtered vector search, returning
// citation snippets and the top score as confidence.
func (s *qaServiceImpl) retrieve(ctx context.Context, gameID, query string) ([]models.Snippet, float64, error) {
	vector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", services.ErrEmbeddingFailed, err)
	}

	result := s.vectors.Search(ctx, gameID, vector, qaTopK)
	if !result.Success {
		return nil, 0, fmt.Errorf("%w: %s", services.ErrNoResults, result.Error)
	}
	if len(result.Hits) == 0 {
		return nil, 0, services.ErrNoResults
	}

	snippets := SnippetsFromHits(result.Hits)
	return snippets, result.Hits[0].Score, nil
}

func (s *qaServiceImpl) activePrompt(ctx context.Context, name, fallback string) string {
	content, err := s.prompts.ActivePrompt(ctx, name)
	if err != nil {
		return fallback
	}
	return content
}

// SnippetsFromHits converts search hits into citation snippets.
func SnippetsFromHits(hits []services.SearchHit) []models.Snippet {
	snippets := make([]models.Snippet, len(hits))
	for i, hit := range hits {
		snippets[i] = models.Snippet{
			Text:   hit.Text,
			Source: fmt.Sprintf("PDF:%s", hit.DocumentID),
			Page:   hit.Page,
			Score:  hit.Score,
		}
	}
	return snippets
}

// BuildContextPrompt assembles the retrieval context and question into the
// user message sent to the model.
func BuildContextPrompt(snippets []models.Snippet, query string) string {
	var b strings.Builder
	b.WriteString("Rulebook excerpts:\n\n")
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "[%d] (%s, page %d)\n%s\n\n", i+1, snippet.Source, snippet.Page, snippet.Text)
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}
