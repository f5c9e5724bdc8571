package impl

import (
	"context"
	"strings"
	"time"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

// setupQuery is the fixed retrieval query used by the setup guide engine.
const setupQuery = "game setup preparation components initial placement"

type explainServiceImpl struct {
	embedding services.EmbeddingService
	vectors   services.VectorStore
	llm       services.LLMService
	cache     services.CacheService
	prompts   services.PromptService
	cacheTTL  time.Duration
	setupTTL  time.Duration
}

// NewExplainService creates the explain and setup guide engines.
func NewExplainService(embedding services.EmbeddingService, vectors services.VectorStore, llm services.LLMService, cache services.CacheService, prompts services.PromptService, cacheTTL, setupTTL time.Duration) services.ExplainService {
	return &explainServiceImpl{
		embedding: embedding,
		vectors:   vectors,
		llm:       llm,
		cache:     cache,
		prompts:   prompts,
		cacheTTL:  cacheTTL,
		setupTTL:  setupTTL,
	}
}

func (s *explainServiceImpl) Explain(ctx context.Context, userID string, req models.ExplainRequest) (*models.ExplainResponse, bool, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, false, services.ErrEmptyQuery
	}

	cacheKey := ExplainCacheKey(req.GameID, topic)
	var cached models.ExplainResponse
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}

	response, err := s.generate(ctx, req.GameID, topic, topic, PromptNameExplain, fallbackExplainPrompt)
	if err != nil {
		return nil, false, err
	}

	s.cache.SetJSONTagged(ctx, cacheKey, response, s.cacheTTL, GameTag(req.GameID))
	return response, false, nil
}

// GenerateSetup builds a setup guide for a game. The retrieval query is
// fixed, so the response is cached per game rather than per question.
func (s *explainServiceImpl) GenerateSetup(ctx context.Context, userID string, req models.SetupRequest) (*models.ExplainResponse, bool, error) {
	cacheKey := SetupCacheKey(req.GameID)
	var cached models.ExplainResponse
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}

	mainTopic := "Game setup"
	response, err := s.generate(ctx, req.GameID, setupQuery, mainTopic, PromptNameSetup, fallbackSetupPrompt)
	if err != nil {
		return nil, false, err
	}

	s.cache.SetJSONTagged(ctx, cacheKey, response, s.setupTTL, GameTag(req.GameID))
	return response, false, nil
}

func (s *explainServiceImpl) generate(ctx context.Context, gameID, query, mainTopic, promptName, fallback string) (*models.ExplainResponse, error) {
	vector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, services.ErrEmbeddingFailed
	}

	result := s.vectors.Search(ctx, gameID, vector, qaTopK)
	if !result.Success || len(result.Hits) == 0 {
		return nil, services.ErrNoResults
	}
	snippets := SnippetsFromHits(result.Hits)

	systemPrompt := fallback
	if content, err := s.prompts.ActivePrompt(ctx, promptName); err == nil {
		systemPrompt = content
	}

	completion, err := s.llm.Complete(ctx, systemPrompt, BuildContextPrompt(snippets, query))
	if err != nil {
		return nil, err
	}

	return &models.ExplainResponse{
		Outline:          ParseOutline(mainTopic, completion.Text),
		Snippets:         snippets,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
		Confidence:       result.Hits[0].Score,
	}, nil
}

// ParseOutline turns the model's markdown into a structured outline. "## "
// lines open sections, "- " and "* " lines become bullets. Text before the
// first heading goes into an untitled leading section.
func ParseOutline(mainTopic, text string) models.Outline {
	outline := models.Outline{MainTopic: mainTopic, Sections: []models.OutlineSection{}}

	var current *models.OutlineSection
	flush := func() {
		if current != nil && (current.Title != "" || len(current.Bullets) > 0) {
			outline.Sections = append(outline.Sections, *current)
		}
		current = nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			current = &models.OutlineSection{Title: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
		case strings.HasPrefix(line, "# "):
			flush()
			current = &models.OutlineSection{Title: strings.TrimSpace(strings.TrimPrefix(line, "# "))}
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			if current == nil {
				current = &models.OutlineSection{}
			}
			current.Bullets = append(current.Bullets, strings.TrimSpace(line[2:]))
		default:
			if current == nil {
				current = &models.OutlineSection{}
			}
			current.Bullets = append(current.Bullets, line)
		}
	}
	flush()

	return outline
}
