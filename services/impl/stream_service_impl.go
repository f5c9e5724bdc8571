package impl

import (
	"context"
	"strings"
	"time"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

// Pipeline states reported through state_update events.
const (
	StreamStateCheckingCache = "checking cache"
	StreamStateCacheHit      = "cache hit"
	StreamStateEmbedding     = "generating embeddings"
	StreamStateSearching     = "searching vector database"
	StreamStateGenerating    = "generating answer"
)

type streamServiceImpl struct {
	embedding   services.EmbeddingService
	vectors     services.VectorStore
	llm         services.LLMService
	cache       services.CacheService
	cacheStats  services.CacheStatsService
	prompts     services.PromptService
	cacheTTL    time.Duration
	idleTimeout time.Duration
}

// NewStreamService creates the streaming question answering engine.
func NewStreamService(embedding services.EmbeddingService, vectors services.VectorStore, llm services.LLMService, cache services.CacheService, cacheStats services.CacheStatsService, prompts services.PromptService, cacheTTL, idleTimeout time.Duration) services.StreamService {
	return &streamServiceImpl{
		embedding:   embedding,
		vectors:     vectors,
		llm:         llm,
		cache:       cache,
		cacheStats:  cacheStats,
		prompts:     prompts,
		cacheTTL:    cacheTTL,
		idleTimeout: idleTimeout,
	}
}

// AskStream runs the QA pipeline and emits typed events on the returned
// channel. The channel closes after a terminal complete or error event, or
// when ctx is cancelled. Nothing is cached unless the stream completes.
func (s *streamServiceImpl) AskStream(ctx context.Context, userID string, req models.QARequest) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 16)
	go func() {
		defer close(events)
		s.run(ctx, req, events)
	}()
	return events
}

func (s *streamServiceImpl) run(ctx context.Context, req models.QARequest, events chan<- models.StreamEvent) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.emit(ctx, events, errorEvent(models.StreamErrEmptyQuery, "query must not be empty"))
		return
	}

	cacheKey := QACacheKey(req.GameID, query)
	questionHash := HashQuery(query)

	if !s.emitState(ctx, events, StreamStateCheckingCache) {
		return
	}

	var cached models.QAResponse
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		s.cacheStats.RecordHit(ctx, req.GameID, questionHash)
		s.replayCached(ctx, events, &cached)
		return
	}
	s.cacheStats.RecordMiss(ctx, req.GameID, questionHash)

	if !s.emitState(ctx, events, StreamStateEmbedding) {
		return
	}

	vector, err := s.embedding.Embed(ctx, query)
	if err != nil {
		s.emit(ctx, events, errorEvent(models.StreamErrEmbeddingFailed, "failed to embed query"))
		return
	}

	if !s.emitState(ctx, events, StreamStateSearching) {
		return
	}

	result := s.vectors.Search(ctx, req.GameID, vector, qaTopK)
	if !result.Success || len(result.Hits) == 0 {
		s.emit(ctx, events, errorEvent(models.StreamErrNoResults, "no relevant passages found"))
		return
	}

	snippets := SnippetsFromHits(result.Hits)
	confidence := result.Hits[0].Score

	if !s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventCitations, Data: models.CitationsData{Citations: snippets}}) {
		return
	}
	if !s.emitState(ctx, events, StreamStateGenerating) {
		return
	}

	systemPrompt := fallbackQAPrompt
	if content, err := s.prompts.ActivePrompt(ctx, PromptNameQA); err == nil {
		systemPrompt = content
	}
	userPrompt := BuildContextPrompt(snippets, query)

	// The idle timer cancels the LLM stream if no token arrives within the
	// window. Each token pushes the deadline out again.
	llmCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	idle := time.AfterFunc(s.idleTimeout, cancel)
	defer idle.Stop()

	tokens, errc, err := s.llm.Stream(llmCtx, systemPrompt, userPrompt)
	if err != nil {
		s.emit(ctx, events, errorEvent(models.StreamErrLlmFailed, "failed to start generation"))
		return
	}

	var answer strings.Builder
	tokenCount := 0
	for token := range tokens {
		idle.Reset(s.idleTimeout)
		answer.WriteString(token)
		tokenCount++
		if !s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventToken, Data: models.TokenData{Token: token}}) {
			return
		}
	}
	idle.Stop()

	if err := <-errc; err != nil {
		s.emit(ctx, events, errorEvent(models.StreamErrLlmFailed, "generation failed"))
		return
	}
	if ctx.Err() != nil {
		return
	}

	// Streaming endpoints rarely report usage; approximate from counts.
	complete := models.CompleteData{
		CompletionTokens: tokenCount,
		TotalTokens:      tokenCount,
		Confidence:       confidence,
	}

	response := &models.QAResponse{
		Answer:           answer.String(),
		Snippets:         snippets,
		CompletionTokens: complete.CompletionTokens,
		TotalTokens:      complete.TotalTokens,
		Confidence:       confidence,
	}
	s.cache.SetJSONTagged(ctx, cacheKey, response, s.cacheTTL, GameTag(req.GameID))

	s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventComplete, Data: complete})
}

// replayCached re-emits a cached answer as a token stream so clients handle
// hits and misses identically.
func (s *streamServiceImpl) replayCached(ctx context.Context, events chan<- models.StreamEvent, cached *models.QAResponse) {
	if !s.emitState(ctx, events, StreamStateCacheHit) {
		return
	}
	if !s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventCitations, Data: models.CitationsData{Citations: cached.Snippets}}) {
		return
	}

	words := strings.Fields(cached.Answer)
	for i, word := range words {
		token := word
		if i < len(words)-1 {
			token += " "
		}
		if !s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventToken, Data: models.TokenData{Token: token}}) {
			return
		}
	}

	s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventComplete, Data: models.CompleteData{
		PromptTokens:     cached.PromptTokens,
		CompletionTokens: cached.CompletionTokens,
		TotalTokens:      cached.TotalTokens,
		Confidence:       cached.Confidence,
	}})
}

func (s *streamServiceImpl) emitState(ctx context.Context, events chan<- models.StreamEvent, state string) bool {
	return s.emit(ctx, events, models.StreamEvent{Type: models.StreamEventStateUpdate, Data: models.StateUpdateData{State: state}})
}

func (s *streamServiceImpl) emit(ctx context.Context, events chan<- models.StreamEvent, event models.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(code, message string) models.StreamEvent {
	return models.StreamEvent{Type: models.StreamEventError, Data: models.StreamErrorData{ErrorCode: code, Message: message}}
}
