package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

// AgentHandlers exposes the AI question answering endpoints.
type AgentHandlers struct {
	qaService       services.QAService
	streamService   services.StreamService
	explainService  services.ExplainService
	feedbackService services.FeedbackService
	requestLog      services.RequestLogService
}

func NewAgentHandlers(
	qaService services.QAService,
	streamService services.StreamService,
	explainService services.ExplainService,
	feedbackService services.FeedbackService,
	requestLog services.RequestLogService,
) *AgentHandlers {
	return &AgentHandlers{
		qaService:       qaService,
		streamService:   streamService,
		explainService:  explainService,
		feedbackService: feedbackService,
		requestLog:      requestLog,
	}
}

// QA handles POST /agents/qa.
func (h *AgentHandlers) QA(c *gin.Context) {
	var req models.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.GameID == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "gameId is required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	start := time.Now()
	response, fromCache, err := h.qaService.Ask(c.Request.Context(), uid, req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		h.logRequest(c, models.AIEndpointQA, req.GameID, uid, req.Query, latency, nil, false, fromCache, err)
		h.writeAIError(c, err)
		return
	}

	h.logRequest(c, models.AIEndpointQA, req.GameID, uid, req.Query, latency, response, true, fromCache, nil)
	c.JSON(http.StatusOK, response)
}

// QAStream handles POST /agents/qa/stream, emitting SSE events.
func (h *AgentHandlers) QAStream(c *gin.Context) {
	var req models.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.GameID == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "gameId is required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "streaming not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	start := time.Now()
	success := true

	// The request context dies with the client connection, so telemetry is
	// written under a detached context and from a defer, covering
	// disconnects as well as normal completion.
	defer func() {
		entry := &models.AIRequestLog{
			Endpoint:  models.AIEndpointQAStream,
			GameID:    req.GameID,
			UserID:    uid,
			Query:     req.Query,
			LatencyMs: int(time.Since(start).Milliseconds()),
			Success:   success,
		}
		h.requestLog.Record(context.WithoutCancel(c.Request.Context()), entry)
	}()

	events := h.streamService.AskStream(c.Request.Context(), uid, req)
	for event := range events {
		if event.Type == models.StreamEventError {
			success = false
		}
		if err := writeSSEEvent(c, event); err != nil {
			log.Printf("SSE write failed, client likely disconnected: %v", err)
			success = false
			return
		}
		flusher.Flush()
	}
}

// writeSSEEvent marshals one event onto the wire in SSE framing.
func writeSSEEvent(c *gin.Context, event models.StreamEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

// Explain handles POST /agents/explain.
func (h *AgentHandlers) Explain(c *gin.Context) {
	var req models.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.GameID == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "gameId is required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	start := time.Now()
	response, fromCache, err := h.explainService.Explain(c.Request.Context(), uid, req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		h.logExplainRequest(c, models.AIEndpointExplain, req.GameID, uid, req.Topic, latency, nil, fromCache, err)
		h.writeAIError(c, err)
		return
	}

	h.logExplainRequest(c, models.AIEndpointExplain, req.GameID, uid, req.Topic, latency, response, fromCache, nil)
	c.JSON(http.StatusOK, response)
}

// GenerateSetup handles POST /agents/setup.
func (h *AgentHandlers) GenerateSetup(c *gin.Context) {
	var req models.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.GameID == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "gameId is required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	start := time.Now()
	response, fromCache, err := h.explainService.GenerateSetup(c.Request.Context(), uid, req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		h.logExplainRequest(c, models.AIEndpointSetup, req.GameID, uid, "", latency, nil, fromCache, err)
		h.writeAIError(c, err)
		return
	}

	h.logExplainRequest(c, models.AIEndpointSetup, req.GameID, uid, "", latency, response, fromCache, nil)
	c.JSON(http.StatusOK, response)
}

// Feedback handles POST /agents/feedback.
func (h *AgentHandlers) Feedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.MessageID == "" || req.Endpoint == "" {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "messageId and endpoint are required")
		return
	}

	uid, ok := userID(c)
	if !ok {
		return
	}

	if err := h.feedbackService.Submit(c.Request.Context(), uid, req); err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// FeedbackStats handles GET /agents/feedback/stats.
func (h *AgentHandlers) FeedbackStats(c *gin.Context) {
	filter := models.FeedbackStatsFilter{
		GameID:   c.Query("gameId"),
		Endpoint: c.Query("endpoint"),
	}

	stats, err := h.feedbackService.Stats(c.Request.Context(), filter)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to compute feedback stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RequestLogs handles GET /agents/requests.
func (h *AgentHandlers) RequestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.requestLog.Recent(c.Request.Context(), c.Query("gameId"), limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "INTERNAL", "failed to list request logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": entries})
}

// writeAIError maps pipeline errors to HTTP responses with wire error codes.
func (h *AgentHandlers) writeAIError(c *gin.Context, err error) {
	code := services.ErrorCode(err)
	switch {
	case errors.Is(err, services.ErrEmptyQuery):
		errorJSON(c, http.StatusBadRequest, code, "query must not be empty")
	case errors.Is(err, services.ErrNoResults):
		errorJSON(c, http.StatusNotFound, code, "no relevant passages found for this game")
	case services.IsTransient(err):
		errorJSON(c, http.StatusServiceUnavailable, code, "upstream service temporarily unavailable")
	case errors.Is(err, services.ErrEmbeddingFailed):
		errorJSON(c, http.StatusBadGateway, code, "failed to embed query")
	default:
		errorJSON(c, http.StatusBadGateway, code, "failed to generate answer")
	}
}

func (h *AgentHandlers) logRequest(c *gin.Context, endpoint models.AIEndpoint, gameID, uid, query string, latency int, response *models.QAResponse, success, fromCache bool, err error) {
	entry := &models.AIRequestLog{
		Endpoint:  endpoint,
		GameID:    gameID,
		UserID:    uid,
		Query:     query,
		LatencyMs: latency,
		Success:   success,
		FromCache: fromCache,
	}
	if response != nil {
		entry.PromptTokens = response.PromptTokens
		entry.CompletionTokens = response.CompletionTokens
		entry.TotalTokens = response.TotalTokens
		confidence := response.Confidence
		entry.Confidence = &confidence
	}
	if err != nil {
		message := err.Error()
		entry.ErrorMessage = &message
	}
	h.requestLog.Record(c.Request.Context(), entry)
}

func (h *AgentHandlers) logExplainRequest(c *gin.Context, endpoint models.AIEndpoint, gameID, uid, query string, latency int, response *models.ExplainResponse, fromCache bool, err error) {
	entry := &models.AIRequestLog{
		Endpoint:  endpoint,
		GameID:    gameID,
		UserID:    uid,
		Query:     query,
		LatencyMs: latency,
		Success:   err == nil,
		FromCache: fromCache,
	}
	if response != nil {
		entry.PromptTokens = response.PromptTokens
		entry.CompletionTokens = response.CompletionTokens
		entry.TotalTokens = response.TotalTokens
		confidence := response.Confidence
		entry.Confidence = &confidence
	}
	if err != nil {
		message := err.Error()
		entry.ErrorMessage = &message
	}
	h.requestLog.Record(c.Request.Context(), entry)
}
