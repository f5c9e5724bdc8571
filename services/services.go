package services

import (
	"context"
	"time"

	"github.com/meepleai/meepleai-api/models"
)

// EmbeddingService turns text into dense vectors via an OpenAI-compatible
// embeddings endpoint.
type EmbeddingService interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for many texts, batching requests to the
	// upstream endpoint. Output order matches input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size produced by the configured model.
	Dimensions() int

	// ModelName returns the configured embedding model identifier.
	ModelName() string
}

// CompletionResult is a finished LLM answer with token accounting.
type CompletionResult struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// LLMService is the chat-completion client.
type LLMService interface {
	// Complete runs a synchronous chat completion.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*CompletionResult, error)

	// Stream runs a streaming chat completion. Tokens arrive on the first
	// channel; the error channel delivers at most one value after the token
	// channel closes (nil on clean completion). The returned error covers
	// failures before the stream starts.
	Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error, error)
}

// VectorPoint is one chunk ready for upsert into the vector index.
type VectorPoint struct {
	GameID     string
	DocumentID string
	ChunkIndex int
	Text       string
	Page       int
	CharStart  int
	CharEnd    int
	Vector     []float32
	IndexedAt  time.Time
}

// SearchHit is one retrieved chunk with its similarity score.
type SearchHit struct {
	Text       string
	DocumentID string
	ChunkIndex int
	Page       int
	CharStart  int
	Score      float64
}

// UpsertResult reports a vector index write. Error is empty on success.
type UpsertResult struct {
	Success       bool
	PointsWritten int
	Error         string
}

// SearchResult reports a vector search. A successful search with zero hits
// has Success true and an empty Hits slice.
type SearchResult struct {
	Success bool
	Error   string
	Hits    []SearchHit
}

// DeleteResult reports a vector index delete.
type DeleteResult struct {
	Success bool
	Error   string
}

// VectorStore is the vector index over rulebook chunks.
type VectorStore interface {
	// EnsureCollection creates the collection and payload indexes if missing.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points, replacing any with the same deterministic IDs.
	Upsert(ctx context.Context, points []VectorPoint) UpsertResult

	// Search returns the closest chunks for a game, ordered by score.
	Search(ctx context.Context, gameID string, vector []float32, limit int) SearchResult

	// DeleteByDocument removes every point belonging to one document.
	DeleteByDocument(ctx context.Context, gameID, documentID string) DeleteResult
}

// CacheService is the response cache over Redis. Reads fail open: a backend
// outage degrades to cache misses, never to request failures.
type CacheService interface {
	// GetJSON loads a cached value into out. Returns false on miss or
	// backend error.
	GetJSON(ctx context.Context, key string, out any) bool

	// SetJSON stores a value with a TTL. Failures are logged and swallowed.
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration)

	// SetJSONTagged stores a value and records the key in each tag's set
	// so it can be removed later via InvalidateTag.
	SetJSONTagged(ctx context.Context, key string, value any, ttl time.Duration, tags ...string)

	// GetString and SetString are the raw string variants used for prompts.
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)

	// Delete removes specific keys.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes keys matching a glob pattern via SCAN and
	// returns the number of keys deleted.
	DeletePattern(ctx context.Context, pattern string) (int64, error)

	// InvalidateGame removes every cached response for a game, including
	// the per-game setup entry. Returns the number of keys deleted.
	InvalidateGame(ctx context.Context, gameID string) (int64, error)

	// InvalidateTag deletes every key recorded under a tag, then the tag
	// set itself. Returns the number of keys deleted.
	InvalidateTag(ctx context.Context, tag string) (int64, error)

	// ScanUsage reports key count and total value bytes for a pattern.
	ScanUsage(ctx context.Context, pattern string) (count int64, bytes int64, err error)
}

// CacheStatsService persists hit/miss counters per (game, question hash).
type CacheStatsService interface {
	RecordHit(ctx context.Context, gameID, questionHash string)
	RecordMiss(ctx context.Context, gameID, questionHash string)
	Stats(ctx context.Context, gameID string, topN int) (*models.CacheStatsResponse, error)
}

// PromptService manages versioned prompt templates. Exactly one version per
// template is active at any time once a first activation has happened.
type PromptService interface {
	CreateTemplate(ctx context.Context, req models.CreatePromptTemplateRequest, actor string) (*models.PromptTemplateDetail, error)
	GetTemplate(ctx context.Context, templateID string) (*models.PromptTemplateDetail, error)
	ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error)

	CreateVersion(ctx context.Context, templateID string, req models.CreatePromptVersionRequest, actor string) (*models.PromptVersion, error)
	ListVersions(ctx context.Context, templateID string) ([]models.PromptVersion, error)
	ActivateVersion(ctx context.Context, templateID, versionID, actor, reason string) error
	ListAudit(ctx context.Context, templateID string, limit int) ([]models.PromptAudit, error)

	// ActivePrompt resolves the active content for a template name, trying
	// the in-process warm copy, then Redis, then the database.
	ActivePrompt(ctx context.Context, name string) (string, error)

	// WarmCache preloads the active versions of the configured templates.
	WarmCache(ctx context.Context) error
}

// IndexService turns an uploaded PDF's extracted text into vector points.
// Indexing the same document twice is safe and converges to the same state.
type IndexService interface {
	IndexDocument(ctx context.Context, documentID string) (*models.IngestResponse, error)
	Status(ctx context.Context, documentID string) (*models.VectorDocument, error)
	RemoveDocument(ctx context.Context, documentID string) error
}

// ExtractionResult is the text pulled out of a PDF by the extraction
// collaborator. Pages are separated by form feeds.
type ExtractionResult struct {
	Text      string
	PageCount int
}

// ExtractionService extracts text from PDF bytes. The production
// implementation calls an external extraction endpoint.
type ExtractionService interface {
	ExtractText(ctx context.Context, fileName string, content []byte) (*ExtractionResult, error)
}

// PdfService handles rulebook uploads and their extraction lifecycle.
type PdfService interface {
	Upload(ctx context.Context, userID, gameID, fileName string, content []byte) (*models.PdfDocument, error)
	Get(ctx context.Context, documentID string) (*models.PdfDocument, error)
	ListByGame(ctx context.Context, gameID string) ([]models.PdfDocument, error)
}

// GameService manages the game registry.
type GameService interface {
	Ensure(ctx context.Context, id, name string) (*models.Game, error)
	List(ctx context.Context) ([]models.Game, error)
}

// QAService answers one-shot rules questions with retrieval and caching.
type QAService interface {
	// Ask returns the answer and whether it was served from cache.
	Ask(ctx context.Context, userID string, req models.QARequest) (*models.QAResponse, bool, error)
}

// StreamService is the streaming variant of QA. The returned channel is
// closed after a terminal complete or error event; cancellation of ctx stops
// the stream without writing to the cache.
type StreamService interface {
	AskStream(ctx context.Context, userID string, req models.QARequest) <-chan models.StreamEvent
}

// ExplainService produces structured rule explanations and setup guides.
type ExplainService interface {
	Explain(ctx context.Context, userID string, req models.ExplainRequest) (*models.ExplainResponse, bool, error)
	GenerateSetup(ctx context.Context, userID string, req models.SetupRequest) (*models.ExplainResponse, bool, error)
}

// FeedbackService records user verdicts on answers.
type FeedbackService interface {
	// Submit upserts a verdict; a nil outcome clears it.
	Submit(ctx context.Context, userID string, req models.FeedbackRequest) error
	Stats(ctx context.Context, filter models.FeedbackStatsFilter) (*models.FeedbackStatsResponse, error)
}

// RequestLogService persists per-request AI telemetry rows.
type RequestLogService interface {
	// Record inserts best-effort; failures are logged, never propagated.
	Record(ctx context.Context, entry *models.AIRequestLog)
	Recent(ctx context.Context, gameID string, limit int) ([]models.AIRequestLog, error)
}
