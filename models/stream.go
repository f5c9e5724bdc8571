package models

// StreamEventType is the SSE event discriminator. The strings are part of
// the wire contract with the front end; do not rename.
type StreamEventType string

const (
	StreamEventStateUpdate StreamEventType = "state_update"
	StreamEventCitations   StreamEventType = "citations"
	StreamEventToken       StreamEventType = "token"
	StreamEventComplete    StreamEventType = "complete"
	StreamEventError       StreamEventType = "error"
)

// Stream error codes carried in the error event payload.
const (
	StreamErrEmptyQuery      = "EMPTY_QUERY"
	StreamErrEmbeddingFailed = "EMBEDDING_FAILED"
	StreamErrNoResults       = "NO_RESULTS"
	StreamErrLlmFailed       = "LLM_FAILED"
)

// StreamEvent is one typed event emitted by the streaming QA engine. Data is
// one of the *Data payload structs below.
type StreamEvent struct {
	Type StreamEventType
	Data any
}

type StateUpdateData struct {
	State string `json:"state"`
}

type CitationsData struct {
	Citations []Snippet `json:"citations"`
}

type TokenData struct {
	Token string `json:"token"`
}

type CompleteData struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	Confidence       float64 `json:"confidence"`
}

type StreamErrorData struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message,omitempty"`
}
