package models

// QARequest is the body of POST /agents/qa and /agents/qa/stream.
type QARequest struct {
	GameID string `json:"gameId" validate:"required"`
	Query  string `json:"query" validate:"required"`
	ChatID string `json:"chatId,omitempty"`
}

// Snippet is a retrieved chunk attached to a response as evidence.
// Source uses the "PDF:<document_id>" convention; Line is always 0 for
// PDF-derived text and exists for forward compatibility.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Line   int     `json:"line"`
	Score  float64 `json:"score,omitempty"`
}

// QAResponse is both the sync endpoint payload and the value stored in the
// response cache; the stream engine re-tokenizes it on cache hits.
type QAResponse struct {
	Answer           string         `json:"answer"`
	Snippets         []Snippet      `json:"snippets"`
	PromptTokens     int            `json:"promptTokens"`
	CompletionTokens int            `json:"completionTokens"`
	TotalTokens      int            `json:"totalTokens"`
	Confidence       float64        `json:"confidence"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type ExplainRequest struct {
	GameID string `json:"gameId" validate:"required"`
	Topic  string `json:"topic" validate:"required"`
}

type SetupRequest struct {
	GameID string `json:"gameId" validate:"required"`
}

// OutlineSection is one section of an explain/setup outline.
type OutlineSection struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// Outline is the structured result of the explain/setup engines: a main
// topic plus an ordered list of sections.
type Outline struct {
	MainTopic string           `json:"mainTopic"`
	Sections  []OutlineSection `json:"sections"`
}

// ExplainResponse is shared by the explain and setup endpoints.
type ExplainResponse struct {
	Outline          Outline   `json:"outline"`
	Snippets         []Snippet `json:"snippets"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Confidence       float64   `json:"confidence"`
}
