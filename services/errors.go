package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for the AI pipeline. Handlers and the streaming engine map
// these to wire-level error codes via ErrorCode.
var (
	ErrEmptyQuery             = errors.New("query is empty")
	ErrEmbeddingFailed        = errors.New("embedding generation failed")
	ErrNoResults              = errors.New("no relevant passages found")
	ErrLlmFailed              = errors.New("llm completion failed")
	ErrPdfNotFound            = errors.New("pdf document not found")
	ErrTextExtractionRequired = errors.New("pdf text extraction has not completed")
	ErrChunkingFailed         = errors.New("text produced no indexable chunks")
	ErrVectorIndexingFailed   = errors.New("vector index write failed")
	ErrTemplateNotFound       = errors.New("prompt template not found")
	ErrVersionNotFound        = errors.New("prompt version not found")
	ErrDuplicateTemplateName  = errors.New("prompt template name already exists")
	ErrPromptTooLarge         = errors.New("prompt content exceeds size limit")
	ErrGameNotFound           = errors.New("game not found")
)

// TransientError marks a failure worth retrying, such as a 429 or 5xx from
// an upstream model endpoint or a network timeout.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrorCode maps a pipeline error to its wire-level code. Unknown errors
// fall through to LLM_FAILED, the terminal stage of the pipeline.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "EMPTY_QUERY"
	case errors.Is(err, ErrEmbeddingFailed):
		return "EMBEDDING_FAILED"
	case errors.Is(err, ErrNoResults):
		return "NO_RESULTS"
	default:
		return "LLM_FAILED"
	}
}
