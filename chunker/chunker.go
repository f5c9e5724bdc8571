package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target size for each chunk in characters.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is the number of trailing characters of the
	// previous chunk repeated at the start of the next one.
	DefaultChunkOverlap = 50

	// DefaultCharsPerPage approximates page numbers for documents whose
	// extracted text carries no form feeds.
	DefaultCharsPerPage = 3000
)

// Chunk is a windowed substring of a document's extracted text with offset
// and page metadata, suitable for embedding.
type Chunk struct {
	Text      string
	CharStart int
	CharEnd   int
	Page      int
	Index     int
}

// Chunker splits extracted rulebook text into overlapping search windows.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	CharsPerPage int
}

// New creates a chunker with default settings.
func New() *Chunker {
	return &Chunker{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		CharsPerPage: DefaultCharsPerPage,
	}
}

// NewWithConfig creates a chunker with explicit settings. Overlap is capped
// below the chunk size; invalid values fall back to defaults.
func NewWithConfig(size, overlap, charsPerPage int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	if charsPerPage <= 0 {
		charsPerPage = DefaultCharsPerPage
	}
	return &Chunker{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		CharsPerPage: charsPerPage,
	}
}

// Prepare splits text into overlapping chunks. Empty or whitespace-only
// input yields no chunks; text shorter than the chunk size yields one.
func (c *Chunker) Prepare(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if len(text) <= c.ChunkSize {
		return []Chunk{{
			Text:      text,
			CharStart: 0,
			CharEnd:   len(text),
			Page:      c.estimatePage(text, 0),
			Index:     0,
		}}
	}

	var chunks []Chunk
	position := 0
	index := 0

	for position < len(text) {
		end := position + c.ChunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			end = c.findBreakPoint(text, position, end)
		}

		window := text[position:end]

		// Whitespace-only trailing segments are dropped; no chunk may be
		// emitted empty.
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{
				Text:      window,
				CharStart: position,
				CharEnd:   end,
				Page:      c.estimatePage(text, position),
				Index:     index,
			})
			index++
		}

		if end == len(text) {
			break
		}

		// Overlap is taken from the end of the previous chunk. If a boundary
		// produced a window no longer than the overlap, advance without one
		// to guarantee forward progress.
		next := end - c.ChunkOverlap
		if next <= position {
			next = end
		}
		position = next
	}

	return chunks
}

// findBreakPoint picks a split position at or before targetEnd, preferring a
// sentence terminator, then whitespace, then the hard character boundary.
func (c *Chunker) findBreakPoint(text string, start, targetEnd int) int {
	// The last sentence end anywhere in the window wins.
	if pos := c.findLastSentenceEnd(text, start+1, targetEnd); pos != -1 {
		return pos
	}

	// Failing that, break at whitespace near the end of the window.
	searchStart := targetEnd - (c.ChunkSize / 5)
	if searchStart < start+1 {
		searchStart = start + 1
	}
	for i := targetEnd - 1; i >= searchStart; i-- {
		if unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}

	return targetEnd
}

// findLastSentenceEnd scans backwards for ". ", "! " or "? " style endings.
func (c *Chunker) findLastSentenceEnd(text string, start, end int) int {
	for i := end - 1; i >= start; i-- {
		ch := text[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 >= len(text) {
			return i + 1
		}
		if unicode.IsSpace(rune(text[i+1])) {
			return i + 1
		}
	}
	return -1
}

// estimatePage reports the 1-based page of an offset. Form feeds in the
// prefix are authoritative; otherwise pages are approximated by size.
func (c *Chunker) estimatePage(text string, offset int) int {
	if strings.ContainsRune(text, '\f') {
		return strings.Count(text[:offset], "\f") + 1
	}
	return offset/c.CharsPerPage + 1
}
