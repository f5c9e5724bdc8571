package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareEmptyInput(t *testing.T) {
	c := New()

	assert.Nil(t, c.Prepare(""))
	assert.Nil(t, c.Prepare("   \n\t  "))
}

func TestPrepareShortText(t *testing.T) {
	c := New()

	chunks := c.Prepare("Roll two dice and move your pawn.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Roll two dice and move your pawn.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 33, chunks[0].CharEnd)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestPrepareDeterministic(t *testing.T) {
	c := New()
	text := strings.Repeat("Each player draws three cards. Discard one face up. ", 40)

	first := c.Prepare(text)
	second := c.Prepare(text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestPrepareOffsetsMatchSource(t *testing.T) {
	c := NewWithConfig(100, 20, 3000)
	text := strings.Repeat("The active player may build one road or settlement per turn. ", 30)

	chunks := c.Prepare(text)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, text[ch.CharStart:ch.CharEnd], ch.Text)
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
	// Last chunk reaches the end of the document.
	assert.Equal(t, len(text), chunks[len(chunks)-1].CharEnd)
}

func TestPrepareOverlap(t *testing.T) {
	c := NewWithConfig(100, 20, 3000)
	text := strings.Repeat("Setup takes about five minutes. Shuffle the event deck well. ", 30)

	chunks := c.Prepare(text)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		// Each chunk starts at or before the previous chunk's end, and
		// the windows cover the document without gaps.
		assert.LessOrEqual(t, chunks[i].CharStart, chunks[i-1].CharEnd)
		assert.Greater(t, chunks[i].CharEnd, chunks[i-1].CharEnd)
	}
}

func TestPreparePrefersSentenceBoundaries(t *testing.T) {
	c := NewWithConfig(80, 10, 3000)
	text := "The game ends when the deck is empty. Count victory points for each built structure. The player with the most points wins the game immediately."

	chunks := c.Prepare(text)
	require.Greater(t, len(chunks), 1)
	// First break lands just after a sentence terminator.
	first := chunks[0].Text
	assert.True(t, strings.HasSuffix(strings.TrimRight(first, " "), "."), "got %q", first)
}

func TestPreparePageFromFormFeed(t *testing.T) {
	c := NewWithConfig(60, 10, 3000)
	text := "Page one rules about movement and combat resolution here.\fPage two covers trading, building and the market phase rules."

	chunks := c.Prepare(text)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[len(chunks)-1].Page)
}

func TestPreparePageFromCharCount(t *testing.T) {
	c := NewWithConfig(500, 50, 1000)
	text := strings.Repeat("Victory conditions are checked at the end of every round. ", 60)

	chunks := c.Prepare(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].Page)
	last := chunks[len(chunks)-1]
	assert.Equal(t, last.CharStart/1000+1, last.Page)
}

func TestNewWithConfigClampsInvalid(t *testing.T) {
	c := NewWithConfig(0, -1, 0)
	assert.Equal(t, DefaultChunkSize, c.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.ChunkOverlap)
	assert.Equal(t, DefaultCharsPerPage, c.CharsPerPage)

	c = NewWithConfig(40, 100, 3000)
	assert.Less(t, c.ChunkOverlap, c.ChunkSize)
}
