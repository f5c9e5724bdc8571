package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meepleai/meepleai-api/services"
)

func TestSortHitsOrdering(t *testing.T) {
	hits := []services.SearchHit{
		{DocumentID: "doc-b", ChunkIndex: 1, Score: 0.7},
		{DocumentID: "doc-a", ChunkIndex: 5, Score: 0.9},
		{DocumentID: "doc-b", ChunkIndex: 0, Score: 0.7},
		{DocumentID: "doc-a", ChunkIndex: 2, Score: 0.7},
	}

	SortHits(hits)

	// Score descending first, then document ID, then chunk index.
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, "doc-a", hits[1].DocumentID)
	assert.Equal(t, 2, hits[1].ChunkIndex)
	assert.Equal(t, "doc-b", hits[2].DocumentID)
	assert.Equal(t, 0, hits[2].ChunkIndex)
	assert.Equal(t, 1, hits[3].ChunkIndex)
}

func TestSortHitsStableForEqualKeys(t *testing.T) {
	hits := []services.SearchHit{
		{DocumentID: "doc-a", ChunkIndex: 0, Score: 0.5, Text: "first"},
		{DocumentID: "doc-a", ChunkIndex: 0, Score: 0.5, Text: "second"},
	}

	SortHits(hits)

	assert.Equal(t, "first", hits[0].Text)
	assert.Equal(t, "second", hits[1].Text)
}

func TestPointIDDeterministic(t *testing.T) {
	id := PointID("doc-1", 3)
	assert.Len(t, id, 36)
	assert.Equal(t, id, PointID("doc-1", 3))
	assert.NotEqual(t, id, PointID("doc-1", 4))
	assert.NotEqual(t, id, PointID("doc-2", 3))
}
