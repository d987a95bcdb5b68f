package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conorfennell/studydeck/internal/domain"
)

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Card.ID
	}
	return out
}

func testCollections() []Collection {
	return []Collection{
		{ID: "p1", Name: "Biology", Flashcards: []domain.Flashcard{
			fc("b1", t0.AddDate(0, 0, -1)),
			fc("b2", t0.AddDate(0, 0, 2)),
			fc("b3", t0.AddDate(0, 0, -5)),
		}},
		{ID: "p2", Name: "History", Flashcards: []domain.Flashcard{
			fc("h1", t0),
			fc("h2", t0.AddDate(0, 0, -3)),
		}},
	}
}

func TestBuildQueue_Sorted(t *testing.T) {
	q := BuildQueue(testCollections(), t0, Sorted)
	assert.Equal(t, []string{"b3", "h2", "b1", "h1"}, ids(q))
}

func TestBuildQueue_InsertionOrder(t *testing.T) {
	q := BuildQueue(testCollections(), t0, InsertionOrder)
	assert.Equal(t, []string{"b1", "b3", "h1", "h2"}, ids(q))
}

func TestBuildQueue_NeverIncludesFutureCards(t *testing.T) {
	for _, mode := range []QueueMode{Sorted, InsertionOrder} {
		for _, it := range BuildQueue(testCollections(), t0, mode) {
			assert.False(t, it.Card.DueDate.After(t0), "card %s is not due", it.Card.ID)
		}
	}
}

func TestBuildQueue_TagsOwningCollection(t *testing.T) {
	q := BuildQueue(testCollections(), t0, InsertionOrder)
	assert.Equal(t, "p1", q[0].CollectionID)
	assert.Equal(t, "Biology", q[0].CollectionName)
	assert.Equal(t, "p2", q[3].CollectionID)
	assert.Equal(t, "History", q[3].CollectionName)
}

func TestBuildQueue_Empty(t *testing.T) {
	assert.Empty(t, BuildQueue(nil, t0, Sorted))
	assert.Empty(t, BuildQueue([]Collection{{ID: "p", Flashcards: []domain.Flashcard{fc("x", t0.AddDate(0, 0, 1))}}}, t0, Sorted))
}

func TestBuildQueue_SortIsStableForEqualDueDates(t *testing.T) {
	cols := []Collection{{ID: "p", Flashcards: []domain.Flashcard{fc("a", t0), fc("b", t0), fc("c", t0)}}}
	assert.Equal(t, []string{"a", "b", "c"}, ids(BuildQueue(cols, t0, Sorted)))
}

func TestDueCount(t *testing.T) {
	assert.Equal(t, 4, DueCount(testCollections(), t0))
}

func TestQueueModeString(t *testing.T) {
	assert.Equal(t, "sorted", Sorted.String())
	assert.Equal(t, "insertion-order", InsertionOrder.String())
}
