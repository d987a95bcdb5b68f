package review

import (
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Collection is a project's flashcards tagged with the project's identity.
type Collection struct {
	ID         string
	Name       string
	Flashcards []domain.Flashcard
}

// Item pairs a due card with the collection that owns it.
type Item struct {
	Card           domain.Flashcard
	CollectionID   string
	CollectionName string
}

// QueueMode selects how a review queue is ordered.
type QueueMode int

const (
	// Sorted orders the queue earliest-due first. Used by the single
	// project "Study Due Cards" flow.
	Sorted QueueMode = iota
	// InsertionOrder keeps collection order, then card order within each
	// collection. Used by the cross-project "Daily Review" flow.
	InsertionOrder
)

func (m QueueMode) String() string {
	switch m {
	case Sorted:
		return "sorted"
	case InsertionOrder:
		return "insertion-order"
	default:
		return "unknown"
	}
}

// BuildQueue flattens the collections and keeps the cards due at now.
// An empty result means there is nothing to review.
func BuildQueue(collections []Collection, now time.Time, mode QueueMode) []Item {
	var items []Item
	for _, c := range collections {
		for _, card := range c.Flashcards {
			if !card.IsDue(now) {
				continue
			}
			items = append(items, Item{
				Card:           card,
				CollectionID:   c.ID,
				CollectionName: c.Name,
			})
		}
	}

	if mode == Sorted {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Card.DueDate.Before(items[j].Card.DueDate)
		})
	}
	return items
}

// DueCount returns how many cards across the collections are due at now.
func DueCount(collections []Collection, now time.Time) int {
	n := 0
	for _, c := range collections {
		for _, card := range c.Flashcards {
			if card.IsDue(now) {
				n++
			}
		}
	}
	return n
}
