package domain

import "time"

// Flashcard is a single reviewable question/answer pair together with its
// scheduling state.
type Flashcard struct {
	ID       string
	Question string
	Answer   string
	Context  string

	// EaseFactor never drops below 1.3 once a card has been graded.
	EaseFactor float64
	// Interval is the number of days until the next review.
	Interval int
	DueDate  time.Time
}

// IsDue reports whether the card is eligible for review at now.
// A card due exactly at now is due.
func (f Flashcard) IsDue(now time.Time) bool {
	return !f.DueDate.After(now)
}

// Project is a named collection of flashcards owned by the user.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ReviewLog records a single grading event for a card.
// Quality corresponds to the review grades:
// 0: Again
// 1: Hard
// 2: Good
// 3: Easy
type ReviewLog struct {
	CardID     string
	ProjectID  string
	Quality    int
	EaseFactor float64
	Interval   int
	ReviewedAt time.Time
}
