package sm2

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// ErrInvalidGrade is returned when a quality outside Again..Easy is supplied.
var ErrInvalidGrade = errors.New("sm2: invalid grade")

// Quality is the reviewer's self-assessment of recall.
type Quality int

const (
	Again Quality = 0
	Hard  Quality = 1
	Good  Quality = 2
	Easy  Quality = 3
)

const (
	// InitialEaseFactor is the ease a freshly generated card starts with.
	InitialEaseFactor = 2.5
	// MinEaseFactor is the hard floor for the ease factor.
	MinEaseFactor = 1.3

	lapseInterval  = 1
	firstInterval  = 1
	secondInterval = 6
)

var qualityNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether q is one of Again, Hard, Good or Easy.
func (q Quality) IsValid() bool {
	return q >= Again && q <= Easy
}

// String returns the grade name, or "Quality(n)" for invalid values.
func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// IsLapse reports whether the grade resets the card to a one day interval.
// Both Again and Hard count as lapses.
func (q Quality) IsLapse() bool {
	return q < Good
}

// ParseQuality accepts either the numeric grade ("0".."3") or its name.
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		q := Quality(n)
		if !q.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidGrade, n)
		}
		return q, nil
	}
	for i, name := range qualityNames {
		if strings.EqualFold(name, s) {
			return Quality(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
}

// NewFlashcard returns a card in its initial scheduling state, due immediately.
func NewFlashcard(id, question, answer string, now time.Time) domain.Flashcard {
	return domain.Flashcard{
		ID:         id,
		Question:   question,
		Answer:     answer,
		EaseFactor: InitialEaseFactor,
		Interval:   0,
		DueDate:    now,
	}
}

// Schedule computes the card's next scheduling state for a review graded q
// at now. The returned card carries the new ease factor, interval and due
// date; all other fields are passed through. An invalid grade leaves the
// card untouched and returns ErrInvalidGrade.
func Schedule(card domain.Flashcard, q Quality, now time.Time) (domain.Flashcard, error) {
	if !q.IsValid() {
		return card, fmt.Errorf("%w: %d", ErrInvalidGrade, int(q))
	}

	card.Interval = nextInterval(card.Interval, card.EaseFactor, q)
	card.EaseFactor = nextEase(card.EaseFactor, q)
	card.DueDate = now.AddDate(0, 0, card.Interval)
	return card, nil
}

// nextInterval uses the ease factor from before this review.
func nextInterval(prev int, ease float64, q Quality) int {
	if q.IsLapse() {
		return lapseInterval
	}
	switch prev {
	case 0:
		return firstInterval
	case 1:
		return secondInterval
	default:
		return int(math.Round(float64(prev) * ease))
	}
}

// nextEase applies EF' = EF + (0.1 - (3-q) * (0.08 + (3-q) * 0.02)), floored at 1.3.
func nextEase(ease float64, q Quality) float64 {
	d := float64(Easy - q)
	ease += 0.1 - d*(0.08+d*0.02)
	if ease < MinEaseFactor {
		ease = MinEaseFactor
	}
	return ease
}
