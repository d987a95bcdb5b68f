package review

import (
	"context"
	"sync"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

type saveCall struct {
	collectionID string
	flashcards   []domain.Flashcard
}

type fakeSaver struct {
	mu    sync.Mutex
	calls []saveCall
	err   error
	// entered and release, when set, make SavePartial block until released.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSaver) SavePartial(_ context.Context, collectionID string, flashcards []domain.Flashcard) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, saveCall{collectionID: collectionID, flashcards: flashcards})
	return f.err
}

type note struct {
	message  string
	severity Severity
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (f *fakeNotifier) Notify(message string, severity Severity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note{message: message, severity: severity})
}

func (f *fakeNotifier) count(sev Severity) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, x := range f.notes {
		if x.severity == sev {
			n++
		}
	}
	return n
}

type fakeRewarder struct {
	awards []int
	err    error
}

func (f *fakeRewarder) AwardExperience(_ context.Context, amount int) error {
	f.awards = append(f.awards, amount)
	return f.err
}

type fakeReviewLog struct {
	logs []domain.ReviewLog
}

func (f *fakeReviewLog) AppendReviewLog(_ context.Context, l domain.ReviewLog) error {
	f.logs = append(f.logs, l)
	return nil
}

func fc(id string, due time.Time) domain.Flashcard {
	return domain.Flashcard{
		ID:         id,
		Question:   "Q " + id,
		Answer:     "A " + id,
		EaseFactor: 2.5,
		DueDate:    due,
	}
}

type fakeLoader struct {
	mu     sync.Mutex
	stored map[string]Collection
	err    error
}

func (f *fakeLoader) Collection(_ context.Context, id string) (Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Collection{}, f.err
	}
	return f.stored[id], nil
}

func (f *fakeLoader) set(c Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = make(map[string]Collection)
	}
	f.stored[c.ID] = c
}
