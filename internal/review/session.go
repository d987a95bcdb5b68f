package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/sm2"
)

// XPPerCard is the experience awarded per card in a completed session.
const XPPerCard = 10

var (
	ErrNotActive       = errors.New("review: no active session")
	ErrSessionActive   = errors.New("review: session already active")
	ErrGradeInProgress = errors.New("review: a grade is already being processed")
)

// State is the lifecycle state of a review session.
type State int

const (
	Idle State = iota
	Active
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ReviewLogger records individual grading events.
type ReviewLogger interface {
	AppendReviewLog(ctx context.Context, log domain.ReviewLog) error
}

// Outcome describes the effect of a single grade.
type Outcome struct {
	// Item holds the graded card with its new scheduling state.
	Item      Item
	Completed bool
	// Reward is the experience awarded, non-zero only when Completed.
	Reward int
	// SaveErr is the persistence failure, if any. The session advances regardless.
	SaveErr error
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for due filtering and scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithLoader makes every grade rebuild the saved list from the stored
// collection, so that writes made by others since Start are kept.
func WithLoader(l Loader) Option {
	return func(s *Session) { s.loader = l }
}

// WithReviewLogger records every grade in addition to saving the card.
func WithReviewLogger(rl ReviewLogger) Option {
	return func(s *Session) { s.reviewLog = rl }
}

// Session steps through a review queue one card at a time.
//
// Every grade is scheduled, written back to the owning collection and
// persisted before the session advances. A failed save is reported through
// the Notifier but never rolls back the grade or blocks progress.
type Session struct {
	saver     Saver
	rewarder  Rewarder
	notifier  Notifier
	reviewLog ReviewLogger
	loader    Loader
	now       func() time.Time
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	mode        QueueMode
	queue       []Item
	index       int
	collections map[string][]domain.Flashcard
	grading     bool
	// generation changes on every Start and End so that a grade whose save
	// outlived its session does not touch the next one.
	generation uint64
}

// NewSession returns an idle session wired to its collaborators.
func NewSession(saver Saver, notifier Notifier, rewarder Rewarder, opts ...Option) *Session {
	s := &Session{
		saver:    saver,
		notifier: notifier,
		rewarder: rewarder,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds a queue from the collections and, if any card is due,
// activates the session. It returns false when there is nothing to review;
// the session then stays where it was and the user is told so.
func (s *Session) Start(collections []Collection, mode QueueMode) (bool, error) {
	s.mu.Lock()
	if s.state == Active {
		s.mu.Unlock()
		return false, ErrSessionActive
	}

	queue := BuildQueue(collections, s.now(), mode)
	if len(queue) == 0 {
		s.mu.Unlock()
		s.notifier.Notify("No cards are due for review. Great job!", Info)
		return false, nil
	}

	working := make(map[string][]domain.Flashcard, len(collections))
	for _, c := range collections {
		working[c.ID] = append([]domain.Flashcard(nil), c.Flashcards...)
	}

	s.state = Active
	s.mode = mode
	s.queue = queue
	s.index = 0
	s.collections = working
	s.grading = false
	s.generation++
	s.mu.Unlock()

	s.logger.Info("review session started", "mode", mode.String(), "cards", len(queue))
	return true, nil
}

// Current returns the item under review. ok is false unless the session is active.
func (s *Session) Current() (item Item, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return Item{}, false
	}
	return s.queue[s.index], true
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns the ordering of the current or last queue.
func (s *Session) Mode() QueueMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Index returns the 0-based position of the current item.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Len returns the length of the queue the session was started with.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Remaining returns how many cards are still to be graded, including the
// current one. It is zero unless the session is active.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return 0
	}
	return len(s.queue) - s.index
}

// Grade schedules the current card with q, persists its collection and
// advances. Grading the last card completes the session and awards
// XPPerCard experience for every card in the queue.
func (s *Session) Grade(ctx context.Context, q sm2.Quality) (Outcome, error) {
	if !q.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %d", sm2.ErrInvalidGrade, int(q))
	}

	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return Outcome{}, ErrNotActive
	}
	if s.grading {
		s.mu.Unlock()
		return Outcome{}, ErrGradeInProgress
	}

	now := s.now()
	item := s.queue[s.index]
	updated, err := sm2.Schedule(item.Card, q, now)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	item.Card = updated
	s.queue[s.index] = item

	list := replaceCard(s.collections[item.CollectionID], updated)
	s.collections[item.CollectionID] = list
	s.grading = true
	gen := s.generation
	s.mu.Unlock()

	out := Outcome{Item: item}
	list = s.latest(ctx, item, list)
	out.SaveErr = s.persist(ctx, item, q, list, now)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return out, nil
	}
	s.collections[item.CollectionID] = list
	s.grading = false
	if s.index < len(s.queue)-1 {
		s.index++
		s.mu.Unlock()
		return out, nil
	}
	s.state = Complete
	out.Completed = true
	out.Reward = len(s.queue) * XPPerCard
	s.mu.Unlock()

	s.finish(ctx, out.Reward)
	return out, nil
}

// End abandons an active session without a reward. It reports whether a
// session was actually ended.
func (s *Session) End() bool {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return false
	}
	remaining := len(s.queue) - s.index
	s.state = Idle
	s.queue = nil
	s.index = 0
	s.collections = nil
	s.grading = false
	s.generation++
	s.mu.Unlock()

	s.logger.Info("review session ended early", "remaining", remaining)
	return true
}

// latest returns the stored collection with the graded card swapped in.
// Without a Loader, or when loading fails, the working copy is used.
func (s *Session) latest(ctx context.Context, item Item, working []domain.Flashcard) []domain.Flashcard {
	if s.loader == nil {
		return working
	}
	stored, err := s.loader.Collection(ctx, item.CollectionID)
	if err != nil {
		s.logger.Warn("failed to reload collection, saving working copy",
			"collection", item.CollectionID,
			"error", err,
		)
		return working
	}
	return replaceCard(stored.Flashcards, item.Card)
}

func (s *Session) persist(ctx context.Context, item Item, q sm2.Quality, list []domain.Flashcard, now time.Time) error {
	err := s.saver.SavePartial(ctx, item.CollectionID, list)
	if err != nil {
		s.logger.Error("failed to save flashcards",
			"collection", item.CollectionID,
			"card", item.Card.ID,
			"error", err,
		)
		s.notifier.Notify(fmt.Sprintf("Could not save your progress for %q.", item.CollectionName), Error)
	}

	if s.reviewLog != nil {
		logErr := s.reviewLog.AppendReviewLog(ctx, domain.ReviewLog{
			CardID:     item.Card.ID,
			ProjectID:  item.CollectionID,
			Quality:    int(q),
			EaseFactor: item.Card.EaseFactor,
			Interval:   item.Card.Interval,
			ReviewedAt: now,
		})
		if logErr != nil {
			s.logger.Warn("failed to append review log", "card", item.Card.ID, "error", logErr)
		}
	}
	return err
}

func (s *Session) finish(ctx context.Context, reward int) {
	s.logger.Info("review session complete", "reward", reward)
	if err := s.rewarder.AwardExperience(ctx, reward); err != nil {
		s.logger.Error("failed to award experience", "amount", reward, "error", err)
		s.notifier.Notify("Could not record your experience points.", Warning)
	}
	s.notifier.Notify(fmt.Sprintf("Review complete! You earned %d XP.", reward), Success)
}

// replaceCard returns a copy of list with the card sharing updated's ID
// replaced. The original slice is left untouched.
func replaceCard(list []domain.Flashcard, updated domain.Flashcard) []domain.Flashcard {
	out := make([]domain.Flashcard, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == updated.ID {
			out[i] = updated
			return out
		}
	}
	return append(out, updated)
}
