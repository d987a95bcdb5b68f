package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/review"
)

// Toast is a notification waiting to be shown with the next page.
type Toast struct {
	Message  string
	Severity review.Severity
}

// toastNotifier queues notifications for display and logs them.
type toastNotifier struct {
	mu     sync.Mutex
	toasts []Toast
	logger *slog.Logger
}

func (n *toastNotifier) Notify(message string, severity review.Severity) {
	review.LogNotifier{Logger: n.logger}.Notify(message, severity)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, Toast{Message: message, Severity: severity})
}

// Drain returns the queued toasts and clears the queue.
func (n *toastNotifier) Drain() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.toasts
	n.toasts = nil
	return out
}

// timeoutSaver bounds every save with a deadline.
type timeoutSaver struct {
	saver   review.Saver
	timeout time.Duration
}

func (s timeoutSaver) SavePartial(ctx context.Context, collectionID string, flashcards []domain.Flashcard) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.saver.SavePartial(ctx, collectionID, flashcards)
}

type liveSession struct {
	session  *review.Session
	toasts   *toastNotifier
	lastSeen time.Time
}

// registry holds the review sessions of open browser tabs, keyed by a random
// id. Sessions untouched for longer than ttl are dropped.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	ttl      time.Duration
	now      func() time.Time
}

func newRegistry(ttl time.Duration, now func() time.Time) *registry {
	return &registry{
		sessions: make(map[string]*liveSession),
		ttl:      ttl,
		now:      now,
	}
}

func (r *registry) add(ls *liveSession) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictLocked(now)
	ls.lastSeen = now
	r.sessions[id] = ls
	return id
}

func (r *registry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.evictLocked(now)
	ls, ok := r.sessions[id]
	if ok {
		ls.lastSeen = now
	}
	return ls, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) evictLocked(now time.Time) {
	for id, ls := range r.sessions {
		if now.Sub(ls.lastSeen) > r.ttl {
			ls.session.End()
			delete(r.sessions, id)
		}
	}
}
