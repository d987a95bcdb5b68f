package review

import (
	"context"
	"log/slog"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Saver persists the full, updated flashcard list of one collection.
type Saver interface {
	SavePartial(ctx context.Context, collectionID string, flashcards []domain.Flashcard) error
}

// Loader reads the currently stored state of a collection.
type Loader interface {
	Collection(ctx context.Context, collectionID string) (Collection, error)
}

// Rewarder credits experience points to the user.
type Rewarder interface {
	AwardExperience(ctx context.Context, amount int) error
}

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Severity classifies a notification.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(message string, severity Severity) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch severity {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, message, "severity", severity.String())
}
