package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/review"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrProjectNotFound is returned when a project id does not exist.
var ErrProjectNotFound = errors.New("storage: project not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

var (
	_ review.Saver        = (*DB)(nil)
	_ review.Rewarder     = (*DB)(nil)
	_ review.ReviewLogger = (*DB)(nil)
	_ review.Loader       = (*DB)(nil)
)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// applyPragmas configures SQLite for a single local user.
func applyPragmas(db *sql.DB) error {
	// Pragmas are per connection; keep one so they hold for every query.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// CreateProject inserts a new, empty project.
func (db *DB) CreateProject(ctx context.Context, id, name string) (*domain.Project, error) {
	p := &domain.Project{ID: id, Name: name, CreatedAt: db.now().UTC()}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
	`, p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project %s: %w", id, err)
	}
	return p, nil
}

// FindProject retrieves a project by id, or nil if it does not exist.
func (db *DB) FindProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns all projects in creation order.
func (db *DB) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, created_at FROM projects ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Collection loads a project together with its flashcards in insertion order.
func (db *DB) Collection(ctx context.Context, projectID string) (review.Collection, error) {
	p, err := db.FindProject(ctx, projectID)
	if err != nil {
		return review.Collection{}, err
	}
	if p == nil {
		return review.Collection{}, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	cards, err := db.flashcards(ctx, projectID)
	if err != nil {
		return review.Collection{}, err
	}
	return review.Collection{ID: p.ID, Name: p.Name, Flashcards: cards}, nil
}

// Collections loads every project with its flashcards, in project creation order.
func (db *DB) Collections(ctx context.Context) ([]review.Collection, error) {
	projects, err := db.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	collections := make([]review.Collection, 0, len(projects))
	for _, p := range projects {
		cards, err := db.flashcards(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		collections = append(collections, review.Collection{ID: p.ID, Name: p.Name, Flashcards: cards})
	}
	return collections, nil
}

func (db *DB) flashcards(ctx context.Context, projectID string) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, question, answer, context, ease_factor, interval, due_date
		FROM flashcards WHERE project_id = ? ORDER BY position
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcards for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		var c domain.Flashcard
		if err := rows.Scan(
			&c.ID,
			&c.Question,
			&c.Answer,
			&c.Context,
			&c.EaseFactor,
			&c.Interval,
			&c.DueDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan flashcard row for project %s: %w", projectID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// SavePartial merges the given flashcards into the project. Cards already
// stored are updated in place and keep their position; new cards are appended.
// Cards missing from the list are left alone.
func (db *DB) SavePartial(ctx context.Context, projectID string, flashcards []domain.Flashcard) error {
	return db.writeFlashcards(ctx, projectID, flashcards, false)
}

// ReplaceFlashcards makes the given list the project's complete flashcard set:
// its order becomes the stored order and cards missing from it are removed.
func (db *DB) ReplaceFlashcards(ctx context.Context, projectID string, flashcards []domain.Flashcard) error {
	return db.writeFlashcards(ctx, projectID, flashcards, true)
}

func (db *DB) writeFlashcards(ctx context.Context, projectID string, flashcards []domain.Flashcard, replace bool) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save for project %s: %w", projectID, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check project %s: %w", projectID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM flashcards WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("failed to clear flashcards for project %s: %w", projectID, err)
		}
	}

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM flashcards WHERE project_id = ?
	`, projectID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read positions for project %s: %w", projectID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flashcards (project_id, id, question, answer, context, ease_factor, interval, due_date, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			context = excluded.context,
			ease_factor = excluded.ease_factor,
			interval = excluded.interval,
			due_date = excluded.due_date
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare flashcard upsert: %w", err)
	}
	defer stmt.Close()

	for i, c := range flashcards {
		if _, err := stmt.ExecContext(ctx,
			projectID,
			c.ID,
			c.Question,
			c.Answer,
			c.Context,
			c.EaseFactor,
			c.Interval,
			c.DueDate.UTC(),
			next+i,
		); err != nil {
			return fmt.Errorf("failed to save flashcard %s in project %s: %w", c.ID, projectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flashcards for project %s: %w", projectID, err)
	}
	return nil
}

// AwardExperience appends an experience entry.
func (db *DB) AwardExperience(ctx context.Context, amount int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO experience (amount, awarded_at) VALUES (?, ?)
	`, amount, db.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to award %d experience: %w", amount, err)
	}
	return nil
}

// TotalExperience sums all awarded experience.
func (db *DB) TotalExperience(ctx context.Context) (int, error) {
	var total int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM experience`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum experience: %w", err)
	}
	return total, nil
}

// AppendReviewLog records a single grading event.
func (db *DB) AppendReviewLog(ctx context.Context, l domain.ReviewLog) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, project_id, quality, ease_factor, interval, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.CardID, l.ProjectID, l.Quality, l.EaseFactor, l.Interval, l.ReviewedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append review log for card %s: %w", l.CardID, err)
	}
	return nil
}

// ReviewLogs returns the grading history of a card, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, projectID, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, project_id, quality, ease_factor, interval, reviewed_at
		FROM review_logs WHERE project_id = ? AND card_id = ? ORDER BY id
	`, projectID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		if err := rows.Scan(&l.CardID, &l.ProjectID, &l.Quality, &l.EaseFactor, &l.Interval, &l.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
