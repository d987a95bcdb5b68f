package sync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/gitsource"
	"github.com/conorfennell/studydeck/internal/knol"
	"github.com/conorfennell/studydeck/internal/parser"
	"github.com/conorfennell/studydeck/internal/sm2"
	"github.com/conorfennell/studydeck/internal/storage"
)

// Options configures a sync run.
type Options struct {
	// ReposDir is where git sources are checked out.
	ReposDir string
	// Progress receives git clone/pull progress; nil discards it.
	Progress io.Writer
	Now      func() time.Time
	Logger   *slog.Logger
}

// Report summarises the reconciliation of one project.
type Report struct {
	ProjectID string
	Parsed    int
	Added     int
	Removed   int
	Errors    []error
}

// RunSync reconciles every project that has sources with the decks found in
// those sources. New cards start due immediately; known cards keep their
// scheduling state; cards no longer present in any source are removed.
func RunSync(ctx context.Context, db *storage.DB, opts Options) ([]Report, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}
	logger := opts.Logger

	logger.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		logger.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	var order []string
	byProject := make(map[string][]storage.Source)
	for _, s := range sources {
		if _, ok := byProject[s.ProjectID]; !ok {
			order = append(order, s.ProjectID)
		}
		byProject[s.ProjectID] = append(byProject[s.ProjectID], s)
	}

	reports := make([]Report, 0, len(order))
	for _, projectID := range order {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report := reconcileProject(ctx, db, projectID, byProject[projectID], opts)
		logger.Info("reconciliation complete",
			"project", projectID,
			"parsed_cards", report.Parsed,
			"added", report.Added,
			"orphaned_deleted", report.Removed,
			"errors", len(report.Errors),
		)
		reports = append(reports, report)
	}
	logger.Info("Sync process complete.")
	return reports, nil
}

func reconcileProject(ctx context.Context, db *storage.DB, projectID string, sources []storage.Source, opts Options) Report {
	report := Report{ProjectID: projectID}
	logger := opts.Logger

	var parsed []domain.Flashcard
	seen := make(map[string]bool)
	var scanned []int64
	complete := true

	for _, source := range sources {
		logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir, err := localDir(ctx, source, opts)
		if err != nil {
			report.Errors = append(report.Errors, err)
			complete = false
			continue
		}

		cards, errs, err := scanDir(dir)
		report.Errors = append(report.Errors, errs...)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("walking %s: %w", dir, err))
			complete = false
			continue
		}
		for _, c := range cards {
			c.ID = knol.ID(c)
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			parsed = append(parsed, c)
		}
		scanned = append(scanned, source.ID)
	}
	report.Parsed = len(parsed)

	existing, err := db.Collection(ctx, projectID)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return report
	}

	now := opts.Now()
	known := make(map[string]domain.Flashcard, len(existing.Flashcards))
	for _, c := range existing.Flashcards {
		known[c.ID] = c
	}

	merged := make([]domain.Flashcard, 0, len(parsed))
	for _, c := range parsed {
		if prev, ok := known[c.ID]; ok {
			prev.Question, prev.Answer, prev.Context = c.Question, c.Answer, c.Context
			merged = append(merged, prev)
			continue
		}
		fresh := sm2.NewFlashcard(c.ID, c.Question, c.Answer, now)
		fresh.Context = c.Context
		merged = append(merged, fresh)
		report.Added++
		logger.Debug("New card found", "project", projectID, "id", c.ID)
	}

	for _, c := range existing.Flashcards {
		if seen[c.ID] {
			continue
		}
		// A source that failed to scan may still hold this card.
		if !complete {
			merged = append(merged, c)
			continue
		}
		report.Removed++
		logger.Info("Orphaned card, deleting", "project", projectID, "id", c.ID)
	}

	if err := db.ReplaceFlashcards(ctx, projectID, merged); err != nil {
		report.Errors = append(report.Errors, err)
		return report
	}

	for _, id := range scanned {
		if err := db.UpdateSourceLastScanned(ctx, id); err != nil {
			logger.Warn("Failed to update last scanned for source", "source_id", id, "error", err)
		}
	}
	return report
}

// localDir returns the directory holding a source's decks, syncing git
// sources into opts.ReposDir first.
func localDir(ctx context.Context, source storage.Source, opts Options) (string, error) {
	if source.Type != storage.SourceGit {
		return source.Path, nil
	}

	if err := os.MkdirAll(opts.ReposDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	localPath, err := gitsource.LocalPath(opts.ReposDir, source.Path)
	if err != nil {
		return "", err
	}
	if err := gitsource.Sync(ctx, source.Path, localPath, opts.Progress); err != nil {
		return "", err
	}
	return localPath, nil
}

// scanDir parses every markdown file under dir. Per-file parse errors are
// collected; the returned error is reserved for failures of the walk itself.
func scanDir(dir string) ([]domain.Flashcard, []error, error) {
	var cards []domain.Flashcard
	var parseErrors []error

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		cards = append(cards, fileCards...)
		return nil
	})
	return cards, parseErrors, err
}
