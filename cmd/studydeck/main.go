package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
	"github.com/conorfennell/studydeck/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "studydeck:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("studydeck", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	newProject := flags.String("new-project", "", "Create a project with this name and exit")
	addSourcePath := flags.String("add-source", "", "Add a deck source (directory or git URL) and exit")
	project := flags.String("project", "", "Project ID the added source feeds")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *newProject != "":
		p, err := db.CreateProject(ctx, uuid.NewString(), *newProject)
		if err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	case *addSourcePath != "":
		if *project == "" {
			return errors.New("--add-source requires --project")
		}
		return addSource(ctx, db, logger, *addSourcePath, *project)
	}

	if cfg.SyncOnStart {
		if _, err := sync.RunSync(ctx, db, sync.Options{ReposDir: cfg.ReposDir, Progress: os.Stderr, Logger: logger}); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}

	srv, err := web.NewServer(db, web.Options{
		SaveTimeout: cfg.SaveTimeout,
		SessionTTL:  cfg.SessionTTL,
		ReposDir:    cfg.ReposDir,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// addSource registers a deck source for a project. Adding a path that is
// already registered is not an error.
func addSource(ctx context.Context, db *storage.DB, logger *slog.Logger, path, projectID string) error {
	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Info("Source already exists", "id", existing.ID, "path", path, "project", existing.ProjectID)
		return nil
	}
	id, err := db.InsertSource(ctx, path, storage.SourceType(path), projectID)
	if err != nil {
		return err
	}
	logger.Info("Source added", "id", id, "path", path, "project", projectID)
	return nil
}
