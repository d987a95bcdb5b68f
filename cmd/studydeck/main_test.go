package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/studydeck/internal/storage"
)

func TestAddSourceTwice(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.CreateProject(ctx, "bio", "Biology")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	require.NoError(t, addSource(ctx, db, logger, dir, "bio"))
	require.NoError(t, addSource(ctx, db, logger, dir, "bio"), "re-adding a source is harmless")

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, dir, sources[0].Path)
	assert.Equal(t, storage.SourceLocal, sources[0].Type)
}
