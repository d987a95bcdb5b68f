package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https", "https://github.com/me/decks.git", filepath.Join("repos", "github.com", "me", "decks"), false},
		{"https without suffix", "https://gitlab.com/me/decks", filepath.Join("repos", "gitlab.com", "me", "decks"), false},
		{"scp-like ssh", "git@github.com:me/decks.git", filepath.Join("repos", "github.com", "me", "decks"), false},
		{"local path", "/home/me/notes", "", true},
		{"missing host", "git@:me/decks.git", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LocalPath("repos", tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncExistingCheckoutWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	// An existing checkout without an origin remote cannot be pulled.
	err = Sync(context.Background(), "https://example.invalid/decks.git", dir, nil)
	assert.Error(t, err)
}

func TestSyncNotARepository(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: x\nA: y\n"), 0o644))

	err := Sync(context.Background(), "https://example.invalid/decks.git", dir, nil)
	assert.ErrorContains(t, err, "failed to open existing repo")
}
