package cron

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepStaleUploads(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stale := filepath.Join(dir, "stale.pdf")
	require.NoError(t, os.WriteFile(stale, []byte("%PDF"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, "fresh.pdf")
	require.NoError(t, os.WriteFile(fresh, []byte("%PDF"), 0o644))

	s := NewScheduler(dir, time.Hour, logger)
	s.sweepStaleUploads()

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale upload should be removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh upload should survive")
}

func TestSweepMissingDirIsQuiet(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(filepath.Join(t.TempDir(), "nope"), time.Hour, logger)
	s.sweepStaleUploads()
}
