// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic cleanup of the temporary upload store.
type Scheduler struct {
	cron       *cron.Cron
	uploadsDir string
	maxAge     time.Duration
	logger     *slog.Logger
}

// NewScheduler creates the upload-store sweeper.
func NewScheduler(uploadsDir string, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:       c,
		uploadsDir: uploadsDir,
		maxAge:     maxAge,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Stale upload sweep: every 15 minutes
	_, err := s.cron.AddFunc("*/15 * * * *", s.sweepStaleUploads)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleUploads()
}

// sweepStaleUploads deletes uploaded statements older than the configured
// maximum age. Conversions delete their own upload on success; the sweep
// catches abandoned ones.
func (s *Scheduler) sweepStaleUploads() {
	entries, err := os.ReadDir(s.uploadsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read uploads dir", slog.Any("error", err))
		}
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.uploadsDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove stale upload",
				slog.String("file", entry.Name()), slog.Any("error", err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("swept stale uploads", slog.Int("removed", removed))
	}
}
