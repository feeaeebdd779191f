// Package retention deletes old sessions and their audio clips on a schedule.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/observability/metrics"
)

// DefaultSchedule runs the sweep once a day at midnight.
const DefaultSchedule = "@daily"

// Store is the persistence a sweep needs.
type Store interface {
	RecordingPathsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls what is kept.
type Config struct {
	// Days to keep. Zero disables retention.
	Days     int
	Schedule string
	// ClipDir is swept for clip files older than the cutoff. Optional.
	ClipDir string
}

// Result summarizes one sweep.
type Result struct {
	Cutoff   time.Time `json:"cutoff"`
	Sessions int64     `json:"sessions"`
	Files    int       `json:"files"`
}

// Scheduler runs sweeps on a cron schedule.
type Scheduler struct {
	store   Store
	cfg     Config
	cron    *cron.Cron
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

// New creates a scheduler. It does nothing until Start.
func New(store Store, cfg Config) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	return &Scheduler{
		store:   store,
		cfg:     cfg,
		cron:    cron.New(),
		metrics: metrics.DefaultMetrics,
		logger:  log.With().Str("component", "retention").Logger(),
		now:     time.Now,
	}
}

// Enabled reports whether sweeps delete anything.
func (s *Scheduler) Enabled() bool {
	return s.cfg.Days > 0
}

// Start registers the sweep and starts the cron runner. With retention
// disabled it only logs.
func (s *Scheduler) Start() error {
	if !s.Enabled() {
		s.logger.Info().Msg("Retention disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Int("days", s.cfg.Days).
		Str("schedule", s.cfg.Schedule).
		Msg("Retention scheduler started")
	return nil
}

// Stop stops the cron runner and waits for a running sweep.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("Retention sweep still running at shutdown")
	}
}

// Sweep deletes sessions that started more than Days ago, removes their clip
// files, then removes stray clip files older than the cutoff.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("retention sweep already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if !s.Enabled() {
		return Result{}, nil
	}

	res := Result{Cutoff: s.now().AddDate(0, 0, -s.cfg.Days)}

	paths, err := s.store.RecordingPathsBefore(ctx, res.Cutoff)
	if err != nil {
		s.metrics.RecordRetention(err, 0)
		return res, fmt.Errorf("list expired recordings: %w", err)
	}
	res.Sessions, err = s.store.DeleteSessionsBefore(ctx, res.Cutoff)
	if err != nil {
		s.metrics.RecordRetention(err, 0)
		return res, fmt.Errorf("delete expired sessions: %w", err)
	}

	// Rows are gone; a file that cannot be removed is left for the next sweep.
	for _, p := range paths {
		if removeFile(p) {
			res.Files++
		}
	}
	res.Files += s.sweepDir(res.Cutoff)

	s.metrics.RecordRetention(nil, res.Sessions)
	s.logger.Info().
		Time("cutoff", res.Cutoff).
		Int64("sessions", res.Sessions).
		Int("files", res.Files).
		Msg("Retention sweep complete")
	return res, nil
}

func (s *Scheduler) sweepDir(cutoff time.Time) int {
	if s.cfg.ClipDir == "" {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.ClipDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("dir", s.cfg.ClipDir).Msg("Failed to read clip directory")
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "snore_") || filepath.Ext(name) != ".wav" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if removeFile(filepath.Join(s.cfg.ClipDir, name)) {
			removed++
		}
	}
	return removed
}

func removeFile(path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove clip file")
	}
	return false
}
