// Package retention evicts finished jobs once their retention window has
// passed and removes the files they leave behind.
package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

const (
	DefaultWindow   = 2 * time.Hour
	DefaultInterval = time.Hour
)

// JobSource is the part of the job registry the sweeper needs
type JobSource interface {
	Expired(cutoff time.Time) []model.Job
	Evict(id string) (model.Job, bool)
	GetAll() []model.Job
}

// Config configures a Sweeper
type Config struct {
	Window    time.Duration
	Interval  time.Duration
	TempDir   string
	OutputDir string
	Logger    *slog.Logger
}

// Report summarises one sweep
type Report struct {
	EvictedJobs  []string
	RemovedFiles []string
	Errors       int
}

// Sweeper periodically cleans up expired jobs and stale files
type Sweeper struct {
	cfg    Config
	jobs   JobSource
	logger *slog.Logger
	now    func() time.Time
}

// New creates a sweeper over jobs
func New(cfg Config, jobs JobSource) *Sweeper {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:    cfg,
		jobs:   jobs,
		logger: logger.With("component", "retention"),
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report := s.Sweep()
			if len(report.EvictedJobs) > 0 || len(report.RemovedFiles) > 0 || report.Errors > 0 {
				s.logger.Info("retention sweep",
					"evicted_jobs", len(report.EvictedJobs),
					"removed_files", len(report.RemovedFiles),
					"errors", report.Errors)
			}
		}
	}
}

// Sweep runs one cleanup pass. Expired jobs are evicted along with their
// artifact; then job files older than the window are removed from the temp
// and output directories unless a retained job owns them.
func (s *Sweeper) Sweep() Report {
	var report Report
	cutoff := s.now().Add(-s.cfg.Window)

	for _, job := range s.jobs.Expired(cutoff) {
		if _, ok := s.jobs.Evict(job.ID); !ok {
			continue
		}
		report.EvictedJobs = append(report.EvictedJobs, job.ID)
		if job.ResultRef == "" || s.cfg.OutputDir == "" {
			continue
		}
		path, err := platform.ResolveInDir(s.cfg.OutputDir, job.ResultRef)
		if err != nil {
			continue
		}
		s.remove(path, &report)
	}

	owned := make(map[string]struct{})
	for _, job := range s.jobs.GetAll() {
		owned[job.ID] = struct{}{}
	}

	for _, dir := range s.dirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("cannot list directory", "dir", dir, "error", err)
				report.Errors++
			}
			continue
		}
		for _, entry := range entries {
			id, ok := jobIDOf(entry.Name())
			if !ok || entry.IsDir() {
				continue
			}
			if _, retained := owned[id]; retained {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			s.remove(filepath.Join(dir, entry.Name()), &report)
		}
	}

	return report
}

func (s *Sweeper) remove(path string, report *Report) {
	if !platform.FileExists(path) {
		return
	}
	if err := platform.RemoveIfExists(path); err != nil {
		s.logger.Warn("cannot remove file", "path", path, "error", err)
		report.Errors++
		return
	}
	report.RemovedFiles = append(report.RemovedFiles, path)
}

func (s *Sweeper) dirs() []string {
	var dirs []string
	for _, d := range []string{s.cfg.TempDir, s.cfg.OutputDir} {
		if d != "" && (len(dirs) == 0 || filepath.Clean(dirs[0]) != filepath.Clean(d)) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// jobIDOf extracts the job id a file name starts with. Files not named after
// a job are never touched.
func jobIDOf(name string) (string, bool) {
	const idLen = 36
	if len(name) <= idLen || !strings.ContainsRune(".-", rune(name[idLen])) {
		return "", false
	}
	id := name[:idLen]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
