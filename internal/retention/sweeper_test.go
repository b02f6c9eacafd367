package retention

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/store"
)

type sweepFixture struct {
	sweeper   *Sweeper
	jobs      *store.JobStore
	now       time.Time
	tempDir   string
	outputDir string
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		jobs:      store.NewJobStore(),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		tempDir:   t.TempDir(),
		outputDir: t.TempDir(),
	}
	f.sweeper = New(Config{
		Window:    2 * time.Hour,
		TempDir:   f.tempDir,
		OutputDir: f.outputDir,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, f.jobs)
	f.sweeper.SetClock(func() time.Time { return f.now })
	return f
}

// addJob registers a job that reached status at the given time. Completed
// jobs get "<id>.mp4" as their artifact.
func (f *sweepFixture) addJob(t *testing.T, status model.JobStatus, at time.Time) string {
	t.Helper()
	id := uuid.NewString()
	f.jobs.SetClock(func() time.Time { return at })
	require.NoError(t, f.jobs.Create(model.Job{ID: id}))

	switch status {
	case model.StatusCompleted:
		for _, st := range []model.JobStatus{model.StatusFetchingMetadata, model.StatusDownloadingCombined} {
			_, err := f.jobs.Update(id, model.JobUpdate{Status: &st})
			require.NoError(t, err)
		}
		done := model.StatusCompleted
		ref := id + ".mp4"
		_, err := f.jobs.Update(id, model.JobUpdate{Status: &done, ResultRef: &ref})
		require.NoError(t, err)
	case model.StatusFailed:
		_, err := f.jobs.Update(id, model.JobUpdate{Failure: &model.JobFailure{Kind: "forbidden", Detail: "x"}})
		require.NoError(t, err)
	}
	return id
}

func writeFile(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweep_EvictsExpiredJobsAndArtifacts(t *testing.T) {
	f := newSweepFixture(t)
	old := f.now.Add(-3 * time.Hour)
	recent := f.now.Add(-30 * time.Minute)

	expiredID := f.addJob(t, model.StatusCompleted, old)
	expiredArtifact := writeFile(t, f.outputDir, expiredID+".mp4", old)

	failedID := f.addJob(t, model.StatusFailed, old)
	recentID := f.addJob(t, model.StatusCompleted, recent)
	recentArtifact := writeFile(t, f.outputDir, recentID+".mp4", recent)

	report := f.sweeper.Sweep()

	assert.ElementsMatch(t, []string{expiredID, failedID}, report.EvictedJobs)
	assert.Contains(t, report.RemovedFiles, expiredArtifact)
	assert.NoFileExists(t, expiredArtifact)
	assert.FileExists(t, recentArtifact)

	_, err := f.jobs.Get(recentID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestSweep_RemovesStaleOrphanFiles(t *testing.T) {
	f := newSweepFixture(t)
	old := f.now.Add(-5 * time.Hour)

	orphanID := uuid.NewString()
	staleVideo := writeFile(t, f.tempDir, orphanID+"-video.mp4", old)
	stalePart := writeFile(t, f.outputDir, orphanID+".mp4.part", old)
	freshOrphan := writeFile(t, f.tempDir, uuid.NewString()+"-audio.m4a", f.now.Add(-time.Minute))
	foreign := writeFile(t, f.tempDir, "notes.txt", old)

	activeID := f.addJob(t, model.StatusQueued, old)
	activeFile := writeFile(t, f.tempDir, activeID+"-video.mp4", old)

	report := f.sweeper.Sweep()

	assert.Empty(t, report.EvictedJobs)
	assert.ElementsMatch(t, []string{staleVideo, stalePart}, report.RemovedFiles)
	assert.NoFileExists(t, staleVideo)
	assert.NoFileExists(t, stalePart)
	assert.FileExists(t, freshOrphan)
	assert.FileExists(t, foreign)
	assert.FileExists(t, activeFile)
	assert.Zero(t, report.Errors)
}

func TestSweep_MissingDirectoriesAreIgnored(t *testing.T) {
	f := newSweepFixture(t)
	f.sweeper.cfg.TempDir = filepath.Join(f.tempDir, "missing")

	report := f.sweeper.Sweep()
	assert.Zero(t, report.Errors)
}

func TestJobIDOf(t *testing.T) {
	id := "0190a4c2-7a5e-7b3c-9d1e-2f3a4b5c6d7e"
	tests := []struct {
		name     string
		expected bool
	}{
		{id + ".mp4", true},
		{id + "-video.webm", true},
		{id + ".mp4.part", true},
		{id, false},
		{id + "x.mp4", false},
		{"not-a-job-file-name-at-all-but-long-enough.mp4", false},
		{"video.mp4", false},
	}

	for _, tt := range tests {
		got, ok := jobIDOf(tt.name)
		if ok != tt.expected {
			t.Errorf("jobIDOf(%q) ok = %v, expected %v", tt.name, ok, tt.expected)
		}
		if ok && got != id {
			t.Errorf("jobIDOf(%q) = %q", tt.name, got)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newSweepFixture(t)
	f.sweeper.cfg.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sweeper.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
