package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/merge"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/selector"
	"github.com/ytget/yt-downloader-api/internal/store"
	"github.com/ytget/yt-downloader-api/internal/throttle"
	"github.com/ytget/yt-downloader-api/internal/upstream"
)

const defaultPollInterval = 250 * time.Millisecond

// ErrShuttingDown is returned by CreateJob after Shutdown was called
var ErrShuttingDown = apperr.New(apperr.KindUnavailable, "download", "service is shutting down")

// Config holds the directories a service works in
type Config struct {
	// TempDir receives the separately captured video and audio streams.
	TempDir string
	// OutputDir receives finished artifacts.
	OutputDir string
	Logger    *slog.Logger
}

// JobRequest describes the artifact a job should produce. FormatID and
// AudioFormatID are optional.
type JobRequest struct {
	URL           string
	FormatID      string
	AudioFormatID string
}

// Artifact is a finished file ready to be served
type Artifact struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Service handles download jobs
type Service struct {
	cfg       Config
	jobs      *store.JobStore
	throttle  *throttle.Throttle
	client    upstream.Client
	merger    merge.Merger
	playlists PlaylistLister
	logger    *slog.Logger

	metadata singleflight.Group

	// direct maps a direct download request to the job serving it
	directMu     sync.Mutex
	direct       map[string]string
	pollInterval time.Duration

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
	newJobID func() string
}

// NewService creates a new download service. jobs is shared with the
// retention sweeper.
func NewService(cfg Config, jobs *store.JobStore, th *throttle.Throttle, client upstream.Client, merger merge.Merger, playlists PlaylistLister) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.TempDir
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		jobs:      jobs,
		throttle:  th,
		client:    client,
		merger:    merger,
		playlists: playlists,
		logger:    cfg.Logger.With("component", "download"),
		baseCtx:   ctx,
		cancel:    cancel,
		newJobID:  generateJobID,

		direct:       make(map[string]string),
		pollInterval: defaultPollInterval,
	}
}

// CreateJob validates the request, registers a queued job and starts it in
// the background.
func (s *Service) CreateJob(req JobRequest) (model.Job, error) {
	if !platform.IsValidVideoURL(req.URL) {
		return model.Job{}, apperr.New(apperr.KindInvalidInput, "download.CreateJob", "invalid video url")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Job{}, ErrShuttingDown
	}

	job := model.Job{
		ID:                s.newJobID(),
		Status:            model.StatusQueued,
		SourceURL:         req.URL,
		RequestedFormatID: req.FormatID,
		RequestedAudioID:  req.AudioFormatID,
	}
	if err := s.jobs.Create(job); err != nil {
		return model.Job{}, apperr.Wrap(apperr.KindUnhandled, "download.CreateJob", err)
	}
	job, err := s.jobs.Get(job.ID)
	if err != nil {
		return model.Job{}, err
	}

	s.wg.Add(1)
	go s.runJob(s.baseCtx, job)

	s.logger.Info("job created", "job_id", job.ID, "url", req.URL, "format_id", req.FormatID, "audio_id", req.AudioFormatID)
	return job, nil
}

// GetStatus returns a snapshot of the job
func (s *Service) GetStatus(id string) (model.Job, error) {
	return s.jobs.Get(id)
}

// OpenArtifact returns the finished file of a completed job
func (s *Service) OpenArtifact(id string) (*Artifact, error) {
	const op = "download.OpenArtifact"

	job, err := s.jobs.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("job %s is %s", id, job.Status))
	}

	path, err := platform.ResolveInDir(s.cfg.OutputDir, job.ResultRef)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, op, err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("artifact of job %s is gone", id))
	}

	return &Artifact{
		Path:    path,
		Name:    platform.AttachmentName(job.DisplayTitle(), filepath.Ext(path)),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// DirectDownload produces the artifact for req and blocks until it is ready
// or ctx ends. A request matching an earlier one reuses that job while it is
// running or its artifact is still retained. Giving up on the wait leaves
// the job running for later requests.
func (s *Service) DirectDownload(ctx context.Context, req JobRequest) (*Artifact, error) {
	const op = "download.DirectDownload"

	videoID := platform.ExtractVideoID(req.URL)
	if videoID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, op, "invalid video url")
	}
	key := videoID + "/" + req.FormatID + "/" + req.AudioFormatID

	s.directMu.Lock()
	id, ok := s.direct[key]
	if ok {
		if job, err := s.jobs.Get(id); err != nil || job.Status == model.StatusFailed {
			ok = false
		} else if job.Status == model.StatusCompleted {
			if _, err := s.OpenArtifact(id); err != nil {
				ok = false
			}
		}
	}
	if !ok {
		s.pruneDirectLocked()
		job, err := s.CreateJob(req)
		if err != nil {
			s.directMu.Unlock()
			return nil, err
		}
		id = job.ID
		s.direct[key] = id
	}
	s.directMu.Unlock()

	return s.awaitArtifact(ctx, id)
}

// pruneDirectLocked drops entries whose job left the registry
func (s *Service) pruneDirectLocked() {
	for key, id := range s.direct {
		if _, err := s.jobs.Get(id); err != nil {
			delete(s.direct, key)
		}
	}
}

func (s *Service) awaitArtifact(ctx context.Context, id string) (*Artifact, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		job, err := s.jobs.Get(id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case model.StatusCompleted:
			return s.OpenArtifact(id)
		case model.StatusFailed:
			return nil, &apperr.Error{Kind: apperr.Kind(job.ErrorKind), Op: "download.DirectDownload", Msg: job.ErrorDetail}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetMetadata fetches metadata for url without creating a job. Concurrent
// queries for the same video share one upstream call. The shared call runs
// on the service context, so a caller giving up only ends its own wait.
func (s *Service) GetMetadata(ctx context.Context, url string) (*model.MetadataRecord, error) {
	if !platform.IsValidVideoURL(url) {
		return nil, apperr.New(apperr.KindInvalidInput, "download.GetMetadata", "invalid video url")
	}
	key := platform.ExtractVideoID(url)

	ch := s.metadata.DoChan(key, func() (any, error) {
		return s.fetchMetadata(s.baseCtx, url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.MetadataRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListPlaylist returns the entries of a playlist through the throttle
func (s *Service) ListPlaylist(ctx context.Context, url string) (*model.Playlist, error) {
	if s.playlists == nil {
		return nil, apperr.New(apperr.KindNotFound, "download.ListPlaylist", "playlist listing is not configured")
	}
	return throttle.Submit(ctx, s.throttle, "playlist", func(ctx context.Context) (*model.Playlist, error) {
		return s.playlists.List(ctx, url)
	})
}

// Shutdown stops accepting jobs, cancels the running ones and waits for them
// to reach a terminal state or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runJob drives one job to a terminal state. Stage errors and panics are
// recorded on the job and never escape.
func (s *Service) runJob(ctx context.Context, job model.Job) {
	var files []string
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job_id", job.ID, "panic", r)
			s.fail(job.ID, apperr.New(apperr.KindUnhandled, "download", fmt.Sprintf("panic: %v", r)))
		}
		if current, err := s.jobs.Get(job.ID); err == nil && current.Status != model.StatusCompleted {
			s.removeFiles(job.ID, files)
		}
	}()

	track := func(path string) string {
		files = append(files, path)
		return path
	}

	if err := s.execute(ctx, job, track); err != nil {
		s.fail(job.ID, err)
	}
}

func (s *Service) execute(ctx context.Context, job model.Job, track func(string) string) error {
	if err := s.setStatus(job.ID, model.StatusFetchingMetadata); err != nil {
		return err
	}

	meta, err := s.fetchMetadata(ctx, job.SourceURL)
	if err != nil {
		return err
	}
	title := meta.Title
	if _, err := s.jobs.Update(job.ID, model.JobUpdate{Title: &title}); err != nil {
		return apperr.Wrap(apperr.KindUnhandled, "download", err)
	}

	sel, err := selector.Choose(meta.Formats, job.RequestedFormatID, job.RequestedAudioID)
	if err != nil {
		return err
	}

	if !sel.NeedsMerge() {
		return s.captureSingle(ctx, job.ID, sel.Primary, track)
	}
	return s.captureAndMerge(ctx, job.ID, sel, meta.DurationSeconds, track)
}

func (s *Service) captureSingle(ctx context.Context, id string, format model.Format, track func(string) string) error {
	status := model.StatusDownloadingCombined
	if format.Kind() == model.FormatAudioOnly {
		status = model.StatusDownloadingAudio
	}
	if err := s.setStatus(id, status); err != nil {
		return err
	}

	name := id + "." + format.Extension()
	final := track(filepath.Join(s.cfg.OutputDir, name))
	part := track(final + ".part")
	if err := s.captureFormat(ctx, id, format, part, PhaseCombined); err != nil {
		return err
	}
	if err := os.Rename(part, final); err != nil {
		return apperr.Wrap(apperr.KindUnhandled, "download", err)
	}
	return s.complete(id, name)
}

func (s *Service) captureAndMerge(ctx context.Context, id string, sel selector.Selection, duration float64, track func(string) string) error {
	videoPath := track(filepath.Join(s.cfg.TempDir, fmt.Sprintf("%s-video.%s", id, sel.Primary.Extension())))
	audioPath := track(filepath.Join(s.cfg.TempDir, fmt.Sprintf("%s-audio.%s", id, sel.Audio.Extension())))
	name := id + ".mp4"
	outPath := track(filepath.Join(s.cfg.OutputDir, name))

	if err := s.setStatus(id, model.StatusDownloadingVideo); err != nil {
		return err
	}
	if err := s.captureFormat(ctx, id, sel.Primary, videoPath, PhaseVideo); err != nil {
		return err
	}

	if err := s.setStatus(id, model.StatusDownloadingAudio); err != nil {
		return err
	}
	if err := s.captureFormat(ctx, id, *sel.Audio, audioPath, PhaseAudio); err != nil {
		return err
	}

	if err := s.setStatus(id, model.StatusMerging); err != nil {
		return err
	}
	req := merge.Request{
		VideoPath:       videoPath,
		AudioPath:       audioPath,
		OutputPath:      outPath,
		DurationSeconds: duration,
	}
	if err := s.merger.Merge(ctx, req, func(fraction float64) {
		s.progress(id, PhaseMerge.Map(fraction))
	}); err != nil {
		return err
	}
	return s.complete(id, name)
}

// captureFormat opens format through the throttle and writes it to path
func (s *Service) captureFormat(ctx context.Context, id string, format model.Format, path string, phase Phase) error {
	stream, err := s.openStream(ctx, format)
	if err != nil {
		return err
	}
	defer stream.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return apperr.Wrap(apperr.KindUnhandled, "download", err)
	}

	size := stream.Size
	if size <= 0 {
		size = format.SizeBytes
	}
	written, err := Capture(ctx, stream.Body, f, size, phase, func(p int) {
		s.progress(id, p)
	})
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = apperr.Wrap(apperr.KindUnhandled, "download", closeErr)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("stream captured", "job_id", id, "phase", phase.Name, "format_id", format.ID, "bytes", written)
	return nil
}

// openStream opens format through the throttle. The body is read after the
// throttled call returns, so the request is bound to ctx rather than the
// per-call context. A stream opened after the caller stopped waiting is
// closed here.
func (s *Service) openStream(ctx context.Context, format model.Format) (*upstream.Stream, error) {
	var (
		mu        sync.Mutex
		abandoned bool
		opened    *upstream.Stream
	)
	stream, err := throttle.Submit(ctx, s.throttle, "stream", func(context.Context) (*upstream.Stream, error) {
		st, err := s.client.OpenStream(ctx, format)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			st.Body.Close()
			return nil, context.Canceled
		}
		opened = st
		return st, nil
	})
	if err != nil {
		mu.Lock()
		abandoned = true
		if opened != nil {
			opened.Body.Close()
		}
		mu.Unlock()
		return nil, err
	}
	return stream, nil
}

func (s *Service) fetchMetadata(ctx context.Context, url string) (*model.MetadataRecord, error) {
	return throttle.Submit(ctx, s.throttle, "metadata", func(ctx context.Context) (*model.MetadataRecord, error) {
		return s.client.GetMetadata(ctx, url)
	})
}

func (s *Service) setStatus(id string, status model.JobStatus) error {
	if _, err := s.jobs.Update(id, model.JobUpdate{Status: &status}); err != nil {
		return apperr.Wrap(apperr.KindUnhandled, "download", err)
	}
	s.logger.Debug("job status changed", "job_id", id, "status", status)
	return nil
}

func (s *Service) progress(id string, p int) {
	if _, err := s.jobs.Update(id, model.JobUpdate{Progress: &p}); err != nil && !errors.Is(err, store.ErrJobFinished) {
		s.logger.Warn("progress update rejected", "job_id", id, "error", err)
	}
}

func (s *Service) complete(id, resultRef string) error {
	status := model.StatusCompleted
	if _, err := s.jobs.Update(id, model.JobUpdate{Status: &status, ResultRef: &resultRef}); err != nil {
		return apperr.Wrap(apperr.KindUnhandled, "download", err)
	}
	s.logger.Info("job completed", "job_id", id, "artifact", resultRef)
	return nil
}

func (s *Service) fail(id string, err error) {
	kind := apperr.KindOf(err)
	failure := &model.JobFailure{Kind: string(kind), Detail: err.Error()}
	if _, updErr := s.jobs.Update(id, model.JobUpdate{Failure: failure}); updErr != nil {
		s.logger.Warn("failure not recorded", "job_id", id, "error", updErr)
		return
	}
	s.logger.Warn("job failed", "job_id", id, "kind", kind, "error", err)
}

func (s *Service) removeFiles(id string, paths []string) {
	for _, p := range paths {
		if err := platform.RemoveIfExists(p); err != nil {
			s.logger.Warn("cleanup failed", "job_id", id, "path", p, "error", err)
		}
	}
}

// generateJobID returns a time-ordered unique id
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
