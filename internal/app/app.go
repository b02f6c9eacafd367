// Package app assembles the download pipeline from settings. Both the HTTP
// server and the command-line downloader build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-downloader-api/internal/config"
	"github.com/ytget/yt-downloader-api/internal/download"
	"github.com/ytget/yt-downloader-api/internal/logging"
	"github.com/ytget/yt-downloader-api/internal/merge"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/retention"
	"github.com/ytget/yt-downloader-api/internal/store"
	"github.com/ytget/yt-downloader-api/internal/throttle"
	"github.com/ytget/yt-downloader-api/internal/upstream"
)

// App holds the wired services
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Jobs     *store.JobStore
	Throttle *throttle.Throttle
	Service  *download.Service
	Sweeper  *retention.Sweeper
}

// New wires every component. Working directories are created here.
func New(s *config.Settings, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, dir := range []string{s.Storage.TempDir, s.Storage.OutputDir} {
		if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	strategy, err := upstream.NewStrategy(upstream.StrategyKind(s.Upstream.Transport), s.Upstream.Proxies, s.Upstream.UserAgents)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	th := throttle.New(throttle.Config{
		MinDelay:  s.Throttle.MinDelay,
		Jitter:    s.Throttle.Jitter,
		PerMinute: s.Throttle.PerMinute,
		Policy: throttle.Policy{
			RateLimitRetries:   s.Throttle.RateLimitRetries,
			RateLimitBaseDelay: s.Throttle.RateLimitDelay,
			NetworkRetries:     s.Throttle.NetworkRetries,
			NetworkBaseDelay:   s.Throttle.NetworkDelay,
			MaxBackoff:         s.Throttle.MaxBackoff,
		},
		Logger: logger,
	})

	client := upstream.NewYTDLP(upstream.YTDLPConfig{
		Binary:      s.Upstream.YTDLPPath,
		CallTimeout: s.Upstream.CallTimeout,
		CookiesFile: s.Upstream.CookiesFile,
		Strategy:    strategy,
		Logger:      logger,
	})

	jobs := store.NewJobStore()
	svc := download.NewService(download.Config{
		TempDir:   s.Storage.TempDir,
		OutputDir: s.Storage.OutputDir,
		Logger:    logger,
	}, jobs, th, client, merge.NewCoordinator(s.Upstream.FFmpegPath, logger), upstream.NewPlaylistLister(s.Upstream.PlaylistTimeout))

	sweeper := retention.New(retention.Config{
		Window:    s.Storage.RetentionWindow,
		Interval:  s.Storage.SweepInterval,
		TempDir:   s.Storage.TempDir,
		OutputDir: s.Storage.OutputDir,
		Logger:    logger,
	}, jobs)

	logging.WithComponent(logger, "app").Info("pipeline ready",
		"transport", strategy.Kind(),
		"temp_dir", s.Storage.TempDir,
		"output_dir", s.Storage.OutputDir)

	return &App{
		Settings: s,
		Logger:   logger,
		Jobs:     jobs,
		Throttle: th,
		Service:  svc,
		Sweeper:  sweeper,
	}, nil
}

// Binaries lists the external programs the pipeline runs
func (a *App) Binaries() []string {
	return []string{a.Settings.Upstream.YTDLPPath, a.Settings.Upstream.FFmpegPath}
}

// Start runs the throttle consumer and the retention sweeper in g until ctx
// is done.
func (a *App) Start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.Throttle.Run(ctx) })
	g.Go(func() error { return a.Sweeper.Run(ctx) })
}

// Shutdown fails in-flight jobs and waits for them within ctx
func (a *App) Shutdown(ctx context.Context) error {
	return a.Service.Shutdown(ctx)
}
