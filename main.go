package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-downloader-api/internal/api"
	"github.com/ytget/yt-downloader-api/internal/app"
	"github.com/ytget/yt-downloader-api/internal/config"
	"github.com/ytget/yt-downloader-api/internal/logging"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	dotEnvFile        = ".env"
	readHeaderTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default $"+config.KeyConfigFile+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := config.Load(configPath, dotEnvFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Init(logging.Config{Level: settings.Log.Level, Format: settings.Log.Format})
	logger.Info("yt-downloader-api starting", "version", version, "addr", settings.Server.Addr)

	a, err := app.New(settings, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: settings.Server.Addr,
		Handler: api.NewRouter(a.Service, api.Options{
			Version:  version,
			Binaries: a.Binaries(),
			Jobs:     a.Jobs,
			Logger:   logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	a.Start(gctx, g)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), a.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
