// Command yt-downloader runs one download job from the command line and
// copies the artifact to a local path.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-downloader-api/internal/app"
	"github.com/ytget/yt-downloader-api/internal/config"
	"github.com/ytget/yt-downloader-api/internal/download"
	"github.com/ytget/yt-downloader-api/internal/logging"
	"github.com/ytget/yt-downloader-api/internal/model"
)

const pollInterval = 500 * time.Millisecond

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		url        = flag.String("url", "", "video URL")
		formatID   = flag.String("format", "", "format id (default: best available)")
		audioID    = flag.String("audio", "", "audio format id to merge with the video")
		output     = flag.String("o", ".", "output file or directory")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: yt-downloader -url <video url> [-format id] [-audio id] [-o path]")
		os.Exit(2)
	}

	if err := run(*configPath, download.JobRequest{URL: *url, FormatID: *formatID, AudioFormatID: *audioID}, *output); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, req download.JobRequest, output string) error {
	settings, err := config.Load(configPath, ".env")
	if err != nil {
		return err
	}
	logger := logging.Init(logging.Config{Level: settings.Log.Level, Format: "text", Writer: os.Stderr})

	a, err := app.New(settings, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	a.Start(gctx, g)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	job, err := a.Service.CreateJob(req)
	if err != nil {
		return err
	}

	job, err = waitForJob(ctx, a, job.ID)
	if err != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
		defer done()
		return errors.Join(err, a.Shutdown(shutdownCtx))
	}
	if job.Status == model.StatusFailed {
		return fmt.Errorf("%s: %s", job.ErrorKind, job.ErrorDetail)
	}

	artifact, err := a.Service.OpenArtifact(job.ID)
	if err != nil {
		return err
	}
	dest := output
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		dest = filepath.Join(output, artifact.Name)
	}
	if err := copyFile(artifact.Path, dest); err != nil {
		return err
	}
	fmt.Println(dest)
	return nil
}

func waitForJob(ctx context.Context, a *app.App, id string) (model.Job, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := -1
	for {
		job, err := a.Service.GetStatus(id)
		if err != nil {
			return model.Job{}, err
		}
		if job.Progress != last {
			last = job.Progress
			fmt.Fprintf(os.Stderr, "\r%-22s %3d%%", job.Status, job.Progress)
		}
		if job.Status.IsFinished() {
			fmt.Fprintln(os.Stderr)
			return job, nil
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
