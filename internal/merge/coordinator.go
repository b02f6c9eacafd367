// Package merge multiplexes a separately captured video stream and audio
// stream into one container with ffmpeg. The video stream is copied as is and
// the audio is re-encoded to AAC. Input files are always deleted, and a
// partial output is deleted whenever the merge does not succeed.
package merge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

// FFmpeg constants for merge settings
const (
	// Video is copied without re-encoding
	VideoCodec = "copy"

	// Audio codec settings
	AudioCodec   = "aac"
	AudioBitrate = "192k"

	// Container flags
	FastStartFlag = "+faststart"

	// Executable and I/O constants
	FFmpegCommand      = "ffmpeg"
	ProgressPipeTarget = "pipe:2"
	ProgressTimePrefix = "out_time_us="

	stderrTailLines = 20
)

const op = "merge.Merge"

// Request names the files of one merge
type Request struct {
	VideoPath       string
	AudioPath       string
	OutputPath      string
	DurationSeconds float64 // used for progress; 0 disables it
}

// Coordinator runs ffmpeg merges
type Coordinator struct {
	binary string
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. An empty binary uses ffmpeg from PATH.
func NewCoordinator(binary string, logger *slog.Logger) *Coordinator {
	if binary == "" {
		binary = FFmpegCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{binary: binary, logger: logger.With("component", "merge")}
}

// Binary returns the ffmpeg executable in use
func (c *Coordinator) Binary() string {
	return c.binary
}

// BuildFFmpegArgs builds the ffmpeg command arguments
func (c *Coordinator) BuildFFmpegArgs(req Request) []string {
	return []string{
		"-y",                // Overwrite output file
		"-i", req.VideoPath, // Video input
		"-i", req.AudioPath, // Audio input
		"-map", "0:v:0", // Video from first input
		"-map", "1:a:0", // Audio from second input
		"-c:v", VideoCodec,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-movflags", FastStartFlag, // MP4 optimization
		"-progress", ProgressPipeTarget, // Progress to stderr
		"-nostats",
		req.OutputPath,
	}
}

// Merge runs ffmpeg and blocks until it exits. Failures are MergeError.
func (c *Coordinator) Merge(ctx context.Context, req Request, onProgress func(fraction float64)) error {
	succeeded := false
	defer func() {
		for _, p := range []string{req.VideoPath, req.AudioPath} {
			if err := platform.RemoveIfExists(p); err != nil {
				c.logger.Warn("failed to remove merge input", "path", p, "error", err)
			}
		}
		if !succeeded {
			if err := platform.RemoveIfExists(req.OutputPath); err != nil {
				c.logger.Warn("failed to remove partial merge output", "path", req.OutputPath, "error", err)
			}
		}
	}()

	for _, p := range []string{req.VideoPath, req.AudioPath} {
		if !platform.FileExists(p) {
			return apperr.New(apperr.KindMergeError, op, fmt.Sprintf("input file does not exist: %s", p))
		}
	}

	cmd := exec.CommandContext(ctx, c.binary, c.BuildFFmpegArgs(req)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperr.Wrap(apperr.KindMergeError, op, fmt.Errorf("failed to create stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return apperr.Wrap(apperr.KindMergeError, op, fmt.Errorf("failed to start ffmpeg: %w", err))
	}

	// the pipe must be drained before Wait closes it
	tail := monitorProgress(stderr, req.DurationSeconds, onProgress)
	err = cmd.Wait()

	if ctx.Err() != nil {
		return apperr.Wrap(apperr.KindMergeError, op, fmt.Errorf("merge interrupted: %w", ctx.Err()))
	}
	if err != nil {
		return apperr.Wrap(apperr.KindMergeError, op,
			fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, " | ")))
	}

	info, statErr := os.Stat(req.OutputPath)
	if statErr != nil || info.Size() == 0 {
		return apperr.New(apperr.KindMergeError, op, "ffmpeg produced no output")
	}

	succeeded = true
	return nil
}

// monitorProgress parses ffmpeg -progress output and returns the last
// non-progress lines for error reporting.
func monitorProgress(stderr io.Reader, totalDuration float64, onProgress func(float64)) []string {
	scanner := bufio.NewScanner(stderr)
	var (
		tail []string
		last float64
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Parse progress line: out_time_us=123456
		if strings.HasPrefix(line, ProgressTimePrefix) {
			if totalDuration <= 0 || onProgress == nil {
				continue
			}
			timeMicroseconds, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
			if err != nil {
				continue
			}
			progress := float64(timeMicroseconds) / 1e6 / totalDuration
			if progress > 1.0 {
				progress = 1.0
			}
			if progress > last {
				last = progress
				onProgress(progress)
			}
			continue
		}

		if line == "" || (strings.Contains(line, "=") && !strings.Contains(line, " ")) {
			// other key=value progress fields
			continue
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	// keep draining so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, stderr)
	return tail
}
