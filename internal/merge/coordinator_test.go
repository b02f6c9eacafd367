package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-downloader-api/internal/apperr"
)

const (
	// writes progress then the output file named by the last argument
	successScript = `for last; do :; done
echo "out_time_us=2500000" >&2
echo "progress=continue" >&2
echo "out_time_us=1000000" >&2
echo "out_time_us=10000000" >&2
echo "progress=end" >&2
echo merged > "$last"
`
	failureScript = `for last; do :; done
echo partial > "$last"
echo "Stream map '1:a:0' matches no streams." >&2
exit 1
`
	hangScript = `for last; do :; done
echo partial > "$last"
exec sleep 10
`
	emptyOutputScript = `exit 0
`
)

type fixture struct {
	coordinator *Coordinator
	req         Request
}

func newFixture(t *testing.T, script string) fixture {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755))

	req := Request{
		VideoPath:       filepath.Join(dir, "job.video.mp4"),
		AudioPath:       filepath.Join(dir, "job.audio.m4a"),
		OutputPath:      filepath.Join(dir, "job.mp4"),
		DurationSeconds: 10,
	}
	require.NoError(t, os.WriteFile(req.VideoPath, []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(req.AudioPath, []byte("audio"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fixture{coordinator: NewCoordinator(bin, logger), req: req}
}

func assertGone(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", p)
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	c := NewCoordinator("", nil)
	args := c.BuildFFmpegArgs(Request{VideoPath: "/v.mp4", AudioPath: "/a.m4a", OutputPath: "/out.mp4"})

	expectedArgs := []string{
		"-y",
		"-i", "/v.mp4",
		"-i", "/a.m4a",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", VideoCodec,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-movflags", FastStartFlag,
		"-progress", "pipe:2",
		"-nostats",
		"/out.mp4",
	}

	if len(args) != len(expectedArgs) {
		t.Fatalf("Expected %d args, got %d", len(expectedArgs), len(args))
	}
	for i, expected := range expectedArgs {
		if args[i] != expected {
			t.Errorf("Arg %d: expected %s, got %s", i, expected, args[i])
		}
	}
	assert.Equal(t, FFmpegCommand, c.Binary())
}

func TestMerge_Success(t *testing.T) {
	f := newFixture(t, successScript)

	var (
		mu       sync.Mutex
		progress []float64
	)
	err := f.coordinator.Merge(context.Background(), f.req, func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	data, err := os.ReadFile(f.req.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "merged\n", string(data))
	assertGone(t, f.req.VideoPath, f.req.AudioPath)

	// regressions are dropped and values are capped at 1
	assert.Equal(t, []float64{0.25, 1.0}, progress)
}

func TestMerge_FailureCleansEverything(t *testing.T) {
	f := newFixture(t, failureScript)

	err := f.coordinator.Merge(context.Background(), f.req, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperr.ErrMergeError))
	assert.Contains(t, err.Error(), "matches no streams")
	assertGone(t, f.req.VideoPath, f.req.AudioPath, f.req.OutputPath)
}

func TestMerge_CancellationCleansEverything(t *testing.T) {
	f := newFixture(t, hangScript)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := f.coordinator.Merge(ctx, f.req, nil)
	require.Error(t, err)

	assert.Equal(t, apperr.KindMergeError, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assertGone(t, f.req.VideoPath, f.req.AudioPath, f.req.OutputPath)
}

func TestMerge_NoOutputIsFailure(t *testing.T) {
	f := newFixture(t, emptyOutputScript)

	err := f.coordinator.Merge(context.Background(), f.req, nil)
	assert.Equal(t, apperr.KindMergeError, apperr.KindOf(err))
	assertGone(t, f.req.VideoPath, f.req.AudioPath, f.req.OutputPath)
}

func TestMerge_MissingInput(t *testing.T) {
	f := newFixture(t, successScript)
	require.NoError(t, os.Remove(f.req.AudioPath))

	err := f.coordinator.Merge(context.Background(), f.req, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "does not exist"))
	assertGone(t, f.req.VideoPath)
}

func TestMerge_MissingBinary(t *testing.T) {
	f := newFixture(t, successScript)
	f.coordinator = NewCoordinator(filepath.Join(t.TempDir(), "no-ffmpeg"), nil)

	err := f.coordinator.Merge(context.Background(), f.req, nil)
	assert.Equal(t, apperr.KindMergeError, apperr.KindOf(err))
	assertGone(t, f.req.VideoPath, f.req.AudioPath, f.req.OutputPath)
}

func TestMonitorProgress_KeepsDiagnosticTail(t *testing.T) {
	input := "frame=10\nfps=0.0\nout_time_us=500000\n[aac @ 0x1] Too many bits\nConversion failed!\n"

	tail := monitorProgress(strings.NewReader(input), 0, nil)

	assert.Equal(t, []string{"[aac @ 0x1] Too many bits", "Conversion failed!"}, tail)
}
