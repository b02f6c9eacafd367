package download

import (
	"context"
	"errors"
	"io"

	"github.com/ytget/yt-downloader-api/internal/apperr"
)

// Phase is the slice of the 0-100 job progress owned by one capture or merge
type Phase struct {
	Name  string
	Start int
	End   int
}

var (
	PhaseCombined = Phase{Name: "combined", Start: 0, End: 100}
	PhaseVideo    = Phase{Name: "video", Start: 0, End: 40}
	PhaseAudio    = Phase{Name: "audio", Start: 40, End: 85}
	PhaseMerge    = Phase{Name: "merge", Start: 85, End: 100}
)

// chunkSize is the copy buffer used for stream capture
const chunkSize = 64 * 1024

// Map converts a fraction of this phase into overall job progress.
func (p Phase) Map(fraction float64) int {
	fraction = min(max(fraction, 0), 1)
	return p.Start + int(fraction*float64(p.End-p.Start))
}

// Capture copies src into sink chunk by chunk and reports overall progress
// after each chunk. With an unknown size (expectedSize <= 0) nothing is
// reported until the copy finishes. Reports never decrease.
func Capture(ctx context.Context, src io.Reader, sink io.Writer, expectedSize int64, phase Phase, onProgress func(int)) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	last := -1

	report := func(p int) {
		if onProgress != nil && p > last {
			last = p
			onProgress(p)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := sink.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, apperr.Wrap(apperr.KindUnhandled, "download.Capture", err)
			}
			if w != n {
				return written, apperr.Wrap(apperr.KindUnhandled, "download.Capture", io.ErrShortWrite)
			}
			if expectedSize > 0 {
				pct := written * 100 / expectedSize
				report(phase.Map(float64(min(pct, 100)) / 100))
			}
		}

		if errors.Is(readErr, io.EOF) {
			report(phase.End)
			return written, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, apperr.Wrap(apperr.KindTransientNetwork, "download.Capture", readErr)
		}
	}
}
