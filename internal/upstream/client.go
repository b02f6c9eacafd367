// Package upstream talks to the video platform. Client is the narrow contract
// the pipeline depends on; YTDLP implements it with go-ytdlp for
// metadata and plain HTTP for stream bytes. How identities and egress routes
// are chosen stays inside this package behind Strategy.
package upstream

import (
	"context"
	"io"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// Client supplies metadata and raw stream handles. Failures carry an apperr
// kind of NotFound, RateLimited, Forbidden or TransientNetwork.
type Client interface {
	GetMetadata(ctx context.Context, url string) (*model.MetadataRecord, error)
	OpenStream(ctx context.Context, format model.Format) (*Stream, error)
}

// Stream is an open byte stream. Size is -1 when the upstream does not
// announce a length.
type Stream struct {
	Body io.ReadCloser
	Size int64
}
