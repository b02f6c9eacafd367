package download

import (
	"context"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	CreateJob(req JobRequest) (model.Job, error)
	DirectDownload(ctx context.Context, req JobRequest) (*Artifact, error)
	GetStatus(id string) (model.Job, error)
	OpenArtifact(id string) (*Artifact, error)
	GetMetadata(ctx context.Context, url string) (*model.MetadataRecord, error)
	ListPlaylist(ctx context.Context, url string) (*model.Playlist, error)
}

// PlaylistLister enumerates the entries of a playlist URL
type PlaylistLister interface {
	List(ctx context.Context, url string) (*model.Playlist, error)
}

var _ Downloader = (*Service)(nil)
