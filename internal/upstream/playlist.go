package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

// Timeout constants
const (
	DefaultPlaylistTimeout = 60 * time.Second
)

// Playlist title constants
const (
	DefaultPlaylistName = "Unknown Playlist"
	MinPrefixLength     = 10
	PlaylistSuffix      = " Playlist"
)

// PlaylistItem is one entry returned by a playlist source
type PlaylistItem struct {
	VideoID string
	Title   string
}

// PlaylistSource fetches every item of a playlist by id
type PlaylistSource func(ctx context.Context, playlistID string) ([]PlaylistItem, error)

// PlaylistLister lists the videos of a playlist
type PlaylistLister struct {
	timeout time.Duration
	source  PlaylistSource
}

// NewPlaylistLister creates a lister backed by the ytdlp library
func NewPlaylistLister(timeout time.Duration) *PlaylistLister {
	if timeout <= 0 {
		timeout = DefaultPlaylistTimeout
	}
	return &PlaylistLister{timeout: timeout, source: libraryPlaylistSource}
}

// SetSource replaces the item source
func (p *PlaylistLister) SetSource(source PlaylistSource) {
	p.source = source
}

// List validates the URL and returns the playlist with its videos.
func (p *PlaylistLister) List(ctx context.Context, rawURL string) (*model.Playlist, error) {
	const op = "upstream.ListPlaylist"

	if !platform.IsValidPlaylistURL(rawURL) {
		return nil, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("invalid playlist URL: %s", rawURL))
	}
	playlistID := platform.ExtractPlaylistID(rawURL)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.source(ctx, playlistID)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperr.Wrap(apperr.KindTransientNetwork, op, err)
		}
		return nil, &apperr.Error{Kind: ClassifyOutput(err.Error()), Op: op, Err: err}
	}

	playlist := model.NewPlaylist(playlistID, rawURL)
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		playlist.AddVideo(&model.PlaylistVideo{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   platform.CanonicalVideoURL(it.VideoID),
		})
	}
	playlist.Title = playlistTitle(playlist.Videos)
	return playlist, nil
}

func libraryPlaylistSource(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}
	out := make([]PlaylistItem, 0, len(items))
	for _, it := range items {
		out = append(out, PlaylistItem{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

// playlistTitle derives a title from the common prefix of the first two
// video titles
func playlistTitle(videos []*model.PlaylistVideo) string {
	if len(videos) == 0 {
		return DefaultPlaylistName
	}
	if len(videos) > 1 {
		commonPrefix := findCommonPrefix(videos[0].Title, videos[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return videos[0].Title + PlaylistSuffix
}

func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
