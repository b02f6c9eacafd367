package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URL parameters and separators
const (
	PlaylistParam  = "list="
	ParamSeparator = "&"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	videoHosts = map[string]bool{
		"youtube.com":       true,
		"www.youtube.com":   true,
		"m.youtube.com":     true,
		"music.youtube.com": true,
		"youtu.be":          true,
		"www.youtu.be":      true,
	}

	// path prefixes that carry the id as the next segment
	videoPathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}
)

// ExtractVideoID returns the 11 character video id of a supported video URL,
// or an empty string when the URL is not one.
func ExtractVideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if !videoHosts[host] {
		return ""
	}

	var id string
	switch {
	case strings.HasSuffix(host, "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	default:
		for _, prefix := range videoPathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// IsValidVideoURL checks if the URL points at a single video
func IsValidVideoURL(raw string) bool {
	return ExtractVideoID(raw) != ""
}

// CanonicalVideoURL rewrites any supported URL to the watch form
func CanonicalVideoURL(videoID string) string {
	return fmt.Sprintf(YouTubeVideoURLTemplate, videoID)
}

// IsValidPlaylistURL checks if the URL is a valid YouTube playlist URL
func IsValidPlaylistURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !videoHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	return ExtractPlaylistID(raw) != ""
}

// ExtractPlaylistID extracts the playlist ID from various URL formats
func ExtractPlaylistID(raw string) string {
	if !strings.Contains(raw, PlaylistParam) {
		return ""
	}
	parts := strings.SplitN(raw, PlaylistParam, 2)
	playlistPart := parts[1]
	if strings.Contains(playlistPart, ParamSeparator) {
		playlistPart = strings.Split(playlistPart, ParamSeparator)[0]
	}
	if i := strings.IndexAny(playlistPart, "#/"); i >= 0 {
		playlistPart = playlistPart[:i]
	}
	return playlistPart
}
