package platform

import "testing"

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "watch URL",
			url:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "watch URL with playlist and timestamp",
			url:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&t=30",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "short link",
			url:      "https://youtu.be/dQw4w9WgXcQ?si=abc",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "shorts",
			url:      "https://youtube.com/shorts/dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "embed",
			url:      "https://www.youtube.com/embed/dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "mobile and music hosts",
			url:      "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "dQw4w9WgXcQ",
		},
		{
			name:     "foreign host",
			url:      "https://vimeo.com/watch?v=dQw4w9WgXcQ",
			expected: "",
		},
		{
			name:     "lookalike host",
			url:      "https://youtube.com.evil.example/watch?v=dQw4w9WgXcQ",
			expected: "",
		},
		{
			name:     "bad id length",
			url:      "https://www.youtube.com/watch?v=short",
			expected: "",
		},
		{
			name:     "no scheme",
			url:      "www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "",
		},
		{
			name:     "ftp scheme",
			url:      "ftp://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expected: "",
		},
		{
			name:     "playlist only",
			url:      "https://www.youtube.com/playlist?list=PL123",
			expected: "",
		},
		{
			name:     "empty",
			url:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractVideoID(tt.url)
			if result != tt.expected {
				t.Errorf("expected %q, got %q for URL: %s", tt.expected, result, tt.url)
			}
			if IsValidVideoURL(tt.url) != (tt.expected != "") {
				t.Errorf("IsValidVideoURL(%s) disagrees with ExtractVideoID", tt.url)
			}
		})
	}
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "extract playlist ID from watch URL",
			url:      "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID",
			expected: "PLAYLIST_ID",
		},
		{
			name:     "extract playlist ID from playlist URL",
			url:      "https://www.youtube.com/playlist?list=PLAYLIST_ID",
			expected: "PLAYLIST_ID",
		},
		{
			name:     "extract playlist ID with additional parameters",
			url:      "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&index=1&t=30",
			expected: "PLAYLIST_ID",
		},
		{
			name:     "fragment is dropped",
			url:      "https://www.youtube.com/playlist?list=PLAYLIST_ID#top",
			expected: "PLAYLIST_ID",
		},
		{
			name:     "URL without playlist parameter",
			url:      "https://www.youtube.com/watch?v=VIDEO_ID",
			expected: "",
		},
		{
			name:     "URL with empty playlist parameter",
			url:      "https://www.youtube.com/watch?v=VIDEO_ID&list=",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractPlaylistID(tt.url)
			if result != tt.expected {
				t.Errorf("expected %q, got %q for URL: %s", tt.expected, result, tt.url)
			}
		})
	}
}

func TestIsValidPlaylistURL(t *testing.T) {
	if !IsValidPlaylistURL("https://www.youtube.com/playlist?list=PL123") {
		t.Error("expected playlist URL to be valid")
	}
	if IsValidPlaylistURL("https://example.com/playlist?list=PL123") {
		t.Error("expected foreign host to be rejected")
	}
	if IsValidPlaylistURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ") {
		t.Error("expected URL without list to be rejected")
	}
}

func TestCanonicalVideoURL(t *testing.T) {
	if got := CanonicalVideoURL("dQw4w9WgXcQ"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("unexpected canonical URL %s", got)
	}
}
