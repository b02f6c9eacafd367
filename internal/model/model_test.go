package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat_Kind(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		expected FormatKind
	}{
		{"combined", Format{VCodec: "avc1", ACodec: "mp4a"}, FormatCombined},
		{"video only", Format{VCodec: "vp9", ACodec: "none"}, FormatVideoOnly},
		{"audio only", Format{VCodec: "none", ACodec: "opus"}, FormatAudioOnly},
		{"storyboard", Format{VCodec: "none", ACodec: "none"}, FormatUnknown},
		{"missing codecs", Format{}, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.format.Kind())
		})
	}
}

func TestFormat_Extension(t *testing.T) {
	assert.Equal(t, "mp4", Format{}.Extension())
	assert.Equal(t, "webm", Format{Container: "webm"}.Extension())
}

func TestJob_IsExpired(t *testing.T) {
	now := time.Now()
	cutoff := now.Add(-2 * time.Hour)

	old := Job{Status: StatusCompleted, CompletedAt: now.Add(-3 * time.Hour)}
	fresh := Job{Status: StatusFailed, CompletedAt: now.Add(-time.Hour)}
	running := Job{Status: StatusMerging, CreatedAt: now.Add(-5 * time.Hour)}

	assert.True(t, old.IsExpired(cutoff))
	assert.False(t, fresh.IsExpired(cutoff))
	assert.False(t, running.IsExpired(cutoff))
}

func TestJob_DisplayTitle(t *testing.T) {
	assert.Equal(t, "My Video", Job{Title: "My Video", SourceURL: "https://youtu.be/x"}.DisplayTitle())
	assert.Equal(t, "https://youtu.be/x", Job{SourceURL: "https://youtu.be/x"}.DisplayTitle())
	assert.Equal(t, "https://youtu.be/x", Job{Title: "https://youtu.be/x"}.DisplayTitle())
}

func TestMetadataRecord_FindFormat(t *testing.T) {
	m := &MetadataRecord{Formats: []Format{{ID: "18"}, {ID: "140", Note: "first"}, {ID: "140", Note: "dup"}}}

	f, ok := m.FindFormat("140")
	assert.True(t, ok)
	assert.Equal(t, "first", f.Note)

	_, ok = m.FindFormat("999")
	assert.False(t, ok)
}

func TestPlaylist_AddVideo(t *testing.T) {
	p := NewPlaylist("PL1", "https://www.youtube.com/playlist?list=PL1")
	p.AddVideo(&PlaylistVideo{ID: "a"})
	p.AddVideo(&PlaylistVideo{ID: "b"})

	assert.Equal(t, 2, p.TotalVideos)
	assert.Equal(t, "PL1", p.ID)
}
