package model

// FormatKind tells which elementary streams a format carries
type FormatKind string

const (
	FormatAudioOnly FormatKind = "audio_only"
	FormatVideoOnly FormatKind = "video_only"
	FormatCombined  FormatKind = "combined"
	FormatUnknown   FormatKind = "unknown"
)

// codecNone is the value upstream reports for an absent stream
const codecNone = "none"

// Format is one encoded variant of a source video.
type Format struct {
	ID           string            `json:"format_id"`
	Container    string            `json:"ext"`
	Note         string            `json:"format_note,omitempty"`
	VCodec       string            `json:"vcodec,omitempty"`
	ACodec       string            `json:"acodec,omitempty"`
	AudioBitrate float64           `json:"abr,omitempty"` // kbps
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	FPS          float64           `json:"fps,omitempty"`
	SizeBytes    int64             `json:"filesize,omitempty"` // 0 when unknown
	StreamURL    string            `json:"-"`
	Headers      map[string]string `json:"-"`
}

// HasAudio reports whether the format carries an audio stream
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != codecNone
}

// HasVideo reports whether the format carries a video stream
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != codecNone
}

// Kind derives the format kind from its codecs
func (f Format) Kind() FormatKind {
	switch {
	case f.HasAudio() && f.HasVideo():
		return FormatCombined
	case f.HasAudio():
		return FormatAudioOnly
	case f.HasVideo():
		return FormatVideoOnly
	default:
		return FormatUnknown
	}
}

// Extension returns the container extension, defaulting to mp4
func (f Format) Extension() string {
	if f.Container == "" {
		return "mp4"
	}
	return f.Container
}
