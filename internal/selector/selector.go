// Package selector filters, deduplicates and ranks the formats of a metadata
// record and picks the stream(s) a job captures.
package selector

import (
	"fmt"
	"sort"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/model"
)

const op = "selector.Choose"

// Selection is the outcome of format selection for one job. Audio is set
// only for the merge path.
type Selection struct {
	Primary model.Format
	Audio   *model.Format
}

// NeedsMerge reports whether the selection pairs separate video and audio
func (s Selection) NeedsMerge() bool {
	return s.Audio != nil
}

// Rank returns the audio-only candidates ordered by bitrate and the video
// candidates ordered by height, both descending. Each list is deduplicated by
// format id keeping the first occurrence, and equal metrics keep upstream
// order.
func Rank(formats []model.Format) (audio, video []model.Format) {
	seenAudio := make(map[string]bool)
	seenVideo := make(map[string]bool)

	for _, f := range formats {
		switch {
		case f.HasAudio() && !f.HasVideo() && f.AudioBitrate > 0:
			if !seenAudio[f.ID] {
				seenAudio[f.ID] = true
				audio = append(audio, f)
			}
		case f.HasVideo() && f.Height > 0:
			if !seenVideo[f.ID] {
				seenVideo[f.ID] = true
				video = append(video, f)
			}
		}
	}

	sort.SliceStable(audio, func(i, j int) bool {
		return audio[i].AudioBitrate > audio[j].AudioBitrate
	})
	sort.SliceStable(video, func(i, j int) bool {
		return video[i].Height > video[j].Height
	})
	return audio, video
}

// Choose picks the stream(s) to capture.
//
// A requested id resolves directly: a video-only format is paired with the
// best audio, an audio-only or combined format is captured alone. Without a
// request the best combined format wins, else the best video-only format
// paired with the best audio-only format.
//
// A requested audio id replaces the automatic audio pick and forces the merge
// path; without a video id it is paired with the highest video format.
func Choose(formats []model.Format, requestedID, audioID string) (Selection, error) {
	audio, video := Rank(formats)

	if audioID != "" {
		return chooseWithAudio(formats, video, requestedID, audioID)
	}
	if requestedID != "" {
		return resolve(formats, audio, requestedID)
	}

	for _, v := range video {
		if v.Kind() == model.FormatCombined {
			return Selection{Primary: v}, nil
		}
	}

	var bestVideo *model.Format
	for i := range video {
		if video[i].Kind() == model.FormatVideoOnly {
			bestVideo = &video[i]
			break
		}
	}
	if bestVideo != nil && len(audio) > 0 {
		a := audio[0]
		return Selection{Primary: *bestVideo, Audio: &a}, nil
	}

	return Selection{}, apperr.New(apperr.KindNoSuitableFormat, op, "no combined format and no video/audio pair available")
}

func chooseWithAudio(formats, video []model.Format, requestedID, audioID string) (Selection, error) {
	a, ok := find(formats, audioID)
	if !ok {
		return Selection{}, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("audio format %q not offered", audioID))
	}
	if a.Kind() != model.FormatAudioOnly {
		return Selection{}, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("format %q is not an audio-only format", audioID))
	}

	if requestedID == "" {
		if len(video) == 0 {
			return Selection{}, apperr.New(apperr.KindNoSuitableFormat, op, "no video format to pair with the requested audio")
		}
		return Selection{Primary: video[0], Audio: &a}, nil
	}

	v, ok := find(formats, requestedID)
	if !ok {
		return Selection{}, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("format %q not offered", requestedID))
	}
	if !v.HasVideo() {
		return Selection{}, apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("format %q has no video to pair with audio %q", requestedID, audioID))
	}
	return Selection{Primary: v, Audio: &a}, nil
}

func find(formats []model.Format, id string) (model.Format, bool) {
	for _, f := range formats {
		if f.ID == id {
			return f, true
		}
	}
	return model.Format{}, false
}

func resolve(formats, audio []model.Format, id string) (Selection, error) {
	requested, ok := find(formats, id)
	if !ok {
		return Selection{}, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("format %q not offered", id))
	}

	switch requested.Kind() {
	case model.FormatCombined, model.FormatAudioOnly:
		return Selection{Primary: requested}, nil
	case model.FormatVideoOnly:
		if len(audio) == 0 {
			return Selection{}, apperr.New(apperr.KindNoSuitableFormat, op, fmt.Sprintf("format %q has no audio to pair with", id))
		}
		a := audio[0]
		return Selection{Primary: requested, Audio: &a}, nil
	default:
		return Selection{}, apperr.New(apperr.KindNoSuitableFormat, op, fmt.Sprintf("format %q carries no media streams", id))
	}
}
