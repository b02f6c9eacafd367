package upstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// rawInfo projects the fields of yt-dlp's info schema the pipeline reads.
// Numbers are float64 because yt-dlp emits them loosely.
type rawInfo struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	Duration          float64     `json:"duration"`
	ViewCount         float64     `json:"view_count"`
	LikeCount         float64     `json:"like_count"`
	UploadDate        string      `json:"upload_date"`
	ChannelID         string      `json:"channel_id"`
	Channel           string      `json:"channel"`
	Uploader          string      `json:"uploader"`
	ChannelURL        string      `json:"channel_url"`
	UploaderURL       string      `json:"uploader_url"`
	ChannelIsVerified bool        `json:"channel_is_verified"`
	Thumbnails        []rawThumb  `json:"thumbnails"`
	Formats           []rawFormat `json:"formats"`
}

type rawThumb struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type rawFormat struct {
	FormatID       string            `json:"format_id"`
	Ext            string            `json:"ext"`
	FormatNote     string            `json:"format_note"`
	ACodec         string            `json:"acodec"`
	VCodec         string            `json:"vcodec"`
	ABR            float64           `json:"abr"`
	Width          float64           `json:"width"`
	Height         float64           `json:"height"`
	FPS            float64           `json:"fps"`
	Filesize       float64           `json:"filesize"`
	FilesizeApprox float64           `json:"filesize_approx"`
	URL            string            `json:"url"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

// recordFromInfo maps the typed info go-ytdlp extracted into a
// MetadataRecord. The info is re-encoded through its json tags so optional
// fields of any shape land in rawInfo.
func recordFromInfo(info *ytdlp.ExtractedInfo) (*model.MetadataRecord, error) {
	if info == nil {
		return nil, fmt.Errorf("empty video info")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode video info: %w", err)
	}
	return decodeMetadata(data)
}

// decodeMetadata converts a yt-dlp info document into a MetadataRecord.
func decodeMetadata(data []byte) (*model.MetadataRecord, error) {
	var info rawInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("yt-dlp output has no video id")
	}

	record := &model.MetadataRecord{
		VideoID:         info.ID,
		Title:           info.Title,
		Description:     info.Description,
		DurationSeconds: info.Duration,
		ViewCount:       int64(info.ViewCount),
		LikeCount:       int64(info.LikeCount),
		UploadDate:      info.UploadDate,
		Channel: model.Channel{
			ID:       info.ChannelID,
			Name:     firstNonEmpty(info.Channel, info.Uploader),
			URL:      firstNonEmpty(info.ChannelURL, info.UploaderURL),
			Verified: info.ChannelIsVerified,
		},
		Thumbnails: make([]model.Thumbnail, 0, len(info.Thumbnails)),
		Formats:    make([]model.Format, 0, len(info.Formats)),
	}

	for _, th := range info.Thumbnails {
		if th.URL == "" {
			continue
		}
		if record.Channel.ProfilePicture == "" && strings.Contains(th.ID, "avatar") {
			record.Channel.ProfilePicture = th.URL
		}
		record.Thumbnails = append(record.Thumbnails, model.Thumbnail{
			ID: th.ID, URL: th.URL, Width: int(th.Width), Height: int(th.Height),
		})
	}

	for _, f := range info.Formats {
		if f.FormatID == "" {
			continue
		}
		size := f.Filesize
		if size <= 0 {
			size = f.FilesizeApprox
		}
		record.Formats = append(record.Formats, model.Format{
			ID:           f.FormatID,
			Container:    f.Ext,
			Note:         f.FormatNote,
			ACodec:       f.ACodec,
			VCodec:       f.VCodec,
			AudioBitrate: f.ABR,
			Width:        int(f.Width),
			Height:       int(f.Height),
			FPS:          f.FPS,
			SizeBytes:    int64(size),
			StreamURL:    f.URL,
			Headers:      f.HTTPHeaders,
		})
	}

	return record, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
