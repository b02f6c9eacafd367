package api

import (
	"fmt"
	"net/url"

	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
	"github.com/ytget/yt-downloader-api/internal/selector"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type downloadResponse struct {
	DownloadID string          `json:"download_id"`
	Status     model.JobStatus `json:"status"`
	Message    string          `json:"message"`
}

type statusResponse struct {
	DownloadID  string          `json:"download_id"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	URL         string          `json:"url"`
	Title       string          `json:"title,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
}

type audioFormatResponse struct {
	FormatID    string  `json:"format_id"`
	Ext         string  `json:"ext"`
	Filesize    int64   `json:"filesize,omitempty"`
	FormatNote  string  `json:"format_note,omitempty"`
	ABR         float64 `json:"abr"`
	DownloadURL string  `json:"download_url"`
}

type videoFormatResponse struct {
	FormatID    string  `json:"format_id"`
	Ext         string  `json:"ext"`
	Filesize    int64   `json:"filesize,omitempty"`
	FormatNote  string  `json:"format_note,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps,omitempty"`
	VCodec      string  `json:"vcodec"`
	ACodec      string  `json:"acodec"`
	Resolution  string  `json:"resolution"`
	DownloadURL string  `json:"download_url"`
}

type videoInfoResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Duration     float64               `json:"duration"`
	ViewCount    int64                 `json:"view_count"`
	LikeCount    int64                 `json:"like_count"`
	UploadDate   string                `json:"upload_date"`
	Thumbnails   []model.Thumbnail     `json:"thumbnails"`
	Channel      model.Channel         `json:"channel"`
	AudioFormats []audioFormatResponse `json:"audio_formats"`
	VideoFormats []videoFormatResponse `json:"video_formats"`
}

func newStatusResponse(job model.Job) statusResponse {
	resp := statusResponse{
		DownloadID: job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		URL:        job.SourceURL,
		Title:      job.Title,
		Error:      job.ErrorDetail,
		ErrorKind:  job.ErrorKind,
	}
	if job.Status == model.StatusCompleted {
		resp.DownloadURL = "/api/get-file/" + job.ID
	}
	return resp
}

// formatDownloadURL points at job submission for one format of the video
func formatDownloadURL(videoID, formatID string) string {
	q := url.Values{}
	q.Set("url", platform.CanonicalVideoURL(videoID))
	q.Set("format_id", formatID)
	return "/api/download?" + q.Encode()
}

func newVideoInfoResponse(meta *model.MetadataRecord) videoInfoResponse {
	thumbnails := meta.Thumbnails
	if thumbnails == nil {
		thumbnails = []model.Thumbnail{}
	}
	resp := videoInfoResponse{
		ID:           meta.VideoID,
		Title:        meta.Title,
		Description:  meta.Description,
		Duration:     meta.DurationSeconds,
		ViewCount:    meta.ViewCount,
		LikeCount:    meta.LikeCount,
		UploadDate:   meta.UploadDate,
		Thumbnails:   thumbnails,
		Channel:      meta.Channel,
		AudioFormats: []audioFormatResponse{},
		VideoFormats: []videoFormatResponse{},
	}

	audio, video := selector.Rank(meta.Formats)
	for _, f := range audio {
		resp.AudioFormats = append(resp.AudioFormats, audioFormatResponse{
			FormatID:    f.ID,
			Ext:         f.Extension(),
			Filesize:    f.SizeBytes,
			FormatNote:  f.Note,
			ABR:         f.AudioBitrate,
			DownloadURL: formatDownloadURL(meta.VideoID, f.ID),
		})
	}
	for _, f := range video {
		resp.VideoFormats = append(resp.VideoFormats, videoFormatResponse{
			FormatID:    f.ID,
			Ext:         f.Extension(),
			Filesize:    f.SizeBytes,
			FormatNote:  f.Note,
			Width:       f.Width,
			Height:      f.Height,
			FPS:         f.FPS,
			VCodec:      f.VCodec,
			ACodec:      f.ACodec,
			Resolution:  fmt.Sprintf("%dx%d", f.Width, f.Height),
			DownloadURL: formatDownloadURL(meta.VideoID, f.ID),
		})
	}
	return resp
}
