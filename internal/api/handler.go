// Package api exposes the download service over HTTP with gin.
package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/download"
	"github.com/ytget/yt-downloader-api/internal/logging"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

const startedMessage = "Download started. Check status using the /api/download-status endpoint."

// JobCounter reports registry occupancy for the health endpoint
type JobCounter interface {
	Len() int
	ActiveIDs() []string
}

// Options configures the router
type Options struct {
	Version string
	// Binaries are probed by the health endpoint.
	Binaries []string
	Jobs     JobCounter
	Logger   *slog.Logger
}

type Handler struct {
	svc  download.Downloader
	opts Options
}

func NewHandler(svc download.Downloader, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{svc: svc, opts: opts}
}

// NewRouter builds the gin engine with every route registered
func NewRouter(svc download.Downloader, opts Options) *gin.Engine {
	h := NewHandler(svc, opts)

	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(logging.WithComponent(h.opts.Logger, "http")))

	api := router.Group("/api")
	api.GET("/video-info", h.VideoInfo)
	api.GET("/download", h.Download)
	api.POST("/download", h.Download)
	api.GET("/download-status/:id", h.DownloadStatus)
	api.GET("/get-file/:id", h.GetFile)
	api.GET("/direct-download/:video_id/:format_id", h.DirectDownload)
	api.GET("/playlist-info", h.PlaylistInfo)
	api.GET("/health", h.Health)
	return router
}

type downloadRequest struct {
	URL      string `form:"url" json:"url"`
	FormatID string `form:"format_id" json:"format_id"`
	AudioID  string `form:"audio_id" json:"audio_id"`
}

func (h *Handler) VideoInfo(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "api", "Missing video URL"))
		return
	}

	meta, err := h.svc.GetMetadata(c.Request.Context(), url)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newVideoInfoResponse(meta))
}

func (h *Handler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidInput, "api", err))
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "api", "Missing video URL"))
		return
	}

	job, err := h.svc.CreateJob(download.JobRequest{
		URL:           req.URL,
		FormatID:      strings.TrimSpace(req.FormatID),
		AudioFormatID: strings.TrimSpace(req.AudioID),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadResponse{
		DownloadID: job.ID,
		Status:     job.Status,
		Message:    startedMessage,
	})
}

func (h *Handler) DownloadStatus(c *gin.Context) {
	job, err := h.svc.GetStatus(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(job))
}

func (h *Handler) GetFile(c *gin.Context) {
	artifact, err := h.svc.OpenArtifact(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(artifact.Path, artifact.Name)
}

// DirectDownload runs a job for the video and streams the artifact in the
// same response. filename overrides the attachment name; the extension
// always follows the artifact.
func (h *Handler) DirectDownload(c *gin.Context) {
	videoID := c.Param("video_id")
	url := platform.CanonicalVideoURL(videoID)
	if !platform.IsValidVideoURL(url) {
		writeError(c, apperr.New(apperr.KindInvalidInput, "api", "invalid video id"))
		return
	}

	artifact, err := h.svc.DirectDownload(c.Request.Context(), download.JobRequest{
		URL:           url,
		FormatID:      strings.TrimSpace(c.Param("format_id")),
		AudioFormatID: strings.TrimSpace(c.Query("audio_id")),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	name := artifact.Name
	if custom := strings.TrimSpace(c.Query("filename")); custom != "" {
		base := path.Base(custom)
		name = platform.AttachmentName(strings.TrimSuffix(base, path.Ext(base)), filepath.Ext(artifact.Path))
	}
	c.FileAttachment(artifact.Path, name)
}

func (h *Handler) PlaylistInfo(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		writeError(c, apperr.New(apperr.KindInvalidInput, "api", "Missing playlist URL"))
		return
	}

	playlist, err := h.svc.ListPlaylist(c.Request.Context(), url)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, playlist)
}

func (h *Handler) Health(c *gin.Context) {
	deps := platform.CheckDependencies(h.opts.Binaries...)
	status := "ok"
	if !platform.AllAvailable(deps) {
		status = "degraded"
	}

	body := gin.H{
		"status":       status,
		"version":      h.opts.Version,
		"dependencies": deps,
	}
	if h.opts.Jobs != nil {
		body["jobs"] = gin.H{
			"total":  h.opts.Jobs.Len(),
			"active": len(h.opts.Jobs.ActiveIDs()),
		}
	}
	c.JSON(http.StatusOK, body)
}

// writeError maps a classified error onto the response. Unclassified errors
// are reported as unhandled without leaking their text.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		msg = "internal error"
	} else if appErr.Msg != "" && kind == apperr.KindInvalidInput {
		msg = appErr.Msg
	}

	if kind == apperr.KindRateLimited {
		if wait := apperr.RetryAfterOf(err); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), errorResponse{Error: msg, Kind: string(kind)})
}
