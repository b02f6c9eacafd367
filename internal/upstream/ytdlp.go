package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-downloader-api/internal/apperr"
	"github.com/ytget/yt-downloader-api/internal/model"
)

// Executable and timeout defaults
const (
	DefaultYTDLPBinary   = "yt-dlp"
	DefaultCallTimeout   = 40 * time.Second
	DefaultSocketTimeout = 30 * time.Second

	maxStderrInError = 512
)

// YTDLPConfig configures the yt-dlp backed client
type YTDLPConfig struct {
	Binary        string
	CallTimeout   time.Duration
	SocketTimeout time.Duration
	CookiesFile   string
	Strategy      Strategy
	Logger        *slog.Logger
}

// YTDLP implements Client with go-ytdlp for metadata and net/http for
// stream bytes.
type YTDLP struct {
	cfg    YTDLPConfig
	logger *slog.Logger

	clientsMu sync.Mutex
	clients   map[string]*http.Client // keyed by proxy URL
}

// NewYTDLP creates the client, filling defaults for zero config fields
func NewYTDLP(cfg YTDLPConfig) *YTDLP {
	if cfg.Binary == "" {
		cfg.Binary = DefaultYTDLPBinary
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = DefaultSocketTimeout
	}
	if cfg.Strategy == nil {
		cfg.Strategy, _ = NewStrategy(StrategyDirect, nil, nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLP{
		cfg:     cfg,
		logger:  logger.With("component", "upstream"),
		clients: make(map[string]*http.Client),
	}
}

// Binary returns the yt-dlp executable in use
func (y *YTDLP) Binary() string {
	return y.cfg.Binary
}

// metadataCommand configures a single-video JSON dump for the given identity
func (y *YTDLP) metadataCommand(id Identity) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(y.cfg.Binary).
		DumpSingleJSON().
		NoPlaylist().
		NoWarnings().
		SkipDownload().
		SocketTimeout(y.cfg.SocketTimeout.Seconds())

	if id.ProxyURL != "" {
		cmd.Proxy(id.ProxyURL)
	}
	if id.UserAgent != "" {
		cmd.UserAgent(id.UserAgent)
	}
	if y.cfg.CookiesFile != "" {
		cmd.Cookies(y.cfg.CookiesFile)
	}
	return cmd
}

// GetMetadata runs yt-dlp for videoURL and maps its extracted info.
func (y *YTDLP) GetMetadata(ctx context.Context, videoURL string) (*model.MetadataRecord, error) {
	const op = "upstream.GetMetadata"

	if _, err := exec.LookPath(y.cfg.Binary); err != nil {
		return nil, apperr.Wrap(apperr.KindUnhandled, op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, y.cfg.CallTimeout)
	defer cancel()

	id := y.cfg.Strategy.Next()
	started := time.Now()
	res, err := y.metadataCommand(id).Run(callCtx, videoURL)
	y.logger.Debug("yt-dlp finished", "url", videoURL, "proxy", id.ProxyURL != "", "elapsed", time.Since(started), "error", err)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTransientNetwork, op,
				fmt.Errorf("yt-dlp timed out after %s", y.cfg.CallTimeout))
		}
		diag := err.Error()
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			diag = strings.TrimSpace(res.Stderr)
		}
		diag = tail(diag, maxStderrInError)
		return nil, &apperr.Error{Kind: ClassifyOutput(diag), Op: op, Err: fmt.Errorf("yt-dlp failed: %w: %s", err, diag)}
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnhandled, op, err)
	}
	if len(infos) == 0 {
		return nil, apperr.New(apperr.KindUnhandled, op, "yt-dlp returned no video info")
	}
	record, err := recordFromInfo(infos[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnhandled, op, err)
	}
	return record, nil
}

// OpenStream issues a GET for the format's stream URL and returns the body.
// Only the wait for response headers is bounded by the call timeout.
func (y *YTDLP) OpenStream(ctx context.Context, format model.Format) (*Stream, error) {
	const op = "upstream.OpenStream"

	if format.StreamURL == "" {
		return nil, apperr.New(apperr.KindNotFound, op, fmt.Sprintf("format %s has no stream url", format.ID))
	}

	id := y.cfg.Strategy.Next()
	client, err := y.httpClient(id.ProxyURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, format.StreamURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	for k, v := range format.Headers {
		req.Header.Set(k, v)
	}
	if id.UserAgent != "" {
		req.Header.Set("User-Agent", id.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, op, err)
	}

	if kind, failed := ClassifyStatus(resp.StatusCode); failed {
		resp.Body.Close()
		cause := fmt.Errorf("stream request for format %s returned %s", format.ID, resp.Status)
		if kind == apperr.KindRateLimited {
			return nil, apperr.RateLimited(op, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), cause)
		}
		return nil, apperr.Wrap(kind, op, cause)
	}

	return &Stream{Body: resp.Body, Size: resp.ContentLength}, nil
}

func (y *YTDLP) httpClient(proxy string) (*http.Client, error) {
	y.clientsMu.Lock()
	defer y.clientsMu.Unlock()

	if c, ok := y.clients[proxy]; ok {
		return c, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: y.cfg.CallTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = y.cfg.CallTimeout
	transport.TLSHandshakeTimeout = y.cfg.CallTimeout
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	c := &http.Client{Transport: transport}
	y.clients[proxy] = c
	return c, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
