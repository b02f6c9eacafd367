// Package config loads service settings. Values start from the defaults
// below, then an optional TOML file, then YTDL_* environment variables (a
// .env file is read into the environment first without overriding variables
// that are already set).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment keys
const (
	KeyConfigFile       = "YTDL_CONFIG_FILE"
	KeyAddr             = "YTDL_ADDR"
	KeyLogLevel         = "YTDL_LOG_LEVEL"
	KeyLogFormat        = "YTDL_LOG_FORMAT"
	KeyYTDLPPath        = "YTDL_YTDLP_PATH"
	KeyFFmpegPath       = "YTDL_FFMPEG_PATH"
	KeyCookiesFile      = "YTDL_COOKIES_FILE"
	KeyTempDir          = "YTDL_TEMP_DIR"
	KeyOutputDir        = "YTDL_OUTPUT_DIR"
	KeyMinDelay         = "YTDL_MIN_DELAY"
	KeyJitter           = "YTDL_JITTER"
	KeyPerMinute        = "YTDL_PER_MINUTE"
	KeyRateLimitRetries = "YTDL_RATE_LIMIT_RETRIES"
	KeyRateLimitDelay   = "YTDL_RATE_LIMIT_BASE_DELAY"
	KeyNetworkRetries   = "YTDL_NETWORK_RETRIES"
	KeyNetworkDelay     = "YTDL_NETWORK_BASE_DELAY"
	KeyMaxBackoff       = "YTDL_MAX_BACKOFF"
	KeyCallTimeout      = "YTDL_CALL_TIMEOUT"
	KeyPlaylistTimeout  = "YTDL_PLAYLIST_TIMEOUT"
	KeyTransport        = "YTDL_TRANSPORT"
	KeyProxies          = "YTDL_PROXIES"
	KeyUserAgents       = "YTDL_USER_AGENTS"
	KeyRetentionWindow  = "YTDL_RETENTION_WINDOW"
	KeySweepInterval    = "YTDL_SWEEP_INTERVAL"
	KeyShutdownTimeout  = "YTDL_SHUTDOWN_TIMEOUT"
)

// Default values
const (
	DefaultAddr             = ":8000"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultYTDLPPath        = "yt-dlp"
	DefaultFFmpegPath       = "ffmpeg"
	DefaultMinDelay         = time.Second
	DefaultRateLimitRetries = 3
	DefaultRateLimitDelay   = 5 * time.Second
	DefaultNetworkRetries   = 2
	DefaultNetworkDelay     = 2 * time.Second
	DefaultMaxBackoff       = 2 * time.Minute
	DefaultCallTimeout      = 40 * time.Second
	DefaultPlaylistTimeout  = 60 * time.Second
	DefaultTransport        = "direct"
	DefaultRetentionWindow  = 2 * time.Hour
	DefaultSweepInterval    = time.Hour
	DefaultShutdownTimeout  = 15 * time.Second

	MaxRetries = 10
)

// Settings is the full service configuration
type Settings struct {
	Server   ServerSettings   `toml:"server"`
	Log      LogSettings      `toml:"log"`
	Upstream UpstreamSettings `toml:"upstream"`
	Throttle ThrottleSettings `toml:"throttle"`
	Storage  StorageSettings  `toml:"storage"`
}

type ServerSettings struct {
	Addr            string        `toml:"addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type UpstreamSettings struct {
	YTDLPPath       string        `toml:"ytdlp_path"`
	FFmpegPath      string        `toml:"ffmpeg_path"`
	CookiesFile     string        `toml:"cookies_file"`
	CallTimeout     time.Duration `toml:"call_timeout"`
	PlaylistTimeout time.Duration `toml:"playlist_timeout"`
	// Transport is one of direct, proxy or rotating.
	Transport  string   `toml:"transport"`
	Proxies    []string `toml:"proxies"`
	UserAgents []string `toml:"user_agents"`
}

type ThrottleSettings struct {
	MinDelay         time.Duration `toml:"min_delay"`
	Jitter           time.Duration `toml:"jitter"`
	PerMinute        int           `toml:"per_minute"`
	RateLimitRetries int           `toml:"rate_limit_retries"`
	RateLimitDelay   time.Duration `toml:"rate_limit_base_delay"`
	NetworkRetries   int           `toml:"network_retries"`
	NetworkDelay     time.Duration `toml:"network_base_delay"`
	MaxBackoff       time.Duration `toml:"max_backoff"`
}

type StorageSettings struct {
	TempDir         string        `toml:"temp_dir"`
	OutputDir       string        `toml:"output_dir"`
	RetentionWindow time.Duration `toml:"retention_window"`
	SweepInterval   time.Duration `toml:"sweep_interval"`
}

// Defaults returns settings with every default applied
func Defaults() *Settings {
	base := filepath.Join(os.TempDir(), "yt-downloader-api")
	return &Settings{
		Server: ServerSettings{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout},
		Log:    LogSettings{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Upstream: UpstreamSettings{
			YTDLPPath:       DefaultYTDLPPath,
			FFmpegPath:      DefaultFFmpegPath,
			CallTimeout:     DefaultCallTimeout,
			PlaylistTimeout: DefaultPlaylistTimeout,
			Transport:       DefaultTransport,
		},
		Throttle: ThrottleSettings{
			MinDelay:         DefaultMinDelay,
			RateLimitRetries: DefaultRateLimitRetries,
			RateLimitDelay:   DefaultRateLimitDelay,
			NetworkRetries:   DefaultNetworkRetries,
			NetworkDelay:     DefaultNetworkDelay,
			MaxBackoff:       DefaultMaxBackoff,
		},
		Storage: StorageSettings{
			TempDir:         filepath.Join(base, "tmp"),
			OutputDir:       filepath.Join(base, "downloads"),
			RetentionWindow: DefaultRetentionWindow,
			SweepInterval:   DefaultSweepInterval,
		},
	}
}

// Load builds the settings. configPath falls back to YTDL_CONFIG_FILE; an
// empty path skips the file. dotEnvPath is ignored when the file is absent.
func Load(configPath, dotEnvPath string) (*Settings, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, fmt.Errorf("load %s: %w", dotEnvPath, err)
			}
		}
	}

	s := Defaults()

	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv(KeyConfigFile))
	}
	if configPath != "" {
		md, err := toml.DecodeFile(configPath, s)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", configPath, strings.Join(keys, ", "))
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	s.normalize()
	return s, nil
}

func (s *Settings) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	list := func(key, sep string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v, sep)
		}
	}

	str(KeyAddr, &s.Server.Addr)
	dur(KeyShutdownTimeout, &s.Server.ShutdownTimeout)
	str(KeyLogLevel, &s.Log.Level)
	str(KeyLogFormat, &s.Log.Format)

	str(KeyYTDLPPath, &s.Upstream.YTDLPPath)
	str(KeyFFmpegPath, &s.Upstream.FFmpegPath)
	str(KeyCookiesFile, &s.Upstream.CookiesFile)
	dur(KeyCallTimeout, &s.Upstream.CallTimeout)
	dur(KeyPlaylistTimeout, &s.Upstream.PlaylistTimeout)
	str(KeyTransport, &s.Upstream.Transport)
	list(KeyProxies, ",", &s.Upstream.Proxies)
	// user agents contain commas
	list(KeyUserAgents, "|", &s.Upstream.UserAgents)

	dur(KeyMinDelay, &s.Throttle.MinDelay)
	dur(KeyJitter, &s.Throttle.Jitter)
	num(KeyPerMinute, &s.Throttle.PerMinute)
	num(KeyRateLimitRetries, &s.Throttle.RateLimitRetries)
	dur(KeyRateLimitDelay, &s.Throttle.RateLimitDelay)
	num(KeyNetworkRetries, &s.Throttle.NetworkRetries)
	dur(KeyNetworkDelay, &s.Throttle.NetworkDelay)
	dur(KeyMaxBackoff, &s.Throttle.MaxBackoff)

	str(KeyTempDir, &s.Storage.TempDir)
	str(KeyOutputDir, &s.Storage.OutputDir)
	dur(KeyRetentionWindow, &s.Storage.RetentionWindow)
	dur(KeySweepInterval, &s.Storage.SweepInterval)

	return errors.Join(errs...)
}

// normalize clamps values into their valid ranges and restores defaults for
// unusable ones.
func (s *Settings) normalize() {
	if s.Server.Addr == "" {
		s.Server.Addr = DefaultAddr
	}
	if s.Server.ShutdownTimeout <= 0 {
		s.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Log.Format = strings.ToLower(s.Log.Format)

	if s.Upstream.YTDLPPath == "" {
		s.Upstream.YTDLPPath = DefaultYTDLPPath
	}
	if s.Upstream.FFmpegPath == "" {
		s.Upstream.FFmpegPath = DefaultFFmpegPath
	}
	if s.Upstream.CallTimeout <= 0 {
		s.Upstream.CallTimeout = DefaultCallTimeout
	}
	if s.Upstream.PlaylistTimeout <= 0 {
		s.Upstream.PlaylistTimeout = DefaultPlaylistTimeout
	}
	s.Upstream.Transport = strings.ToLower(strings.TrimSpace(s.Upstream.Transport))
	if s.Upstream.Transport == "" {
		s.Upstream.Transport = DefaultTransport
	}

	if s.Throttle.MinDelay <= 0 {
		s.Throttle.MinDelay = DefaultMinDelay
	}
	s.Throttle.Jitter = max(s.Throttle.Jitter, 0)
	s.Throttle.PerMinute = max(s.Throttle.PerMinute, 0)
	s.Throttle.RateLimitRetries = clamp(s.Throttle.RateLimitRetries, 0, MaxRetries)
	s.Throttle.NetworkRetries = clamp(s.Throttle.NetworkRetries, 0, MaxRetries)
	if s.Throttle.RateLimitDelay <= 0 {
		s.Throttle.RateLimitDelay = DefaultRateLimitDelay
	}
	if s.Throttle.NetworkDelay <= 0 {
		s.Throttle.NetworkDelay = DefaultNetworkDelay
	}
	s.Throttle.MaxBackoff = max(s.Throttle.MaxBackoff, 0)

	if s.Storage.RetentionWindow <= 0 {
		s.Storage.RetentionWindow = DefaultRetentionWindow
	}
	if s.Storage.SweepInterval <= 0 {
		s.Storage.SweepInterval = DefaultSweepInterval
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v, sep string) []string {
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
