// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidOutputSize is returned when OUTPUT_WIDTH or OUTPUT_HEIGHT is not positive and even.
	ErrInvalidOutputSize = errors.New("config: OUTPUT_WIDTH and OUTPUT_HEIGHT must be positive and even")
	// ErrInvalidSegmentSeconds is returned when a segment length is negative.
	ErrInvalidSegmentSeconds = errors.New("config: INTRO_SECONDS, END_CARD_SECONDS and MIN_TOTAL_SECONDS must not be negative")
	// ErrInvalidCRF is returned when VIDEO_CRF is outside 0-51.
	ErrInvalidCRF = errors.New("config: VIDEO_CRF must be between 0 and 51")
	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts must be positive")
	// ErrInvalidRequestTimeout is returned when REQUEST_TIMEOUT cannot fit a full render.
	ErrInvalidRequestTimeout = errors.New("config: REQUEST_TIMEOUT must not be shorter than RENDER_TIMEOUT")
	// ErrInvalidMaxBodyBytes is returned when MAX_BODY_BYTES is not positive.
	ErrInvalidMaxBodyBytes = errors.New("config: MAX_BODY_BYTES must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int           `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES, default=1048576" json:"max_body_bytes"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT, default=15m" json:"request_timeout"` // Whole render, fetch to compose
	StreamTimeout  time.Duration `env:"STREAM_TIMEOUT, default=10m" json:"stream_timeout"`   // Sending the finished mp4

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/sitereel" json:"temp_dir"`

	// Tool paths
	FFmpegPath      string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ChromePath      string `env:"CHROME_PATH" json:"chrome_path,omitempty"` // Empty: auto-detect
	ChromeNoSandbox bool   `env:"CHROME_NO_SANDBOX, default=false" json:"chrome_no_sandbox"`

	// Output settings
	OutputWidth    int     `env:"OUTPUT_WIDTH, default=1920" json:"output_width"`
	OutputHeight   int     `env:"OUTPUT_HEIGHT, default=1080" json:"output_height"`
	IntroSeconds   float64 `env:"INTRO_SECONDS, default=1.5" json:"intro_seconds"`
	EndCardSeconds float64 `env:"END_CARD_SECONDS, default=4.0" json:"end_card_seconds"`
	MinTotalSecs   float64 `env:"MIN_TOTAL_SECONDS, default=5.0" json:"min_total_seconds"`
	LogoWidth      int     `env:"LOGO_WIDTH, default=220" json:"logo_width"`
	FontFile       string  `env:"FONT_FILE" json:"font_file,omitempty"`

	// Encoder settings
	VideoPreset  string `env:"VIDEO_PRESET, default=veryfast" json:"video_preset"`
	VideoCRF     int    `env:"VIDEO_CRF, default=23" json:"video_crf"`
	AudioBitrate string `env:"AUDIO_BITRATE, default=192k" json:"audio_bitrate"`

	// Processing settings
	MaxConcurrentRenders int           `env:"MAX_CONCURRENT_RENDERS, default=0" json:"max_concurrent_renders"` // 0: logical CPU count
	RenderTimeout        time.Duration `env:"RENDER_TIMEOUT, default=5m" json:"render_timeout"`
	QueueTimeout         time.Duration `env:"QUEUE_TIMEOUT, default=2m" json:"queue_timeout"`
	ProbeTimeout         time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout"`
	FetchTimeout         time.Duration `env:"FETCH_TIMEOUT, default=60s" json:"fetch_timeout"`
	MaxFetchBytes        int64         `env:"MAX_FETCH_BYTES, default=209715200" json:"max_fetch_bytes"`

	// Capture settings
	NavigationTimeout         time.Duration `env:"NAVIGATION_TIMEOUT, default=120s" json:"navigation_timeout"`
	NavigationFallbackTimeout time.Duration `env:"NAVIGATION_FALLBACK_TIMEOUT, default=30s" json:"navigation_fallback_timeout"`
	CaptureSettle             time.Duration `env:"CAPTURE_SETTLE, default=1500ms" json:"capture_settle"`

	// Optional S3 settings for s3:// sources
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if s3:// sources are configured.
func (c *Config) S3Enabled() bool {
	return c.S3Region != "" || c.S3Endpoint != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.OutputWidth <= 0 || c.OutputHeight <= 0 || c.OutputWidth%2 != 0 || c.OutputHeight%2 != 0 {
		return ErrInvalidOutputSize
	}
	if c.IntroSeconds < 0 || c.EndCardSeconds < 0 || c.MinTotalSecs < 0 {
		return ErrInvalidSegmentSeconds
	}
	if c.VideoCRF < 0 || c.VideoCRF > 51 {
		return ErrInvalidCRF
	}
	if c.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodyBytes
	}
	for _, d := range []time.Duration{
		c.RequestTimeout, c.StreamTimeout, c.RenderTimeout, c.QueueTimeout,
		c.ProbeTimeout, c.FetchTimeout, c.NavigationTimeout, c.NavigationFallbackTimeout,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.RequestTimeout < c.RenderTimeout {
		return ErrInvalidRequestTimeout
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegPath: %s, Output: %dx%d, Intro: %.2fs, EndCard: %.2fs, MinTotal: %.2fs, MaxConcurrentRenders: %d, RequestTimeout: %s, RenderTimeout: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegPath,
		c.OutputWidth,
		c.OutputHeight,
		c.IntroSeconds,
		c.EndCardSeconds,
		c.MinTotalSecs,
		c.MaxConcurrentRenders,
		c.RequestTimeout,
		c.RenderTimeout,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
