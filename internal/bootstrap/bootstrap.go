// Package bootstrap provides dependency initialization for the render service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/sitereel/internal/capture"
	"github.com/maauso/sitereel/internal/compose"
	"github.com/maauso/sitereel/internal/config"
	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/fetch"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/pipeline"
	"github.com/maauso/sitereel/internal/storage"
)

// staleWorkspaceAge is how old a leftover workspace must be before the
// startup sweep removes it.
const staleWorkspaceAge = time.Hour

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RenderService *pipeline.Service
	Engine        *engine.Engine
	Workspaces    *storage.Manager
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize workspace storage
	workspaces, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize asset fetcher
	fetcher, err := initFetcher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize headless browser capture
	chrome := capture.NewChrome(capture.Options{
		ExecPath:          cfg.ChromePath,
		NoSandbox:         cfg.ChromeNoSandbox,
		NavigationTimeout: cfg.NavigationTimeout,
		FallbackTimeout:   cfg.NavigationFallbackTimeout,
		Settle:            cfg.CaptureSettle,
	}, logger)

	eng := NewEngine(cfg, logger)

	dims := graph.Dimensions{Width: cfg.OutputWidth, Height: cfg.OutputHeight}
	svc := pipeline.NewService(workspaces, fetcher, chrome, eng, dims, logger,
		pipeline.WithTimeout(cfg.RequestTimeout),
	)

	return &Dependencies{
		RenderService: svc,
		Engine:        eng,
		Workspaces:    workspaces,
	}, nil
}

// NewEngine creates the composition engine: an ffprobe prober and an ffmpeg
// driver behind a bounded pool.
func NewEngine(cfg *config.Config, logger *slog.Logger) *engine.Engine {
	prober := media.NewFFprobe(cfg.ProbeTimeout, logger)
	driver := compose.NewDriver(compose.Options{
		FFmpegPath:   cfg.FFmpegPath,
		Preset:       cfg.VideoPreset,
		CRF:          cfg.VideoCRF,
		AudioBitrate: cfg.AudioBitrate,
	}, logger)
	pool := compose.NewPool(driver, cfg.MaxConcurrentRenders, cfg.RenderTimeout, logger,
		compose.WithQueueTimeout(cfg.QueueTimeout),
	)

	logger.Info("composition pool configured",
		slog.Int("size", pool.Size()),
		slog.Duration("timeout", cfg.RenderTimeout),
		slog.Duration("queue_timeout", cfg.QueueTimeout),
	)

	return engine.New(prober, pool, Settings(cfg), logger)
}

// Settings maps the configuration onto engine settings.
func Settings(cfg *config.Config) engine.Settings {
	return engine.Settings{
		IntroSeconds:        cfg.IntroSeconds,
		EndCardSeconds:      cfg.EndCardSeconds,
		MinimumTotalSeconds: cfg.MinTotalSecs,
		LogoWidth:           cfg.LogoWidth,
		FontFile:            cfg.FontFile,
	}
}

// initStorage creates the workspace manager and clears leftovers from a
// previous run.
func initStorage(cfg *config.Config, logger *slog.Logger) (*storage.Manager, error) {
	manager, err := storage.NewManager(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create workspace storage: %w", err)
	}

	removed, err := manager.Sweep(staleWorkspaceAge)
	if err != nil {
		logger.Warn("failed to sweep stale workspaces",
			slog.String("error", err.Error()),
		)
	}
	logger.Info("workspace storage configured",
		slog.String("temp_dir", manager.Root()),
		slog.Int("swept", removed),
	)
	return manager, nil
}

// initFetcher creates the asset fetcher, with s3:// support when configured.
func initFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	opts := []fetch.Option{
		fetch.WithMaxBytes(cfg.MaxFetchBytes),
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithLogger(logger),
	}

	if cfg.S3Enabled() {
		src, err := fetch.NewS3Source(ctx, fetch.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 source: %w", err)
		}
		opts = append(opts, fetch.WithS3(src))
		logger.Info("S3 sources enabled",
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
	}

	return fetch.NewClient(opts...), nil
}
