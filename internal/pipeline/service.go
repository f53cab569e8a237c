// Package pipeline runs one render request end to end: it opens a scratch
// workspace, fetches the audio and logo, captures the web page and hands
// everything to the composition engine. The workspace is removed on every
// failure path; on success it lives until the caller closes the Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"time"

	"github.com/maauso/sitereel/internal/capture"
	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/fetch"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/storage"
)

// Composer renders a request into a video at output.
type Composer interface {
	ComposeVideo(ctx context.Context, req engine.RenderRequest, output string) (media.Asset, error)
}

// Input is one render request as received from a caller.
type Input struct {
	WebsiteURL string
	AudioURL   string
	// LogoURL is optional.
	LogoURL string
	Copy    graph.Copy
	// Dims is the output size; zero uses the service default.
	Dims graph.Dimensions
	// RequestID is attached to every log line of the request.
	RequestID string
}

// outputName is the video file inside the request workspace.
const outputName = "output.mp4"

// Result is a finished video. Close removes it together with every other
// file the request created.
type Result struct {
	Video media.Asset
	Size  int64
	ws    storage.Workspace
	name  string
}

// NewResult wraps the video stored in ws as name. The Result owns ws from
// then on.
func NewResult(ws storage.Workspace, name string) (*Result, error) {
	video := media.NewAsset(ws.Path(name), media.KindVideo)
	size, err := video.Size()
	if err != nil {
		return nil, err
	}
	return &Result{Video: video, Size: size, ws: ws, name: name}, nil
}

// Open opens the video for reading.
func (r *Result) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := r.ws.Open(ctx, r.name)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	return f, nil
}

// Close removes the request workspace.
func (r *Result) Close() error {
	return r.ws.Remove()
}

// Service orchestrates the render workflow.
type Service struct {
	workspaces  storage.Provider
	fetcher     fetch.Fetcher
	capturer    capture.Capturer
	composer    Composer
	defaultDims graph.Dimensions
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds a whole render, from workspace creation to the
// finished video.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a new Service.
func NewService(
	workspaces storage.Provider,
	fetcher fetch.Fetcher,
	capturer capture.Capturer,
	composer Composer,
	defaultDims graph.Dimensions,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		workspaces:  workspaces,
		fetcher:     fetcher,
		capturer:    capturer,
		composer:    composer,
		defaultDims: defaultDims,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render runs the full workflow for in. Stage failures are returned as
// *engine.StageError.
func (s *Service) Render(ctx context.Context, in Input) (_ *Result, err error) {
	logger := s.logger
	if in.RequestID != "" {
		logger = logger.With(slog.String("request_id", in.RequestID))
	}
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	dims := in.Dims
	if dims.Width == 0 && dims.Height == 0 {
		dims = s.defaultDims
	}

	ws, err := s.workspaces.NewWorkspace(ctx)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := ws.Remove(); rerr != nil {
			logger.Warn("failed to remove workspace", slog.String("error", rerr.Error()))
		}
		logger.Error("render failed",
			slog.String("stage", string(engine.StageOf(err))),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	logger.Info("render started",
		slog.String("workspace", ws.ID()),
		slog.String("website_url", in.WebsiteURL),
		slog.Bool("logo", in.LogoURL != ""),
		slog.String("dimensions", dims.String()),
	)

	audio, err := s.fetcher.Fetch(ctx, in.AudioURL, ws, "audio"+extension(in.AudioURL, ".mp3"), media.KindAudio)
	if err != nil {
		return nil, &engine.StageError{Stage: engine.StageFetch, Err: err}
	}

	var logo media.Asset
	if in.LogoURL != "" {
		logo, err = s.fetcher.Fetch(ctx, in.LogoURL, ws, "logo"+extension(in.LogoURL, ".png"), media.KindImage)
		if err != nil {
			return nil, &engine.StageError{Stage: engine.StageFetch, Err: err}
		}
	}

	still, err := s.capturer.Capture(ctx, in.WebsiteURL, capture.Viewport{Width: dims.Width, Height: dims.Height}, ws, "screenshot.png")
	if err != nil {
		return nil, &engine.StageError{Stage: engine.StageCapture, Err: err}
	}

	_, err = s.composer.ComposeVideo(ctx, engine.RenderRequest{
		Still: still,
		Audio: audio,
		Logo:  logo,
		Copy:  in.Copy,
		Dims:  dims,
	}, ws.Path(outputName))
	if err != nil {
		var stageErr *engine.StageError
		if !errors.As(err, &stageErr) {
			err = &engine.StageError{Stage: engine.StageCompose, Err: err}
		}
		return nil, err
	}

	res, err := NewResult(ws, outputName)
	if err != nil {
		return nil, &engine.StageError{Stage: engine.StageCompose, Err: err}
	}

	logger.Info("render finished",
		slog.Int64("bytes", res.Size),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)

// extension returns the file extension of the URL path, or def when it has
// none usable. ffmpeg uses the extension as a demuxer hint.
func extension(rawURL, def string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return def
	}
	if ext := path.Ext(u.Path); extPattern.MatchString(ext) {
		return ext
	}
	return def
}
