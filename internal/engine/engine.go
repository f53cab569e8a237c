// Package engine turns a captured still, an audio clip and optional branding
// into a timed video. A render runs strictly in sequence: probe the audio,
// plan the timeline, build the filter graph, then composite.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/sitereel/internal/compose"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/timeline"
)

// Stage names the step of a render that failed.
type Stage string

// Render stages, in execution order. Fetch and capture happen before the
// engine runs and are reported by the pipeline.
const (
	StageFetch   Stage = "fetch"
	StageCapture Stage = "capture"
	StageProbe   Stage = "probe"
	StagePlan    Stage = "plan"
	StageBuild   Stage = "build"
	StageCompose Stage = "compose"
)

// ErrEmptyTimeline is returned when planning yields no output length.
var ErrEmptyTimeline = errors.New("planned timeline is empty")

// StageError tags a render failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage recorded in err, or "" when err carries none.
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// RenderRequest is everything one render consumes.
type RenderRequest struct {
	Still media.Asset
	Audio media.Asset
	// Logo is optional; a zero Asset renders without branding.
	Logo media.Asset
	Copy graph.Copy
	Dims graph.Dimensions
}

// Settings are the presentation parameters shared by every render.
type Settings struct {
	IntroSeconds        float64
	EndCardSeconds      float64
	MinimumTotalSeconds float64
	LogoWidth           int
	// FontFile is passed to drawtext; empty uses ffmpeg's default font.
	FontFile string
}

// Engine composes videos from a prober and a renderer.
type Engine struct {
	prober   media.Prober
	renderer compose.Renderer
	settings Settings
	logger   *slog.Logger
}

// New creates an Engine.
func New(prober media.Prober, renderer compose.Renderer, settings Settings, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.LogoWidth <= 0 {
		settings.LogoWidth = graph.DefaultLogoWidth
	}
	return &Engine{
		prober:   prober,
		renderer: renderer,
		settings: settings,
		logger:   logger,
	}
}

// ComposeVideo renders req into an mp4 at output. Every failure is a
// *StageError; no partial output is left behind.
func (e *Engine) ComposeVideo(ctx context.Context, req RenderRequest, output string) (media.Asset, error) {
	start := time.Now()

	audioSeconds, err := e.prober.Probe(ctx, req.Audio)
	if err != nil {
		return media.Asset{}, &StageError{Stage: StageProbe, Err: err}
	}

	tl, err := e.Plan(audioSeconds)
	if err != nil {
		return media.Asset{}, &StageError{Stage: StagePlan, Err: err}
	}

	g, err := e.Build(req, tl)
	if err != nil {
		return media.Asset{}, &StageError{Stage: StageBuild, Err: err}
	}

	e.logger.Info("composing video",
		slog.Float64("audio_seconds", audioSeconds),
		slog.String("timeline", tl.String()),
		slog.Bool("logo", !req.Logo.IsZero()),
		slog.String("dimensions", req.Dims.String()),
	)

	video, err := e.renderer.Render(ctx, compose.Job{
		Graph:        g,
		Audio:        req.Audio,
		Timeline:     tl,
		IntroSeconds: tl.AudioDelaySeconds(),
		Output:       output,
	})
	if err != nil {
		return media.Asset{}, &StageError{Stage: StageCompose, Err: err}
	}

	e.logger.Info("video composed",
		slog.String("output", video.Path()),
		slog.Duration("duration", time.Since(start)),
	)
	return video, nil
}

// Plan derives the timeline for audio of the given length.
func (e *Engine) Plan(audioSeconds float64) (timeline.Timeline, error) {
	tl := timeline.Plan(audioSeconds, e.settings.IntroSeconds, e.settings.EndCardSeconds, e.settings.MinimumTotalSeconds)
	if tl.TotalSeconds <= 0 {
		return tl, ErrEmptyTimeline
	}
	return tl, nil
}

// Build creates the composition graph for req on tl.
func (e *Engine) Build(req RenderRequest, tl timeline.Timeline) (*graph.Graph, error) {
	style := graph.DefaultStyle(req.Dims)
	style.FontFile = e.settings.FontFile
	overlays := graph.StandardOverlays(tl, req.Copy, style)

	var branding graph.Branding = graph.NoLogo{}
	if !req.Logo.IsZero() {
		branding = graph.DefaultLogo(req.Logo, e.settings.LogoWidth)
	}
	return graph.Build(req.Still, branding, tl, overlays, req.Dims)
}
