// Package compose runs the composition graph through ffmpeg: it holds the
// still image for the planned duration, delays and pads the audio, and muxes
// both into a fast-start mp4.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/timeline"
)

// AudioLabel is the filter label of the delayed and padded audio stream.
const AudioLabel = "aout"

// Static errors for composition.
var (
	// ErrNoGraph is returned when a job has no composition graph.
	ErrNoGraph = errors.New("composition graph is required")
	// ErrNoOutput is returned when a job has no output path.
	ErrNoOutput = errors.New("output path is required")
	// ErrInvalidDuration is returned when the planned total is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// CompositionError represents a failed ffmpeg composition, including the
// tool's diagnostic output.
type CompositionError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// Job is one composition: a built graph, the audio to mux and the timeline
// that fixes the output length.
type Job struct {
	Graph    *graph.Graph
	Audio    media.Asset
	Timeline timeline.Timeline
	// IntroSeconds delays the audio start.
	IntroSeconds float64
	// Output is the path of the mp4 to write.
	Output string
}

// Renderer composites a Job into a video asset.
type Renderer interface {
	Render(ctx context.Context, job Job) (media.Asset, error)
}

// Options tunes the encoder.
type Options struct {
	// FFmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	FFmpegPath   string
	Preset       string
	CRF          int
	AudioBitrate string
	FrameRate    int
}

// DefaultOptions returns the standard encoder settings.
func DefaultOptions() Options {
	return Options{
		FFmpegPath:   "ffmpeg",
		Preset:       "veryfast",
		CRF:          23,
		AudioBitrate: "192k",
		FrameRate:    30,
	}
}

// Driver implements Renderer using the ffmpeg CLI.
type Driver struct {
	opts   Options
	logger *slog.Logger
}

// NewDriver creates a Driver. Zero-valued options fall back to DefaultOptions.
func NewDriver(opts Options, logger *slog.Logger) *Driver {
	def := DefaultOptions()
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = def.FFmpegPath
	}
	if opts.Preset == "" {
		opts.Preset = def.Preset
	}
	if opts.CRF <= 0 {
		opts.CRF = def.CRF
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = def.AudioBitrate
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = def.FrameRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{opts: opts, logger: logger}
}

// Render implements Renderer. On failure the partial output file is removed.
func (d *Driver) Render(ctx context.Context, job Job) (media.Asset, error) {
	if err := validateJob(job); err != nil {
		return media.Asset{}, err
	}

	args := d.Args(job)
	d.logger.Debug("running ffmpeg",
		slog.String("output", job.Output),
		slog.Float64("total_seconds", job.Timeline.TotalSeconds),
		slog.String("filter_complex", job.Graph.Script()),
	)

	start := time.Now()
	if err := d.runFFmpeg(ctx, args); err != nil {
		_ = os.Remove(job.Output)
		return media.Asset{}, err
	}

	d.logger.Info("composition finished",
		slog.String("output", job.Output),
		slog.Duration("duration", time.Since(start)),
	)
	return media.NewAsset(job.Output, media.KindVideo), nil
}

// Args returns the ffmpeg command line for job, without the binary.
//
// Inputs follow the graph's index contract: still, audio, then logo. Image
// inputs are looped and cut at the planned total; the audio is delayed by
// the intro and padded with silence, and -shortest together with -t trims
// the output to exactly the total.
func (d *Driver) Args(job Job) []string {
	total := seconds(job.Timeline.TotalSeconds)
	fps := strconv.Itoa(d.opts.FrameRate)

	args := []string{
		"-y",
		"-hide_banner",
		"-loop", "1", "-framerate", fps, "-t", total, "-i", job.Graph.Still().Path(),
		"-i", job.Audio.Path(),
	}
	if logo, ok := job.Graph.Logo(); ok {
		args = append(args, "-loop", "1", "-framerate", fps, "-t", total, "-i", logo.Path())
	}

	filter := job.Graph.Script() + ";" + audioChain(job.IntroSeconds)

	return append(args,
		"-filter_complex", filter,
		"-map", "["+string(job.Graph.Output())+"]",
		"-map", "["+AudioLabel+"]",
		"-c:v", "libx264",
		"-preset", d.opts.Preset,
		"-crf", strconv.Itoa(d.opts.CRF),
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-c:a", "aac",
		"-b:a", d.opts.AudioBitrate,
		"-t", total,
		"-shortest",
		"-movflags", "+faststart",
		job.Output,
	)
}

// audioChain delays the audio input by delaySeconds on every channel and
// pads its tail with silence.
func audioChain(delaySeconds float64) string {
	in := fmt.Sprintf("[%d:a]", graph.InputAudio)
	out := "[" + AudioLabel + "]"
	ms := int64(math.Round(math.Max(0, delaySeconds) * 1000))
	if ms == 0 {
		return in + "apad" + out
	}
	return fmt.Sprintf("%sadelay=delays=%d:all=1,apad%s", in, ms, out)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func validateJob(job Job) error {
	if job.Graph == nil {
		return ErrNoGraph
	}
	if job.Output == "" {
		return ErrNoOutput
	}
	if job.Audio.Kind() != media.KindAudio {
		return fmt.Errorf("audio input: %w", media.ErrNotAudio)
	}
	if job.Timeline.TotalSeconds <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidDuration, job.Timeline.TotalSeconds)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns a
// CompositionError containing stderr output if the command fails. A
// cancelled context kills the process.
func (d *Driver) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.opts.FFmpegPath, args...)
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return &CompositionError{
				Args:   args,
				Stderr: stderr.String(),
				Err:    fmt.Errorf("ffmpeg cancelled: %w", ctx.Err()),
			}
		}
		return &CompositionError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	if stderr.Len() > 0 {
		d.logger.Debug("ffmpeg stderr", slog.String("stderr", stderr.String()))
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Renderer = (*Driver)(nil)
