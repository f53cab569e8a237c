package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MinDurationSeconds is the floor applied to every probed duration. Some
// encoders write a nominal duration of zero when metadata is missing.
const MinDurationSeconds = 1.0

// minProbeTimeout is the smallest limit handed to ffprobe. ProbeWithTimeout
// treats a non-positive timeout as no limit at all.
const minProbeTimeout = 100 * time.Millisecond

// Static errors for duration probing.
var (
	// ErrNotAudio is returned when a non-audio asset is probed.
	ErrNotAudio = errors.New("asset is not audio")
	// ErrNoDuration is returned when ffprobe reports no usable duration.
	ErrNoDuration = errors.New("no duration in probe output")
	// ErrInvalidDuration is returned when the reported duration is negative or not finite.
	ErrInvalidDuration = errors.New("invalid duration")
)

// ProbeError is returned when the duration of an asset cannot be measured.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Prober measures the duration of an audio asset.
type Prober interface {
	// Probe returns the duration of audio in seconds, never less than
	// MinDurationSeconds.
	Probe(ctx context.Context, audio Asset) (float64, error)
}

// probeFunc matches ffmpeg.ProbeWithTimeout so tests can replace the binary.
type probeFunc func(fileName string, timeout time.Duration, kwargs ffmpeg.KwArgs) (string, error)

// FFprobe implements Prober with ffprobe through ffmpeg-go.
type FFprobe struct {
	timeout time.Duration
	run     probeFunc
	logger  *slog.Logger
}

// NewFFprobe creates an FFprobe. A non-positive timeout disables the
// per-call limit; the context deadline still applies.
func NewFFprobe(timeout time.Duration, logger *slog.Logger) *FFprobe {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFprobe{
		timeout: timeout,
		run:     ffmpeg.ProbeWithTimeout,
		logger:  logger,
	}
}

// Probe implements Prober.
func (p *FFprobe) Probe(ctx context.Context, audio Asset) (float64, error) {
	if audio.Kind() != KindAudio {
		return 0, &ProbeError{Path: audio.Path(), Err: fmt.Errorf("%w: %s", ErrNotAudio, audio.Kind())}
	}

	if err := ctx.Err(); err != nil {
		return 0, &ProbeError{Path: audio.Path(), Err: fmt.Errorf("ffprobe cancelled: %w", err)}
	}
	timeout := p.timeoutFor(ctx)

	// Cancelling ctx stops the wait only. ffprobe itself keeps running until
	// timeout kills it.
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := p.run(audio.Path(), timeout, ffmpeg.KwArgs{"v": "error"})
		done <- result{out: out, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return 0, &ProbeError{Path: audio.Path(), Err: fmt.Errorf("ffprobe cancelled: %w", ctx.Err())}
	case res = <-done:
	}
	if res.err != nil {
		return 0, &ProbeError{Path: audio.Path(), Err: fmt.Errorf("ffprobe: %w", res.err)}
	}

	seconds, err := parseDuration(res.out)
	if err != nil {
		return 0, &ProbeError{Path: audio.Path(), Err: err}
	}

	clamped := ClampDuration(seconds)
	if clamped != seconds {
		p.logger.Warn("audio duration below floor, clamping",
			slog.String("path", audio.Path()),
			slog.Float64("reported_seconds", seconds),
			slog.Float64("seconds", clamped),
		)
	}
	p.logger.Debug("audio probed",
		slog.String("path", audio.Path()),
		slog.Float64("seconds", clamped),
	)
	return clamped, nil
}

// timeoutFor returns the per-call limit shortened to the time left on ctx.
// A deadline never yields less than minProbeTimeout.
func (p *FFprobe) timeoutFor(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return p.timeout
	}
	remaining := max(time.Until(deadline), minProbeTimeout)
	if p.timeout <= 0 || remaining < p.timeout {
		return remaining
	}
	return p.timeout
}

// ClampDuration applies the MinDurationSeconds floor.
func ClampDuration(seconds float64) float64 {
	return math.Max(MinDurationSeconds, seconds)
}

// probeOutput is the subset of ffprobe's JSON output that carries the duration.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseDuration extracts format.duration from ffprobe JSON output.
// A reported zero is accepted (it is clamped by the caller); a missing,
// non-numeric, negative or non-finite value is an error.
func parseDuration(raw string) (float64, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}

	value := strings.TrimSpace(out.Format.Duration)
	if value == "" || strings.EqualFold(value, "N/A") {
		return 0, ErrNoDuration
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}
	return seconds, nil
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobe)(nil)
