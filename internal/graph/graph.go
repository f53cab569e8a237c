// Package graph builds the ffmpeg filter graph that composites a still page
// capture, an optional logo and timed overlays into one video stream.
//
// A Graph is an ordered list of stages. Each stage consumes labels that are
// raw inputs or outputs of earlier stages and produces exactly one new label.
// Labels are allocated sequentially by the builder, so build order is
// execution order and a stage can never reference a label defined later.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/sitereel/internal/media"
)

// Raw input indices the graph assumes. The composition driver must supply
// inputs in this order.
const (
	InputStill = 0
	InputAudio = 1
	InputLogo  = 2
)

// Static errors for graph construction and validation.
var (
	// ErrNoStill is returned when the still image asset is missing.
	ErrNoStill = errors.New("still image is required")
	// ErrInvalidDimensions is returned when output dimensions are not positive and even.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive and even")
	// ErrUndefinedLabel is returned when a stage consumes a label no earlier stage produced.
	ErrUndefinedLabel = errors.New("stage consumes undefined label")
	// ErrDuplicateLabel is returned when two stages produce the same label.
	ErrDuplicateLabel = errors.New("label produced twice")
	// ErrUnusedLabel is returned when an intermediate label is never consumed.
	ErrUnusedLabel = errors.New("label produced but never consumed")
	// ErrOutputMismatch is returned when the graph output is not the last stage's label.
	ErrOutputMismatch = errors.New("output label is not produced by the last stage")
	// ErrEmptyGraph is returned when a graph has no stages.
	ErrEmptyGraph = errors.New("graph has no stages")
)

// BuildError is returned when a graph cannot be built or fails validation.
// Given valid inputs the builder cannot produce one; seeing it means a defect.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build filter graph: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Label names a stream inside the graph.
type Label string

// Input returns the label of the video stream of raw input index.
func Input(index int) Label {
	return Label(strconv.Itoa(index) + ":v")
}

// inputIndex returns the raw input index of l, or -1 when l is a stage output.
func (l Label) inputIndex() int {
	idx, ok := strings.CutSuffix(string(l), ":v")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return -1
	}
	return n
}

// IsInput reports whether l refers to a raw input stream.
func (l Label) IsInput() bool {
	return l.inputIndex() >= 0
}

// Stage is one step of the composition.
type Stage struct {
	// Role is a human-readable name for the stage ("base", "logo", an overlay name).
	Role string
	// Inputs are consumed in order.
	Inputs []Label
	// Filter is the ffmpeg filter chain applied to the inputs.
	Filter string
	// Output is the label this stage produces.
	Output Label
}

// Dimensions is the output frame size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// Validate checks that both sides are positive and even (required by yuv420p).
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Width%2 != 0 || d.Height%2 != 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, d.Width, d.Height)
	}
	return nil
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Graph is a built, validated composition graph.
type Graph struct {
	stages []Stage
	output Label
	still  media.Asset
	logo   media.Asset
	dims   Dimensions
}

// Stages returns a copy of the stages in execution order.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.stages))
	for i, s := range g.stages {
		s.Inputs = append([]Label(nil), s.Inputs...)
		out[i] = s
	}
	return out
}

// Output returns the designated video output label.
func (g *Graph) Output() Label { return g.output }

// Still returns the still image the graph reads from InputStill.
func (g *Graph) Still() media.Asset { return g.still }

// Logo returns the logo the graph reads from InputLogo, if branding is present.
func (g *Graph) Logo() (media.Asset, bool) { return g.logo, !g.logo.IsZero() }

// Dimensions returns the output frame size.
func (g *Graph) Dimensions() Dimensions { return g.dims }

// declared reports whether raw input index is supplied to this graph.
func (g *Graph) declared(index int) bool {
	switch index {
	case InputStill:
		return true
	case InputLogo:
		return !g.logo.IsZero()
	default:
		return false
	}
}

// Validate checks the structural invariants of g: every consumed label is a
// declared raw input or the output of an earlier stage, labels are produced
// once, every intermediate label is consumed, and the output is the last
// stage's label.
func Validate(g *Graph) error {
	if len(g.stages) == 0 {
		return &BuildError{Err: ErrEmptyGraph}
	}

	defined := make(map[Label]bool, len(g.stages))
	consumed := make(map[Label]bool, len(g.stages))
	for i, s := range g.stages {
		for _, in := range s.Inputs {
			if idx := in.inputIndex(); idx >= 0 {
				if !g.declared(idx) {
					return &BuildError{Err: fmt.Errorf("%w: stage %d (%s) reads input [%s]", ErrUndefinedLabel, i, s.Role, in)}
				}
				continue
			}
			if !defined[in] {
				return &BuildError{Err: fmt.Errorf("%w: stage %d (%s) reads [%s]", ErrUndefinedLabel, i, s.Role, in)}
			}
			consumed[in] = true
		}
		if s.Output.IsInput() || defined[s.Output] {
			return &BuildError{Err: fmt.Errorf("%w: stage %d (%s) writes [%s]", ErrDuplicateLabel, i, s.Role, s.Output)}
		}
		defined[s.Output] = true
	}

	last := g.stages[len(g.stages)-1].Output
	if g.output != last {
		return &BuildError{Err: fmt.Errorf("%w: output [%s], last stage writes [%s]", ErrOutputMismatch, g.output, last)}
	}
	for _, s := range g.stages[:len(g.stages)-1] {
		if !consumed[s.Output] {
			return &BuildError{Err: fmt.Errorf("%w: [%s] (%s)", ErrUnusedLabel, s.Output, s.Role)}
		}
	}
	return nil
}

// Script renders the graph as an ffmpeg -filter_complex description.
//
// ffmpeg lets a filter output pad feed only one consumer. A label consumed by
// several stages is rendered with a trailing split, and each consumer reads
// its own copy in stage order.
func (g *Graph) Script() string {
	uses := make(map[Label]int)
	for _, s := range g.stages {
		for _, in := range s.Inputs {
			if !in.IsInput() {
				uses[in]++
			}
		}
	}

	next := make(map[Label]int)
	pad := func(l Label) string {
		if l.IsInput() || uses[l] <= 1 {
			return "[" + string(l) + "]"
		}
		n := next[l]
		next[l]++
		return fmt.Sprintf("[%s_%d]", l, n)
	}

	parts := make([]string, 0, len(g.stages))
	for _, s := range g.stages {
		var sb strings.Builder
		for _, in := range s.Inputs {
			sb.WriteString(pad(in))
		}
		sb.WriteString(s.Filter)
		if n := uses[s.Output]; n > 1 {
			fmt.Fprintf(&sb, ",split=%d", n)
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, "[%s_%d]", s.Output, i)
			}
		} else {
			sb.WriteString("[" + string(s.Output) + "]")
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ";")
}
