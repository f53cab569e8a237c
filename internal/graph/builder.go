package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/timeline"
)

// builder allocates stage labels in emission order.
type builder struct {
	stages []Stage
}

// add appends a stage and returns its freshly allocated output label.
func (b *builder) add(role, filter string, inputs ...Label) Label {
	out := Label(fmt.Sprintf("v%d", len(b.stages)))
	b.stages = append(b.stages, Stage{
		Role:   role,
		Inputs: inputs,
		Filter: filter,
		Output: out,
	})
	return out
}

// Branding is the logo variant of a render: WithLogo or NoLogo. Both
// variants consume the normalized base and converge on a single branded
// label, so overlay stages never depend on which one ran.
type Branding interface {
	apply(b *builder, base Label) Label
	asset() media.Asset
	validate() error
}

// Offset is a pixel position from the top-left corner.
type Offset struct {
	X int
	Y int
}

// WithLogo composites a logo with a soft drop shadow onto the base.
type WithLogo struct {
	Logo media.Asset
	// Width is the scaled logo width; height keeps the aspect ratio.
	Width int
	// Position is where the logo is placed.
	Position Offset
	// ShadowPosition is where the shadow is placed, slightly off Position so it peeks out.
	ShadowPosition Offset
	// ShadowOpacity is the shadow alpha multiplier in [0, 1].
	ShadowOpacity float64
	// ShadowBlur is the box blur radius in pixels.
	ShadowBlur int
}

// DefaultLogoWidth is the logo width used when none is configured.
const DefaultLogoWidth = 220

// DefaultLogo returns WithLogo with the standard placement in the top-left corner.
func DefaultLogo(logo media.Asset, width int) WithLogo {
	if width <= 0 {
		width = DefaultLogoWidth
	}
	return WithLogo{
		Logo:           logo,
		Width:          width,
		Position:       Offset{X: 40, Y: 40},
		ShadowPosition: Offset{X: 46, Y: 48},
		ShadowOpacity:  0.45,
		ShadowBlur:     6,
	}
}

func (w WithLogo) apply(b *builder, base Label) Label {
	logo := b.add("logo", fmt.Sprintf("scale=%d:-1,format=rgba", w.Width), Input(InputLogo))
	shadow := b.add("shadow", fmt.Sprintf("colorchannelmixer=rr=0:gg=0:bb=0:aa=%.2f,boxblur=%d:1",
		w.ShadowOpacity, w.ShadowBlur), logo)
	shadowed := b.add("shadowed", fmt.Sprintf("overlay=%d:%d:format=auto",
		w.ShadowPosition.X, w.ShadowPosition.Y), base, shadow)
	return b.add("branded", fmt.Sprintf("overlay=%d:%d:format=auto",
		w.Position.X, w.Position.Y), shadowed, logo)
}

func (w WithLogo) asset() media.Asset { return w.Logo }

func (w WithLogo) validate() error {
	if w.Logo.IsZero() {
		return fmt.Errorf("logo branding without logo asset")
	}
	if w.Width <= 0 {
		return fmt.Errorf("logo width must be positive, got %d", w.Width)
	}
	if w.ShadowOpacity < 0 || w.ShadowOpacity > 1 {
		return fmt.Errorf("shadow opacity must be in [0,1], got %.2f", w.ShadowOpacity)
	}
	if w.ShadowBlur < 0 {
		return fmt.Errorf("shadow blur must not be negative, got %d", w.ShadowBlur)
	}
	return nil
}

// NoLogo passes the base through unchanged.
type NoLogo struct{}

func (NoLogo) apply(b *builder, base Label) Label {
	return b.add("branded", "null", base)
}

func (NoLogo) asset() media.Asset { return media.Asset{} }

func (NoLogo) validate() error { return nil }

// Build produces the composition graph for one render.
//
// Stages are emitted in this order: normalization of the still to dims, the
// branding variant, then one stage per overlay. Overlays are emitted by
// the segment their window starts in (intro, hero, end card) keeping the
// given order within a segment, so the end-card dim layer is always painted
// over intro text. Overlay windows are clipped to the timeline and snapped to
// whole milliseconds; overlays whose window is then empty are dropped.
func Build(still media.Asset, branding Branding, tl timeline.Timeline, overlays []OverlaySpec, dims Dimensions) (*Graph, error) {
	if still.IsZero() {
		return nil, &BuildError{Err: ErrNoStill}
	}
	if err := dims.Validate(); err != nil {
		return nil, &BuildError{Err: err}
	}
	if branding == nil {
		branding = NoLogo{}
	}
	if err := branding.validate(); err != nil {
		return nil, &BuildError{Err: err}
	}

	b := &builder{}
	base := b.add("base", normalizeFilter(dims), Input(InputStill))
	current := branding.apply(b, base)

	for _, o := range paintOrder(overlays, tl) {
		filter, err := o.Filter()
		if err != nil {
			return nil, &BuildError{Err: fmt.Errorf("overlay %q: %w", o.Name, err)}
		}
		current = b.add(o.Name, filter, current)
	}

	g := &Graph{
		stages: b.stages,
		output: current,
		still:  still,
		logo:   branding.asset(),
		dims:   dims,
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// normalizeFilter scales and center-crops to dims and converts to a format
// with an alpha channel for compositing.
func normalizeFilter(dims Dimensions) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,format=rgba",
		dims.Width, dims.Height, dims.Width, dims.Height)
}

// paintOrder clips every overlay window, drops the empty ones and returns
// the rest stably ordered by the segment their window starts in. The
// declared Segment does not affect the order.
func paintOrder(overlays []OverlaySpec, tl timeline.Timeline) []OverlaySpec {
	ordered := make([]OverlaySpec, 0, len(overlays))
	for _, o := range overlays {
		o.Window = clip(o.Window, tl)
		if o.Window.Duration() == 0 {
			continue
		}
		ordered = append(ordered, o)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return tl.SegmentAt(ordered[i].Window.Start) < tl.SegmentAt(ordered[j].Window.Start)
	})
	return ordered
}

// clip bounds w to the timeline on the millisecond grid that enable renders,
// so a window that survives clip never prints as empty.
func clip(w timeline.Window, tl timeline.Timeline) timeline.Window {
	w.Start = snap(math.Max(0, w.Start))
	w.End = snap(math.Min(w.End, tl.TotalSeconds))
	return w
}

func snap(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
