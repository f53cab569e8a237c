package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/sitereel/internal/timeline"
)

// OverlayKind selects the visual operation of an overlay.
type OverlayKind int

const (
	// OverlayText draws a line of text.
	OverlayText OverlayKind = iota
	// OverlayBox fills a rectangle.
	OverlayBox
)

// Static errors for overlay rendering.
var (
	// ErrEmptyText is returned for a text overlay without text.
	ErrEmptyText = errors.New("text overlay has no text")
	// ErrUnknownOverlay is returned for an unsupported overlay kind.
	ErrUnknownOverlay = errors.New("unknown overlay kind")
	// ErrInvalidWindow is returned when an overlay window ends before it starts.
	ErrInvalidWindow = errors.New("overlay window ends before it starts")
)

// OverlaySpec is a text or box overlay visible only inside Window.
// Positions and sizes are ffmpeg expressions (w, h, text_w, text_h, iw, ih).
type OverlaySpec struct {
	Name    string
	Kind    OverlayKind
	// Segment labels the overlay. Paint order follows Window.
	Segment timeline.Segment
	Window  timeline.Window

	X string
	Y string

	// Text overlays.
	Text        string
	FontFile    string
	FontSize    int
	FontColor   string
	ShadowColor string

	// Box overlays.
	Width  string
	Height string
	Color  string
}

// Filter returns the ffmpeg filter for the overlay, gated to its window.
func (o OverlaySpec) Filter() (string, error) {
	if o.Window.End < o.Window.Start {
		return "", fmt.Errorf("%w: [%.3f, %.3f)", ErrInvalidWindow, o.Window.Start, o.Window.End)
	}

	var opts []string
	switch o.Kind {
	case OverlayText:
		if strings.TrimSpace(o.Text) == "" {
			return "", ErrEmptyText
		}
		if o.FontFile != "" {
			opts = append(opts, "fontfile="+escapeValue(o.FontFile))
		}
		opts = append(opts,
			"expansion=none",
			"text="+escapeValue(o.Text),
			fmt.Sprintf("fontsize=%d", orInt(o.FontSize, 48)),
			"fontcolor="+escapeValue(orString(o.FontColor, "white")),
			"x="+escapeValue(orString(o.X, "(w-text_w)/2")),
			"y="+escapeValue(orString(o.Y, "(h-text_h)/2")),
		)
		if o.ShadowColor != "" {
			opts = append(opts, "shadowcolor="+escapeValue(o.ShadowColor), "shadowx=2", "shadowy=2")
		}
		opts = append(opts, enable(o.Window))
		return "drawtext=" + strings.Join(opts, ":"), nil

	case OverlayBox:
		opts = append(opts,
			"x="+escapeValue(orString(o.X, "0")),
			"y="+escapeValue(orString(o.Y, "0")),
			"w="+escapeValue(orString(o.Width, "iw")),
			"h="+escapeValue(orString(o.Height, "ih")),
			"color="+escapeValue(orString(o.Color, "black@0.6")),
			"t=fill",
			enable(o.Window),
		)
		return "drawbox=" + strings.Join(opts, ":"), nil

	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownOverlay, o.Kind)
	}
}

// enable gates a filter to the half-open window [start, end).
func enable(w timeline.Window) string {
	return fmt.Sprintf("enable='gte(t,%.3f)*lt(t,%.3f)'", w.Start, w.End)
}

// Option values pass two parsers: the filter option parser and the
// filtergraph parser. Each level gets its own backslash escaping.
var (
	optionEscaper = strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
	)
	graphEscaper = strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	)
)

// escapeValue escapes an option value for use inside -filter_complex.
func escapeValue(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
