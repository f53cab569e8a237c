package graph

import (
	"strconv"
	"strings"

	"github.com/maauso/sitereel/internal/timeline"
)

// Copy is the text shown on the intro and the end card.
type Copy struct {
	BrandLine1 string
	BrandLine2 string
	CTALine1   string
	CTALine2   string
}

// Style holds presentation parameters for the standard overlays.
type Style struct {
	FontFile     string
	FontColor    string
	ShadowColor  string
	TitleSize    int
	SubtitleSize int
	// LineGap is the vertical gap between the two lines, in pixels.
	LineGap int
	// DimColor fills the frame behind the end-card text.
	DimColor string
}

// DefaultStyle returns a style with font sizes proportional to the frame height.
func DefaultStyle(dims Dimensions) Style {
	return Style{
		FontColor:    "white",
		ShadowColor:  "black@0.6",
		TitleSize:    max(12, dims.Height/15),
		SubtitleSize: max(10, dims.Height/24),
		LineGap:      max(4, dims.Height/90),
		DimColor:     "black@0.6",
	}
}

// StandardOverlays returns the overlay list for a render: the brand lines
// during the intro, then a full-frame dim layer and the call-to-action lines
// during the end card. Empty lines are left out.
func StandardOverlays(tl timeline.Timeline, c Copy, s Style) []OverlaySpec {
	intro := tl.Window(timeline.SegmentIntro)
	endCard := tl.Window(timeline.SegmentEndCard)

	var overlays []OverlaySpec
	overlays = appendLines(overlays, "brand", timeline.SegmentIntro, intro, c.BrandLine1, c.BrandLine2, s)

	overlays = append(overlays, OverlaySpec{
		Name:    "end_card_dim",
		Kind:    OverlayBox,
		Segment: timeline.SegmentEndCard,
		Window:  endCard,
		Color:   s.DimColor,
	})
	return appendLines(overlays, "cta", timeline.SegmentEndCard, endCard, c.CTALine1, c.CTALine2, s)
}

// appendLines adds a title line above the vertical center and a subtitle
// line below it.
func appendLines(dst []OverlaySpec, prefix string, seg timeline.Segment, w timeline.Window, title, subtitle string, s Style) []OverlaySpec {
	gap := strconv.Itoa(s.LineGap)
	if strings.TrimSpace(title) != "" {
		dst = append(dst, OverlaySpec{
			Name:        prefix + "_title",
			Kind:        OverlayText,
			Segment:     seg,
			Window:      w,
			Text:        title,
			FontFile:    s.FontFile,
			FontSize:    s.TitleSize,
			FontColor:   s.FontColor,
			ShadowColor: s.ShadowColor,
			X:           "(w-text_w)/2",
			Y:           "(h/2)-text_h-" + gap,
		})
	}
	if strings.TrimSpace(subtitle) != "" {
		dst = append(dst, OverlaySpec{
			Name:        prefix + "_subtitle",
			Kind:        OverlayText,
			Segment:     seg,
			Window:      w,
			Text:        subtitle,
			FontFile:    s.FontFile,
			FontSize:    s.SubtitleSize,
			FontColor:   s.FontColor,
			ShadowColor: s.ShadowColor,
			X:           "(w-text_w)/2",
			Y:           "(h/2)+" + gap,
		})
	}
	return dst
}
