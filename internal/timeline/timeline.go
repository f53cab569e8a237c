// Package timeline plans the segment layout of a rendered video: a fixed
// intro, a hero segment as long as the audio, and a fixed end card.
package timeline

import (
	"fmt"
	"math"
)

// Segment names a time window of the output.
type Segment int

const (
	// SegmentIntro is the opening window, before the audio starts.
	SegmentIntro Segment = iota
	// SegmentHero is the window the audio plays in.
	SegmentHero
	// SegmentEndCard is the closing window with the call to action.
	SegmentEndCard
)

func (s Segment) String() string {
	switch s {
	case SegmentIntro:
		return "intro"
	case SegmentHero:
		return "hero"
	case SegmentEndCard:
		return "end_card"
	default:
		return fmt.Sprintf("segment(%d)", int(s))
	}
}

// Window is the half-open interval [Start, End) in seconds.
type Window struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t float64) bool {
	return t >= w.Start && t < w.End
}

// Duration returns the window length, never negative.
func (w Window) Duration() float64 {
	return math.Max(0, w.End-w.Start)
}

// Timeline holds the segment boundaries of one render, in seconds.
type Timeline struct {
	IntroSeconds        float64
	HeroSeconds         float64
	EndCardSeconds      float64
	TotalSeconds        float64
	EndCardStartSeconds float64
}

// Plan computes the timeline for audio of the given length.
//
// The total is intro + audio + end card, raised to minimumTotal. The end card
// starts endCardSeconds before the end, clamped to zero. Negative or NaN
// inputs are treated as zero. Plan is pure and deterministic.
func Plan(audioSeconds, introSeconds, endCardSeconds, minimumTotal float64) Timeline {
	audioSeconds = nonNegative(audioSeconds)
	introSeconds = nonNegative(introSeconds)
	endCardSeconds = nonNegative(endCardSeconds)
	minimumTotal = nonNegative(minimumTotal)

	total := math.Max(minimumTotal, introSeconds+audioSeconds+endCardSeconds)

	return Timeline{
		IntroSeconds:        introSeconds,
		HeroSeconds:         audioSeconds,
		EndCardSeconds:      endCardSeconds,
		TotalSeconds:        total,
		EndCardStartSeconds: math.Max(0, total-endCardSeconds),
	}
}

// Window returns the interval a segment occupies.
func (t Timeline) Window(s Segment) Window {
	switch s {
	case SegmentIntro:
		return Window{Start: 0, End: math.Min(t.IntroSeconds, t.TotalSeconds)}
	case SegmentHero:
		return Window{Start: math.Min(t.IntroSeconds, t.TotalSeconds), End: t.EndCardStartSeconds}
	case SegmentEndCard:
		return Window{Start: t.EndCardStartSeconds, End: t.TotalSeconds}
	default:
		return Window{}
	}
}

// SegmentAt returns the segment showing at time at. Times past the end
// belong to the end card and times before zero to the intro.
func (t Timeline) SegmentAt(at float64) Segment {
	switch {
	case at >= t.EndCardStartSeconds:
		return SegmentEndCard
	case t.Window(SegmentHero).Contains(at):
		return SegmentHero
	default:
		return SegmentIntro
	}
}

// AudioDelaySeconds is how far the audio start is pushed back: the intro length.
func (t Timeline) AudioDelaySeconds() float64 {
	return t.IntroSeconds
}

func (t Timeline) String() string {
	return fmt.Sprintf("intro=%.3fs hero=%.3fs end_card=%.3fs@%.3fs total=%.3fs",
		t.IntroSeconds, t.HeroSeconds, t.EndCardSeconds, t.EndCardStartSeconds, t.TotalSeconds)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
