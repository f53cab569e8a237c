package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan_Scenario(t *testing.T) {
	tl := Plan(28.4, 1.5, 4.0, 5.0)

	assert.InDelta(t, 33.9, tl.TotalSeconds, 1e-9)
	assert.InDelta(t, 29.9, tl.EndCardStartSeconds, 1e-9)
	assert.Equal(t, 1.5, tl.IntroSeconds)
	assert.Equal(t, 28.4, tl.HeroSeconds)
	assert.Equal(t, 4.0, tl.EndCardSeconds)
}

func TestPlan_Properties(t *testing.T) {
	audios := []float64{0, 0.2, 1, 3.3, 28.4, 600}
	intros := []float64{0, 1.5, 3}
	endCards := []float64{0, 4, 10}
	floors := []float64{0, 5, 30}

	for _, a := range audios {
		for _, i := range intros {
			for _, e := range endCards {
				for _, f := range floors {
					tl := Plan(a, i, e, f)

					assert.GreaterOrEqual(t, tl.TotalSeconds, f, "total below floor for %v", tl)
					if want := tl.TotalSeconds - e; want >= 0 {
						assert.InDelta(t, want, tl.EndCardStartSeconds, 1e-9)
					} else {
						assert.Equal(t, 0.0, tl.EndCardStartSeconds)
					}
					if a > 0 {
						assert.Less(t, tl.IntroSeconds+tl.EndCardSeconds, tl.TotalSeconds,
							"hero window empty for %v", tl)
					}
					for _, v := range []float64{tl.IntroSeconds, tl.HeroSeconds, tl.EndCardSeconds, tl.TotalSeconds, tl.EndCardStartSeconds} {
						assert.GreaterOrEqual(t, v, 0.0)
					}
				}
			}
		}
	}
}

func TestPlan_FloorApplied(t *testing.T) {
	tl := Plan(1.0, 0.5, 0.5, 5.0)

	assert.Equal(t, 5.0, tl.TotalSeconds)
	assert.Equal(t, 4.5, tl.EndCardStartSeconds)
}

func TestPlan_EndCardLongerThanTotal(t *testing.T) {
	tl := Plan(0, 0, 8, 5)

	assert.Equal(t, 8.0, tl.TotalSeconds)
	assert.Equal(t, 0.0, tl.EndCardStartSeconds)
}

func TestPlan_InvalidInputsClamp(t *testing.T) {
	tl := Plan(-4, math.NaN(), -1, -10)

	assert.Equal(t, Timeline{}, tl)
}

func TestPlan_Deterministic(t *testing.T) {
	assert.Equal(t, Plan(12.34, 1.5, 4, 5), Plan(12.34, 1.5, 4, 5))
}

func TestTimeline_Window(t *testing.T) {
	tl := Plan(10, 1.5, 4, 5)

	intro := tl.Window(SegmentIntro)
	hero := tl.Window(SegmentHero)
	end := tl.Window(SegmentEndCard)

	assert.Equal(t, Window{Start: 0, End: 1.5}, intro)
	assert.Equal(t, Window{Start: 1.5, End: 11.5}, hero)
	assert.Equal(t, Window{Start: 11.5, End: 15.5}, end)

	assert.True(t, intro.Contains(0))
	assert.False(t, intro.Contains(1.5))
	assert.True(t, end.Contains(11.5))
	assert.False(t, end.Contains(15.5))
	assert.Equal(t, 10.0, hero.Duration())
	assert.Equal(t, 1.5, tl.AudioDelaySeconds())
}

func TestTimeline_SegmentAt(t *testing.T) {
	tl := Plan(10, 1.5, 4, 5)

	assert.Equal(t, SegmentIntro, tl.SegmentAt(-1))
	assert.Equal(t, SegmentIntro, tl.SegmentAt(0))
	assert.Equal(t, SegmentHero, tl.SegmentAt(1.5))
	assert.Equal(t, SegmentHero, tl.SegmentAt(11.499))
	assert.Equal(t, SegmentEndCard, tl.SegmentAt(11.5))
	assert.Equal(t, SegmentEndCard, tl.SegmentAt(20))

	// Without an intro the hero starts at zero.
	assert.Equal(t, SegmentHero, Plan(10, 0, 4, 5).SegmentAt(0))
}

func TestSegment_String(t *testing.T) {
	assert.Equal(t, "intro", SegmentIntro.String())
	assert.Equal(t, "hero", SegmentHero.String())
	assert.Equal(t, "end_card", SegmentEndCard.String())
	assert.Equal(t, "segment(7)", Segment(7).String())
}
