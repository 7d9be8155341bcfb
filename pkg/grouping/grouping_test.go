package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/history"
)

// palindromic history on [0, 20]: mirroring t to 20 - t maps it onto itself
func palindromeHistory(t *testing.T) *history.History {
	var intervals []history.Interval
	for b := 0.0; b < 20; b += 2 {
		intervals = append(intervals, history.Interval{Begin: b, End: b + 2, MagC: 3})
	}

	h, err := history.New(history.Spec{
		MagCat:   3,
		MagTop:   8,
		FitBegin: 0,
		FitEnd:   20,
		Ruptures: []history.Rupture{
			{T: 0.5, Mag: 4.0},
			{T: 4.0, Mag: 5.5},
			{T: 6.5, Mag: 3.2},
			{T: 10.0, Mag: 4.1},
			{T: 13.5, Mag: 3.2},
			{T: 16.0, Mag: 5.5},
			{T: 19.5, Mag: 4.0},
		},
		Intervals: intervals,
	})
	require.NoError(t, err)
	return h
}

func TestBuild_ForwardReverseSymmetry(t *testing.T) {
	h := palindromeHistory(t)

	for _, width := range []float64{0, 3, 5, 7.5, 100} {
		fwd, err := Build(h, Options{SpanWidth: ConstantSpanWidth(width), Direction: Forward})
		require.NoError(t, err)

		rev, err := Build(h, Options{SpanWidth: ConstantSpanWidth(width), Direction: Reverse})
		require.NoError(t, err)

		require.Equal(t, fwd.NumGroups(), rev.NumGroups(), "width=%v", width)

		n := fwd.NumGroups()
		var fr, fi, rr, ri int
		for g := 0; g < n; g++ {
			a, b := fwd.Groups[g], rev.Groups[n-1-g]
			assert.Equal(t, a.Begin, 20-b.End, "width=%v group=%d", width, g)
			assert.Equal(t, a.End, 20-b.Begin, "width=%v group=%d", width, g)
			assert.Equal(t, a.Center, 20-b.Center, "width=%v group=%d", width, g)
			assert.Equal(t, a.Ruptures, b.Ruptures)
			assert.Equal(t, a.Intervals, b.Intervals)

			fr += a.Ruptures
			fi += a.Intervals
			rr += b.Ruptures
			ri += b.Intervals
		}

		assert.Equal(t, fr, rr)
		assert.Equal(t, fi, ri)
		assert.Equal(t, h.NumRuptures(), fr)
		assert.Equal(t, h.NumIntervals(), fi)

		// mirrored ruptures land in mirrored groups
		for r := range h.Ruptures {
			mirror := h.NumRuptures() - 1 - r
			assert.Equal(t, fwd.RuptureGroup(r), n-1-rev.RuptureGroup(mirror), "width=%v rupture=%d", width, r)
		}
	}
}

func TestBuild_Partition(t *testing.T) {
	h := palindromeHistory(t)
	g, err := Build(h, Options{
		AcceptRupture:  AcceptRupturesAbove(4.0),
		AcceptInterval: AcceptIntervalsBefore(12),
		SpanWidth:      ConstantSpanWidth(4),
	})
	require.NoError(t, err)

	rups, ints := g.NumAccepted()
	assert.Equal(t, 5, rups)
	assert.Equal(t, 6, ints)

	for r, rup := range h.Ruptures {
		if rup.Mag < 4.0 {
			assert.Equal(t, -1, g.RuptureGroup(r))
		} else {
			assert.GreaterOrEqual(t, g.RuptureGroup(r), 0)
		}
	}
	for i, iv := range h.Intervals {
		if iv.End > 12 {
			assert.Equal(t, -1, g.IntervalGroup(i))
		}
	}

	for id, grp := range g.Groups {
		if grp.Ruptures+grp.Intervals > 1 {
			assert.LessOrEqual(t, grp.Width(), 4.0)
		}
		if id > 0 {
			assert.GreaterOrEqual(t, grp.Begin, g.Groups[id-1].End)
		}
	}

	assert.NoError(t, g.Verify())
}

func TestBuild_InteriorRuptureJoinsInterval(t *testing.T) {
	h := palindromeHistory(t)

	// zero width splits every source apart, yet the rupture at 0.5 stays with [0, 2]
	g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(0)})
	require.NoError(t, err)

	assert.Equal(t, g.IntervalGroup(0), g.RuptureGroup(0))
	assert.Equal(t, 2, g.Groups[0].Ruptures+g.Groups[0].Intervals)

	// the rupture at 4.0 sits on a boundary and stands alone
	r := g.RuptureGroup(1)
	assert.Equal(t, 4.0, g.Groups[r].Begin)
	assert.Equal(t, 4.0, g.Groups[r].End)
	assert.Equal(t, 1, g.Groups[r].Ruptures)
}

func TestBuild_OversizedSource(t *testing.T) {
	h := palindromeHistory(t)

	// every interval is twice the bound
	g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(1)})
	require.NoError(t, err)
	require.NoError(t, g.Verify())

	assert.Equal(t, h.NumIntervals(), g.NumOversized())
	for id, grp := range g.Groups {
		if grp.Width() > 1 {
			assert.True(t, grp.Oversized, "group %d", id)
			assert.Equal(t, 1, grp.Intervals, "group %d", id)
		} else {
			assert.False(t, grp.Oversized, "group %d", id)
		}
	}

	// the interior rupture rides along with its interval
	first := g.Groups[g.IntervalGroup(0)]
	assert.True(t, first.Oversized)
	assert.Equal(t, 1, first.Ruptures)

	assert.False(t, g.Groups[g.RuptureGroup(1)].Oversized)

	t.Run("merged groups stay within the bound", func(t *testing.T) {
		g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(5)})
		require.NoError(t, err)
		assert.Equal(t, 0, g.NumOversized())
		for _, grp := range g.Groups {
			assert.LessOrEqual(t, grp.Width(), 5.0)
		}
	})
}

func TestBuild_TaperedRuptureWidth(t *testing.T) {
	h := palindromeHistory(t)
	taper := TaperedRuptureWidth(20, 4.0, 5.0, 1.0, 0.0, 0)

	assert.Equal(t, 0.0, taper(1, h.Ruptures[1]))
	assert.InDelta(t, 19.5, taper(0, h.Ruptures[0]), 1e-12)
	assert.InDelta(t, 0.9*10, taper(3, h.Ruptures[3]), 1e-12)

	g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(100), RuptureWidth: taper})
	require.NoError(t, err)

	// the large ruptures isolate themselves
	for _, r := range []int{1, 5} {
		grp := g.Groups[g.RuptureGroup(r)]
		assert.Equal(t, 1, grp.Ruptures)
		assert.Equal(t, 0, grp.Intervals)
	}
}

func TestRelativeSpanWidth(t *testing.T) {
	f := RelativeSpanWidth(100, 0.1, 0.5, 5)
	assert.Equal(t, 5.0, f(0))
	assert.InDelta(t, 2.0, f(80), 1e-12)
	assert.Equal(t, 0.5, f(99))
	assert.Equal(t, 0.5, f(100))
}

func TestVerify_DetectsCorruption(t *testing.T) {
	h := palindromeHistory(t)
	g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(5)})
	require.NoError(t, err)

	g.Groups[0].Ruptures++
	err = g.Verify()
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.InvariantViolation))
	g.Groups[0].Ruptures--

	g.RuptureGroups[3] = -1
	err = g.Verify()
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.InvariantViolation))
}

func TestVerify_RejectsWideMergedGroup(t *testing.T) {
	h := palindromeHistory(t)
	g, err := Build(h, Options{SpanWidth: ConstantSpanWidth(5)})
	require.NoError(t, err)

	last := len(g.Groups) - 1
	require.Greater(t, g.Groups[last].Ruptures+g.Groups[last].Intervals, 1)

	g.Groups[last].End += 10
	err = g.Verify()
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.InvariantViolation))

	g.Groups[last].Oversized = true
	err = g.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources")
}

func TestConfig(t *testing.T) {
	h := palindromeHistory(t)

	c := DefaultConfig()
	assert.NoError(t, c.Validate())

	c.Direction = Reverse
	c.MagLow, c.MagHigh, c.HighRatio, c.LowRatio = 4, 6, 0.2, 0.05
	g, err := Build(h, c.Options(h))
	require.NoError(t, err)
	assert.NoError(t, g.Verify())

	c.SpanRatio = 0
	err = c.Validate()
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError))

	var d Direction
	assert.NoError(t, d.UnmarshalText([]byte("Reverse")))
	assert.Equal(t, Reverse, d)
	assert.Error(t, d.UnmarshalText([]byte("sideways")))
}
