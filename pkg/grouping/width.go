package grouping

import (
	"math"

	"github.com/quakelab/etasfit/pkg/history"
)

// RuptureAcceptFunc selects the ruptures that take part in grouping.
type RuptureAcceptFunc func(r int, rup history.Rupture) bool

// IntervalAcceptFunc selects the intervals that take part in grouping.
type IntervalAcceptFunc func(i int, iv history.Interval) bool

// SpanWidthFunc returns the largest width a group may have near time t.
type SpanWidthFunc func(t float64) float64

// RuptureWidthFunc returns the largest width of any group holding rupture r.
type RuptureWidthFunc func(r int, rup history.Rupture) float64

func AcceptAllRuptures(int, history.Rupture) bool { return true }

func AcceptAllIntervals(int, history.Interval) bool { return true }

// AcceptRupturesAbove accepts the ruptures of magnitude at least minMag.
func AcceptRupturesAbove(minMag float64) RuptureAcceptFunc {
	return func(_ int, rup history.Rupture) bool {
		return rup.Mag >= minMag
	}
}

// AcceptIntervalsBefore accepts the intervals ending no later than t.
func AcceptIntervalsBefore(t float64) IntervalAcceptFunc {
	return func(_ int, iv history.Interval) bool {
		return iv.End <= t
	}
}

func ConstantSpanWidth(w float64) SpanWidthFunc {
	return func(float64) float64 { return w }
}

// RelativeSpanWidth allows groups a fixed fraction of their age relative to
// tRef, so groups widen further into the past.
func RelativeSpanWidth(tRef, ratio, minWidth, maxWidth float64) SpanWidthFunc {
	return func(t float64) float64 {
		return clamp(ratio*(tRef-t), minWidth, maxWidth)
	}
}

func UnlimitedRuptureWidth(int, history.Rupture) float64 { return math.Inf(1) }

// TaperedRuptureWidth narrows the groups around large and recent ruptures.
// The allowed width is ratio*(tRef - t) where ratio falls linearly from
// highRatio at magLow to lowRatio at magHigh and stays flat outside.
func TaperedRuptureWidth(tRef, magLow, magHigh, highRatio, lowRatio, minWidth float64) RuptureWidthFunc {
	return func(_ int, rup history.Rupture) float64 {
		ratio := highRatio
		switch {
		case rup.Mag >= magHigh:
			ratio = lowRatio
		case rup.Mag > magLow:
			ratio = highRatio + (lowRatio-highRatio)*(rup.Mag-magLow)/(magHigh-magLow)
		}
		return math.Max(ratio*(tRef-rup.T), minWidth)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
