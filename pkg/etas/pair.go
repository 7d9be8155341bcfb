package etas

import (
	"math"

	"github.com/quakelab/etasfit/pkg/fiterr"
)

// ParamTolerance is the relative tolerance used to match cached parameters.
const ParamTolerance = 1e-10

// PairCache applies one OmoriKernelCache to one MagnitudeExponentCache. The
// referenced caches are only read and must not be rebuilt while the pair is
// in use.
type PairCache struct {
	Mag   *MagnitudeExponentCache
	Omori *OmoriKernelCache

	B, Alpha, C, P float64

	// unscaled intensity at each target rupture from rupture sources
	TgtRupSecondary []float64
	TgtRupMainshock []float64

	// unscaled integrated intensity over each interval from rupture sources
	IntSecondary []float64
	IntMainshock []float64

	qTime float64
}

func NewPairCache(mag *MagnitudeExponentCache) *PairCache {
	h := mag.History()
	nTgt := h.NumTargetRuptures()
	nInt := h.NumIntervals()
	return &PairCache{
		B:               math.NaN(),
		Alpha:           math.NaN(),
		C:               math.NaN(),
		P:               math.NaN(),
		TgtRupSecondary: make([]float64, nTgt),
		TgtRupMainshock: make([]float64, nTgt),
		IntSecondary:    make([]float64, nInt),
		IntMainshock:    make([]float64, nInt),
	}
}

func (pc *PairCache) Build(mag *MagnitudeExponentCache, omori *OmoriKernelCache) error {
	if mag.History() != omori.History() {
		return fiterr.NewInvariantError("pair cache built from caches of different histories")
	}

	if len(pc.IntSecondary) != mag.History().NumIntervals() || len(pc.TgtRupSecondary) != mag.History().NumTargetRuptures() {
		return fiterr.NewInvariantError("pair cache sized for another history")
	}

	pc.Mag = mag
	pc.Omori = omori
	pc.B, pc.Alpha = mag.B, mag.Alpha
	pc.C, pc.P = omori.C, omori.P

	xs := [][]float64{mag.RupProdSecondary, mag.RupProdMainshock}
	omori.ApplyRuptureRupture(nil, xs, nil, [][]float64{pc.TgtRupSecondary, pc.TgtRupMainshock})
	omori.ApplyRuptureInterval(nil, xs, nil, [][]float64{pc.IntSecondary, pc.IntMainshock})

	pc.qTime = omori.QTime(mag.Options().BranchTimeRange)
	return nil
}

// BranchRatioToProductivity converts a branch ratio into the secondary
// productivity k such that the expected number of direct offspring, over the
// productivity magnitude range and the branch time range, equals n.
func (pc *PairCache) BranchRatioToProductivity(n float64) float64 {
	return n / (pc.Mag.QMag * pc.qTime)
}

func (pc *PairCache) ProductivityToBranchRatio(k float64) float64 {
	return k * pc.Mag.QMag * pc.qTime
}

// CheckParams verifies that the pair was built for the expected parameters.
// A mismatch means a stale handle was reused.
func (pc *PairCache) CheckParams(b, alpha, c, p float64) error {
	if !relEqual(pc.B, b) || !relEqual(pc.Alpha, alpha) || !relEqual(pc.C, c) || !relEqual(pc.P, p) {
		return fiterr.NewInvariantError("pair cache holds (b=%v, alpha=%v, c=%v, p=%v), expected (b=%v, alpha=%v, c=%v, p=%v)",
			pc.B, pc.Alpha, pc.C, pc.P, b, alpha, c, p)
	}
	return nil
}

func relEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= ParamTolerance*math.Max(math.Abs(a), math.Abs(b))
}
