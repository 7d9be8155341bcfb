package posterior

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
)

// Param is a primary grid parameter a marginal can be taken over.
type Param int

const (
	ParamB Param = iota
	ParamAlpha
	ParamC
	ParamP
	ParamProductivity
	ParamBranchRatio
)

var paramNames = map[Param]string{
	ParamB:            "b",
	ParamAlpha:        "alpha",
	ParamC:            "c",
	ParamP:            "p",
	ParamProductivity: "productivity",
	ParamBranchRatio:  "branchRatio",
}

func (p Param) String() string { return paramNames[p] }

// LogScale reports whether the parameter is usually gridded on a log scale.
func (p Param) LogScale() bool { return p == ParamC || p == ParamProductivity }

func (p Param) value(point fitter.GridPoint) float64 {
	switch p {
	case ParamB:
		return point.B
	case ParamAlpha:
		return point.Alpha
	case ParamC:
		return point.C
	case ParamP:
		return point.P
	case ParamProductivity:
		return point.Productivity
	case ParamBranchRatio:
		return point.BranchRatio
	}
	return math.NaN()
}

func ParseParam(name string) (Param, error) {
	for p, n := range paramNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return 0, fiterr.NewConfigError("unknown parameter %q", name)
}

// Marginal is the posterior summed over every parameter but one. LogDensity
// is relative to its maximum.
type Marginal struct {
	Param      Param
	Regime     Regime
	Values     []float64
	LogDensity []float64
}

// NewMarginal integrates the blended posterior of bayesian weight bw over
// everything but param.
func NewMarginal(voxels []*fitter.StatVoxel, param Param, bw float64) (*Marginal, error) {
	if len(voxels) == 0 {
		return nil, fiterr.NewConfigError("marginal over an empty voxel set")
	}

	wl, wp := Weights(bw)
	buckets := make(map[float64][]float64)
	for _, v := range voxels {
		x := param.value(v.GridPoint)
		for _, sub := range v.SubVoxels {
			buckets[x] = append(buckets[x], blend(sub, wl, wp))
		}
	}

	m := &Marginal{Param: param, Regime: regimeOf(bw)}
	for x := range buckets {
		m.Values = append(m.Values, x)
	}
	sort.Float64s(m.Values)

	m.LogDensity = make([]float64, len(m.Values))
	for i, x := range m.Values {
		m.LogDensity[i] = floats.LogSumExp(buckets[x])
	}

	top := floats.Max(m.LogDensity)
	if math.IsInf(top, -1) {
		return nil, fiterr.NewConfigError("marginal over %s has no finite density", param)
	}
	floats.AddConst(-top, m.LogDensity)
	return m, nil
}

func regimeOf(bw float64) Regime {
	switch bw {
	case 0:
		return PureLikelihood
	case 1:
		return Bayesian
	case 2:
		return PurePrior
	}
	return Configured
}

// Argmax returns the value of the highest density.
func (m *Marginal) Argmax() float64 {
	return m.Values[floats.MaxIdx(m.LogDensity)]
}

// Density returns the densities relative to the maximum.
func (m *Marginal) Density() []float64 {
	out := make([]float64, len(m.LogDensity))
	for i, ld := range m.LogDensity {
		out[i] = math.Exp(ld)
	}
	return out
}
