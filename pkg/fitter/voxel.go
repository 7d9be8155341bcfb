package fitter

import (
	"math"

	"github.com/quakelab/etasfit/pkg/etas"
)

// SubVoxel holds the statistics of one (mainshock offset, background offset)
// cell of a voxel.
type SubVoxel struct {
	PriorLogDensity float64 `json:"priorLogDensity"`
	PriorLogVolume  float64 `json:"priorLogVolume"`
	LogLikelihood   float64 `json:"logLikelihood"`
}

// StatVoxel is the evaluated statistics of one grid point. It is immutable
// once the grid search hands it out.
type StatVoxel struct {
	GridPoint

	Def       *SubVoxelDef `json:"-"`
	SubVoxels []SubVoxel   `json:"subVoxels"`

	// unscaled seed productivity per group, by origin; nil without grouping
	GroupCoef [etas.NumOrigins][]float64 `json:"groupCoef,omitempty"`
}

func (v *StatVoxel) MainshockProductivity(s int) float64 {
	iMs, _ := v.Def.Split(s)
	return v.Def.MainshockProductivity(v.Productivity, iMs)
}

func (v *StatVoxel) BackgroundRate(s int) float64 {
	_, iBg := v.Def.Split(s)
	return v.Def.BackgroundRate(iBg)
}

// SeedProductivities returns the productivity of every group for sub-voxel s.
func (v *StatVoxel) SeedProductivities(s int) []float64 {
	sec := v.GroupCoef[etas.OriginSecondary]
	if sec == nil {
		return nil
	}

	ms := v.GroupCoef[etas.OriginMainshock]
	bg := v.GroupCoef[etas.OriginBackground]
	k, kms, mu := v.Productivity, v.MainshockProductivity(s), v.BackgroundRate(s)

	out := make([]float64, len(sec))
	for g := range out {
		out[g] = k*sec[g] + kms*ms[g] + mu*bg[g]
	}
	return out
}

// EffectiveMagnitude converts a group productivity into the magnitude of a
// single secondary rupture with the same productivity.
func (v *StatVoxel) EffectiveMagnitude(prod, magCat float64) float64 {
	if !(prod > 0) || !(v.Productivity > 0) {
		return math.Inf(-1)
	}
	return magCat + math.Log10(prod/v.Productivity)/v.Alpha
}
