package fitter

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior supplies the Bayesian prior of every sub-voxel of a voxel. Both
// output slices have def.Len() entries and are indexed by sub-voxel. It is
// called concurrently from the grid search workers.
type Prior interface {
	Evaluate(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error
}

// PriorFunc adapts a function to Prior.
type PriorFunc func(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error

func (f PriorFunc) Evaluate(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error {
	return f(point, def, logDensity, logVolume)
}

// UniformPrior has a flat density over the grid box. The log volume is the
// sum of the log cell widths along every axis.
type UniformPrior struct {
	Grid *Grid
}

func NewUniformPrior(grid *Grid) *UniformPrior {
	return &UniformPrior{Grid: grid}
}

func (p *UniformPrior) voxelLogVolume(point GridPoint) float64 {
	g := p.Grid
	ba, cp := g.BA[point.IBA], g.CP[point.ICP]

	v := g.B.LogWidths[ba.I] + g.C.LogWidths[cp.I] + g.P.LogWidths[cp.J] + g.Productivity.LogWidths[point.IProd]
	if !g.AlphaEqualsB {
		v += g.Alpha.LogWidths[ba.J]
	}
	return v
}

func (p *UniformPrior) Evaluate(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error {
	base := p.voxelLogVolume(point)
	for s := range logDensity {
		iMs, iBg := def.Split(s)
		logDensity[s] = 0
		logVolume[s] = base + def.MainshockOffsets.LogWidths[iMs] + def.BackgroundOffsets.LogWidths[iBg]
	}
	return nil
}

// NormalParam is an independent normal prior on one parameter.
type NormalParam struct {
	Mean  float64 `json:"mean" yaml:"mean"`
	Sigma float64 `json:"sigma" yaml:"sigma"`
}

func (n *NormalParam) dist() distuv.Normal {
	return distuv.Normal{Mu: n.Mean, Sigma: n.Sigma}
}

// GaussianPrior puts independent normal densities on b, p, log10 c and log10
// of the secondary productivity; parameters without a NormalParam stay flat.
// Volumes are those of the uniform prior.
type GaussianPrior struct {
	*UniformPrior

	B                 *NormalParam
	P                 *NormalParam
	Log10C            *NormalParam
	Log10Productivity *NormalParam
	MainshockOffset   *NormalParam
}

func (p *GaussianPrior) Evaluate(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error {
	if err := p.UniformPrior.Evaluate(point, def, logDensity, logVolume); err != nil {
		return err
	}

	base := 0.0
	if p.B != nil {
		base += p.B.dist().LogProb(point.B)
	}
	if p.P != nil {
		base += p.P.dist().LogProb(point.P)
	}
	if p.Log10C != nil {
		base += p.Log10C.dist().LogProb(math.Log10(point.C))
	}
	if p.Log10Productivity != nil {
		if !(point.Productivity > 0) {
			return errors.Errorf("productivity %v has no log10 prior density", point.Productivity)
		}
		base += p.Log10Productivity.dist().LogProb(math.Log10(point.Productivity))
	}

	for s := range logDensity {
		logDensity[s] = base
		if p.MainshockOffset != nil {
			iMs, _ := def.Split(s)
			logDensity[s] += p.MainshockOffset.dist().LogProb(def.MainshockOffsets.Values[iMs])
		}
	}
	return nil
}

const (
	PriorUniform  = "uniform"
	PriorGaussian = "gaussian"
)

type PriorConfig struct {
	Type string `json:"type" yaml:"type"`

	B                 *NormalParam `json:"b,omitempty" yaml:"b,omitempty"`
	P                 *NormalParam `json:"p,omitempty" yaml:"p,omitempty"`
	Log10C            *NormalParam `json:"log10C,omitempty" yaml:"log10C,omitempty"`
	Log10Productivity *NormalParam `json:"log10Productivity,omitempty" yaml:"log10Productivity,omitempty"`
	MainshockOffset   *NormalParam `json:"mainshockOffset,omitempty" yaml:"mainshockOffset,omitempty"`
}

func (c PriorConfig) Validate() error {
	switch strings.ToLower(c.Type) {
	case "", PriorUniform:
		return nil
	case PriorGaussian:
		for name, n := range map[string]*NormalParam{
			"b": c.B, "p": c.P, "log10C": c.Log10C, "log10Productivity": c.Log10Productivity, "mainshockOffset": c.MainshockOffset,
		} {
			if n != nil && !(n.Sigma > 0) {
				return errors.Errorf("prior %s sigma must be positive, got %v", name, n.Sigma)
			}
		}
		return nil
	}
	return errors.Errorf("unknown prior type %q", c.Type)
}

// NewPrior builds the configured prior over grid.
func (c PriorConfig) NewPrior(grid *Grid) (Prior, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	uniform := NewUniformPrior(grid)
	if strings.ToLower(c.Type) != PriorGaussian {
		return uniform, nil
	}

	return &GaussianPrior{
		UniformPrior:      uniform,
		B:                 c.B,
		P:                 c.P,
		Log10C:            c.Log10C,
		Log10Productivity: c.Log10Productivity,
		MainshockOffset:   c.MainshockOffset,
	}, nil
}
