package posterior

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
)

var log = logrus.WithField("component", "posterior")

// BinEdges are the lower bounds of the log-density bins, relative to the
// maximum. Sub-voxels below the last edge fall into a final bin that is
// always discarded.
var BinEdges = []float64{-1, -2, -3, -4, -6, -8, -12, -16, -24, -32, -48, -64}

// Regime is one way of blending likelihood and prior.
type Regime int

const (
	PureLikelihood Regime = iota
	Bayesian
	PurePrior
	Configured
	NumRegimes
)

func (r Regime) String() string {
	switch r {
	case PureLikelihood:
		return "likelihood"
	case Bayesian:
		return "bayesian"
	case PurePrior:
		return "prior"
	case Configured:
		return "configured"
	}
	return fmt.Sprintf("regime(%d)", int(r))
}

// Weights returns the likelihood and prior weights of Bayesian weight bw.
// Zero is pure likelihood, one is the Bayesian posterior and two is pure prior.
func Weights(bw float64) (like, prior float64) {
	if bw <= 1 {
		return 1, bw
	}
	return 2 - bw, 1
}

type Options struct {
	BayesianWeight   float64 `json:"bayesianWeight"`
	TailTrimFraction float64 `json:"tailTrimFraction"`
	EnsembleSize     int     `json:"ensembleSize"`
}

func (o Options) Validate() error {
	var err error
	if o.BayesianWeight < 0 || o.BayesianWeight > 2 {
		err = multierr.Append(err, errors.Errorf("bayesian weight %v is outside [0, 2]", o.BayesianWeight))
	}
	if o.TailTrimFraction < 0 || o.TailTrimFraction >= 1 {
		err = multierr.Append(err, errors.Errorf("tail trim fraction %v is outside [0, 1)", o.TailTrimFraction))
	}
	if o.EnsembleSize <= 0 || bits.OnesCount(uint(o.EnsembleSize)) != 1 {
		err = multierr.Append(err, errors.Errorf("ensemble size %d is not a power of two", o.EnsembleSize))
	}
	if err != nil {
		return fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	return nil
}

// OptionsFromConfig copies the posterior section of a fit configuration.
func OptionsFromConfig(cfg fitter.PosteriorConfig) Options {
	return Options{
		BayesianWeight:   cfg.BayesianWeight,
		TailTrimFraction: cfg.TailTrimFraction,
		EnsembleSize:     cfg.EnsembleSize,
	}
}

// Ref addresses one sub-voxel of a voxel set.
type Ref struct {
	Voxel int `json:"voxel"`
	Sub   int `json:"sub"`
}

// Maximum is the sub-voxel of highest log-density under one regime.
type Maximum struct {
	Ref

	Weight     float64 `json:"weight"`
	LogDensity float64 `json:"logDensity"`
}

func (m Maximum) Found() bool { return !math.IsInf(m.LogDensity, -1) }

type Selector struct {
	voxels []*fitter.StatVoxel
	opts   Options

	likeWeight, priorWeight float64

	// flattened sub-voxel log-densities in voxel then sub-voxel order
	logDensity []float64
	refs       []Ref

	maxima [NumRegimes]Maximum
}

// NewSelector computes the blended log-density of every sub-voxel and the
// maxima of every regime. The voxels must not change afterwards.
func NewSelector(voxels []*fitter.StatVoxel, opts Options) (*Selector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(voxels) == 0 {
		return nil, fiterr.NewConfigError("posterior needs at least one voxel")
	}

	s := &Selector{voxels: voxels, opts: opts}
	s.likeWeight, s.priorWeight = Weights(opts.BayesianWeight)

	regimeWeights := [NumRegimes]float64{0, 1, 2, opts.BayesianWeight}
	var wl, wp [NumRegimes]float64
	for r, bw := range regimeWeights {
		wl[r], wp[r] = Weights(bw)
		s.maxima[r] = Maximum{Ref: Ref{-1, -1}, Weight: bw, LogDensity: math.Inf(-1)}
	}

	n := 0
	for _, v := range voxels {
		n += len(v.SubVoxels)
	}
	s.logDensity = make([]float64, 0, n)
	s.refs = make([]Ref, 0, n)

	for iv, v := range voxels {
		for is, sub := range v.SubVoxels {
			ref := Ref{Voxel: iv, Sub: is}
			for r := range s.maxima {
				ld := blend(sub, wl[r], wp[r])
				if ld > s.maxima[r].LogDensity {
					s.maxima[r].Ref = ref
					s.maxima[r].LogDensity = ld
				}
			}
			s.logDensity = append(s.logDensity, blend(sub, s.likeWeight, s.priorWeight))
			s.refs = append(s.refs, ref)
		}
	}

	if !s.maxima[Configured].Found() {
		return nil, fiterr.NewConfigError("no sub-voxel of %d voxels has a finite posterior density", len(voxels))
	}

	log.Debugf("posterior over %d sub-voxels, maximum log-density %.6g at voxel %d",
		n, s.maxima[Configured].LogDensity, s.maxima[Configured].Voxel)
	return s, nil
}

// blend is the log of the probability mass of a sub-voxel. A zero weight
// drops its term even when the term is infinite.
func blend(sub fitter.SubVoxel, wl, wp float64) float64 {
	ld := sub.PriorLogVolume
	if wl != 0 {
		ld += wl * sub.LogLikelihood
	}
	if wp != 0 {
		ld += wp * sub.PriorLogDensity
	}
	if math.IsNaN(ld) {
		return math.Inf(-1)
	}
	return ld
}

func (s *Selector) Maximum(r Regime) Maximum { return s.maxima[r] }

// MLE returns the maximum likelihood sub-voxel.
func (s *Selector) MLE() Maximum { return s.maxima[PureLikelihood] }

func (s *Selector) Voxels() []*fitter.StatVoxel { return s.voxels }

func (s *Selector) NumSubVoxels() int { return len(s.refs) }

// binOf returns the bin of a log-density relative to the maximum.
func binOf(r float64) int {
	for i, edge := range BinEdges {
		if r >= edge {
			return i
		}
	}
	return len(BinEdges)
}

// Select draws the ensemble. Sub-voxels are kept bin by bin, from the
// maximum outwards, until the kept mass reaches 1 - TailTrimFraction of the
// mass of all bins but the last. The kept sub-voxels are then resampled
// systematically in index order and the picks are permuted by bit reversal,
// so every prefix of power-of-two length spreads over the whole posterior.
func (s *Selector) Select() (*Ensemble, error) {
	top := s.maxima[Configured].LogDensity
	nBins := len(BinEdges) + 1

	bins := make([]int, len(s.logDensity))
	mass := make([]float64, len(s.logDensity))
	binMass := make([]float64, nBins)
	for i, ld := range s.logDensity {
		r := ld - top
		bins[i] = binOf(r)
		mass[i] = math.Exp(r)
		binMass[bins[i]] += mass[i]
	}

	cumulative := make([]float64, nBins-1)
	floats.CumSum(cumulative, binMass[:nBins-1])
	reference := cumulative[len(cumulative)-1]
	threshold := (1 - s.opts.TailTrimFraction) * reference

	keep := 0
	for keep < len(cumulative)-1 && cumulative[keep] < threshold {
		keep++
	}
	total := cumulative[keep]

	kept := 0
	for i := range mass {
		if bins[i] > keep {
			mass[i] = 0
		} else {
			kept++
		}
	}

	size := s.opts.EnsembleSize
	picks, err := systematicResample(mass, total, size)
	if err != nil {
		return nil, err
	}

	ens := &Ensemble{
		Members: make([]Member, size),
		Maxima:  s.maxima,
		Options: s.opts,
		Voxels:  s.voxels,
		Mass:    total,
		Kept:    kept,
		Bins:    keep + 1,
	}

	shift := bits.UintSize - bits.Len(uint(size-1))
	for i := range ens.Members {
		j := i
		if size > 1 {
			j = int(bits.Reverse(uint(i)) >> shift)
		}
		p := picks[j]
		ens.Members[i] = Member{Ref: s.refs[p], LogDensity: s.logDensity[p] - top}
	}

	log.WithFields(logrus.Fields{
		"size":      size,
		"subVoxels": len(s.refs),
		"kept":      kept,
		"bins":      keep + 1,
	}).Infof("selected posterior ensemble, kept mass %.6g of %.6g", total, reference)

	return ens, nil
}

// systematicResample picks n indices at the mass positions (k + 1/2) * total/n.
// Rounding can leave the last position past the accumulated mass; such a
// shortfall of one pick goes to the last index with mass.
func systematicResample(mass []float64, total float64, n int) ([]int, error) {
	if !(total > 0) || math.IsInf(total, 1) {
		return nil, fiterr.NewInvariantError("resampling needs a finite positive mass, got %v", total)
	}

	step := total / float64(n)
	picks := make([]int, 0, n)
	last := -1

	acc := -0.5 * step
	for i, m := range mass {
		if m == 0 {
			continue
		}
		last = i
		acc += m
		for acc > 0 && len(picks) < n {
			picks = append(picks, i)
			acc -= step
		}
	}

	if last < 0 {
		return nil, fiterr.NewInvariantError("resampling found no sub-voxel with mass")
	}

	if acc > step {
		return nil, fiterr.NewInvariantError("resampling left mass %v after %d ensemble members", acc, n)
	}

	short := n - len(picks)
	if short > 1 {
		return nil, fiterr.NewInvariantError("resampling picked %d of %d ensemble members", len(picks), n)
	}
	for ; short > 0; short-- {
		picks = append(picks, last)
	}
	return picks, nil
}
