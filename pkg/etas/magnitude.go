package etas

import (
	"math"

	"github.com/quakelab/etasfit/pkg/history"
)

// MagnitudeExponentCache holds the magnitude dependent vectors for one
// (b, alpha) pair. It is rebuilt in place by Build.
type MagnitudeExponentCache struct {
	hist   *history.History
	opts   Options
	groups Groups

	B     float64
	Alpha float64

	// QMag is the magnitude part of the branch ratio normalization,
	// b ln10 W((alpha - b) ln10, magTop - magCat).
	QMag float64

	// unscaled rupture productivity 10^(alpha (m - mref)), zero for the
	// other class; indexed by rupture
	RupProdSecondary []float64
	RupProdMainshock []float64

	// partial likelihood factor of each target rupture, indexed from RupFitBegin
	TgtRupLike []float64

	// sum of log(TgtRupLike)
	LogTgtRupLike float64

	// partial likelihood factor of each interval, zero outside the fit range
	IntLike []float64

	// expected unscaled productivity of one event below the interval
	// completeness; zero when interval sources are disabled
	IntUnobservedProd []float64

	// background references, independent of (b, alpha)
	IntWidth         []float64
	TgtRupBackground []float64

	// per group sums of the rupture productivities, nil without grouping
	GroupProdSecondary []float64
	GroupProdMainshock []float64
}

func NewMagnitudeExponentCache(hist *history.History, opts Options, groups Groups) *MagnitudeExponentCache {
	nRup := hist.NumRuptures()
	nInt := hist.NumIntervals()
	nTgt := hist.NumTargetRuptures()

	c := &MagnitudeExponentCache{
		hist:              hist,
		opts:              opts,
		groups:            groups,
		B:                 math.NaN(),
		Alpha:             math.NaN(),
		RupProdSecondary:  make([]float64, nRup),
		RupProdMainshock:  make([]float64, nRup),
		TgtRupLike:        make([]float64, nTgt),
		IntLike:           make([]float64, nInt),
		IntUnobservedProd: make([]float64, nInt),
		IntWidth:          make([]float64, nInt),
		TgtRupBackground:  make([]float64, nTgt),
	}

	for i, iv := range hist.Intervals {
		c.IntWidth[i] = iv.Width()
	}

	for j := range c.TgtRupBackground {
		c.TgtRupBackground[j] = 1.0
	}

	if groups != nil {
		c.GroupProdSecondary = make([]float64, groups.NumGroups())
		c.GroupProdMainshock = make([]float64, groups.NumGroups())
	}

	return c
}

func (c *MagnitudeExponentCache) History() *history.History { return c.hist }

func (c *MagnitudeExponentCache) Options() Options { return c.opts }

func (c *MagnitudeExponentCache) Groups() Groups { return c.groups }

// Build fills the cache for (b, alpha). The history is only read.
func (c *MagnitudeExponentCache) Build(b, alpha float64) {
	h := c.hist
	mref := h.MagCat
	c.B = b
	c.Alpha = alpha

	c.QMag = b * Ln10 * CalcW((alpha-b)*Ln10, h.MagTop-mref)

	for r, rup := range h.Ruptures {
		prod := math.Pow(10, alpha*(rup.Mag-mref))
		if rup.Mainshock {
			c.RupProdSecondary[r] = 0
			c.RupProdMainshock[r] = prod
		} else {
			c.RupProdSecondary[r] = prod
			c.RupProdMainshock[r] = 0
		}
	}

	c.LogTgtRupLike = 0
	for j := range c.TgtRupLike {
		f := c.likeFactor(h.Ruptures[h.RupFitBegin+j].MagC)
		c.TgtRupLike[j] = f
		c.LogTgtRupLike += math.Log(f)
	}

	for i, iv := range h.Intervals {
		if h.IsTargetInterval(i) {
			c.IntLike[i] = c.likeFactor(iv.MagC)
		} else {
			c.IntLike[i] = 0
		}

		if c.opts.IntervalSources {
			c.IntUnobservedProd[i] = b * Ln10 * CalcW((alpha-b)*Ln10, iv.MagC-mref)
		} else {
			c.IntUnobservedProd[i] = 0
		}
	}

	if c.groups != nil {
		clear(c.GroupProdSecondary)
		clear(c.GroupProdMainshock)
		for r := range h.Ruptures {
			if g := c.groups.RuptureGroup(r); g >= 0 {
				c.GroupProdSecondary[g] += c.RupProdSecondary[r]
				c.GroupProdMainshock[g] += c.RupProdMainshock[r]
			}
		}
	}
}

// likeFactor returns the fraction of the events above mref that fall inside
// the likelihood magnitude range of a target with completeness mc.
func (c *MagnitudeExponentCache) likeFactor(mc float64) float64 {
	h := c.hist
	if !c.opts.MagRange.Local() {
		mc = h.MagCat
	}

	f := math.Pow(10, -c.B*(mc-h.MagCat))
	if c.opts.MagRange.Capped() {
		top := math.Max(h.MagTop, mc+MinCappedMagRange)
		f *= -math.Expm1(-c.B * Ln10 * (top - mc))
	}
	return f
}

// Productivity returns 10^(alpha (mag - mref)) for the current alpha.
func (c *MagnitudeExponentCache) Productivity(mag float64) float64 {
	return math.Pow(10, c.Alpha*(mag-c.hist.MagCat))
}
