package etas

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/quakelab/etasfit/pkg/history"
)

// triangular is a jagged matrix stored as one flat buffer. Row lengths are
// fixed when the matrix is allocated.
type triangular struct {
	offsets []int
	data    []float64
}

func newTriangular(rowLens []int) triangular {
	offsets := make([]int, len(rowLens)+1)
	for i, n := range rowLens {
		offsets[i+1] = offsets[i] + n
	}
	return triangular{
		offsets: offsets,
		data:    make([]float64, offsets[len(rowLens)]),
	}
}

func (m *triangular) rows() int { return len(m.offsets) - 1 }

func (m *triangular) row(i int) []float64 {
	return m.data[m.offsets[i]:m.offsets[i+1]]
}

func (m *triangular) size() int { return len(m.data) }

// apply computes ys[v][i] = d[i] * (M xs[v])[i] + offs[v][i] for every vector v.
// A nil d is the identity and a nil offset vector is zero.
func (m *triangular) apply(d []float64, xs, offs, ys [][]float64) {
	for i := 0; i < m.rows(); i++ {
		row := m.row(i)
		for v := range xs {
			y := floats.Dot(row, xs[v][:len(row)])
			if d != nil {
				y *= d[i]
			}
			if offs != nil && offs[v] != nil {
				y += offs[v][i]
			}
			ys[v][i] = y
		}
	}
}

// OmoriKernelCache holds the Omori kernel values between sources and targets
// for one (p, c) pair.
//
// Rupture to rupture and interval to rupture rows run over the target
// ruptures; rupture to interval and interval to interval rows run over all
// intervals, since every interval is a source whose strength depends on its
// own intensity.
type OmoriKernelCache struct {
	hist *history.History
	mask KernelMask

	P float64
	C float64

	rr     triangular
	ri     triangular
	ir     triangular
	ii     triangular
	iiSelf []float64
}

func NewOmoriKernelCache(hist *history.History, mask KernelMask) *OmoriKernelCache {
	c := &OmoriKernelCache{
		hist: hist,
		mask: mask,
		P:    math.NaN(),
		C:    math.NaN(),
	}

	nTgt := hist.NumTargetRuptures()
	nInt := hist.NumIntervals()

	if mask.Has(KernelRuptureRupture) {
		lens := make([]int, nTgt)
		for j := range lens {
			lens[j] = hist.RupturesBefore(hist.Ruptures[hist.RupFitBegin+j].T)
		}
		c.rr = newTriangular(lens)
	}

	if mask.Has(KernelRuptureInterval) {
		lens := make([]int, nInt)
		for i, iv := range hist.Intervals {
			lens[i] = hist.RupturesBefore(iv.End)
		}
		c.ri = newTriangular(lens)
	}

	if mask.Has(KernelIntervalRupture) {
		lens := make([]int, nTgt)
		for j := range lens {
			// the interval containing the rupture carries the rupture's own
			// offspring, so only intervals ending at or before it are sources
			lens[j] = hist.Ruptures[hist.RupFitBegin+j].TimeIndex
		}
		c.ir = newTriangular(lens)
	}

	if mask.Has(KernelIntervalInterval) {
		lens := make([]int, nInt)
		for i := range lens {
			lens[i] = i
		}
		c.ii = newTriangular(lens)
		c.iiSelf = make([]float64, nInt)
	}

	return c
}

func (c *OmoriKernelCache) History() *history.History { return c.hist }

func (c *OmoriKernelCache) Mask() KernelMask { return c.mask }

// Size returns the number of kernel values held.
func (c *OmoriKernelCache) Size() int {
	return c.rr.size() + c.ri.size() + c.ir.size() + c.ii.size() + len(c.iiSelf)
}

// Build fills every allocated matrix for (p, c).
func (c *OmoriKernelCache) Build(p, cval float64) {
	h := c.hist
	c.P = p
	c.C = cval

	if c.mask.Has(KernelRuptureRupture) {
		for j := 0; j < c.rr.rows(); j++ {
			t := h.Ruptures[h.RupFitBegin+j].T
			row := c.rr.row(j)
			for r := range row {
				row[r] = OmoriRate(p, cval, t-h.Ruptures[r].T)
			}
		}
	}

	if c.mask.Has(KernelRuptureInterval) {
		for i, iv := range h.Intervals {
			row := c.ri.row(i)
			for r := range row {
				tr := h.Ruptures[r].T
				row[r] = OmoriIntegral(p, cval, math.Max(iv.Begin, tr)-tr, iv.End-tr)
			}
		}
	}

	if c.mask.Has(KernelIntervalRupture) {
		for j := 0; j < c.ir.rows(); j++ {
			t := h.Ruptures[h.RupFitBegin+j].T
			row := c.ir.row(j)
			for k := range row {
				iv := h.Intervals[k]
				row[k] = OmoriIntegral(p, cval, t-iv.End, t-iv.Begin)
			}
		}
	}

	if c.mask.Has(KernelIntervalInterval) {
		for i, target := range h.Intervals {
			row := c.ii.row(i)
			for k := range row {
				src := h.Intervals[k]
				row[k] = OmoriDoubleIntegral(p, cval, src.Begin, src.End, target.Begin, target.End)
			}
			c.iiSelf[i] = OmoriSelfIntegral(p, cval, target.Width())
		}
	}
}

// QTime is the time part of the branch ratio normalization.
func (c *OmoriKernelCache) QTime(timeRange float64) float64 {
	return OmoriIntegral(c.P, c.C, 0, timeRange)
}

// ApplyRuptureRupture computes, per target rupture, the kernel weighted sum of
// the rupture source vectors.
func (c *OmoriKernelCache) ApplyRuptureRupture(d []float64, xs, offs, ys [][]float64) {
	c.rr.apply(d, xs, offs, ys)
}

// ApplyRuptureInterval computes, per interval, the integral over the interval
// of the intensity generated by the rupture source vectors.
func (c *OmoriKernelCache) ApplyRuptureInterval(d []float64, xs, offs, ys [][]float64) {
	c.ri.apply(d, xs, offs, ys)
}

// ApplyIntervalRupture computes, per target rupture, the intensity generated by
// interval source densities.
func (c *OmoriKernelCache) ApplyIntervalRupture(d []float64, xs, offs, ys [][]float64) {
	c.ir.apply(d, xs, offs, ys)
}

// minSelfDenominator bounds 1 - d[i] * self[i]; below it an interval excites
// itself without limit.
const minSelfDenominator = 1e-6

// ApplyIntervalRecurrence resolves the interval to interval forward recurrence
//
//	ys[v][i] = offs[v][i] + sum_{k<i} M[i][k] xs[v][k] + self[i] xs[v][i]
//	xs[v][i] = d[i] ys[v][i]
//
// one interval at a time in increasing time order, since each row reads the
// source values of the earlier rows. It returns false when some interval is
// supercritical; the outputs are then unusable.
func (c *OmoriKernelCache) ApplyIntervalRecurrence(d []float64, offs, ys, xs [][]float64) bool {
	ok := true
	for i := 0; i < c.ii.rows(); i++ {
		row := c.ii.row(i)
		denom := 1.0 - d[i]*c.iiSelf[i]
		if denom < minSelfDenominator {
			ok = false
			denom = minSelfDenominator
		}

		for v := range ys {
			y := (offs[v][i] + floats.Dot(row, xs[v][:i])) / denom
			ys[v][i] = y
			xs[v][i] = d[i] * y
		}
	}
	return ok
}
