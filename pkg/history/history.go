package history

import (
	"math"
	"sort"

	"github.com/quakelab/etasfit/pkg/fiterr"
)

// Zone tells where a rupture lies relative to the fit range.
type Zone int

const (
	ZoneBefore Zone = iota
	ZoneInside
	ZoneAfter
)

type Rupture struct {
	T    float64 `json:"t" yaml:"t"`
	Mag  float64 `json:"mag" yaml:"mag"`
	MagC float64 `json:"magC,omitempty" yaml:"magC,omitempty"`

	// Mainshock ruptures take the mainshock productivity instead of the
	// secondary productivity.
	Mainshock bool `json:"mainshock,omitempty" yaml:"mainshock,omitempty"`

	// TimeIndex is the number of intervals lying entirely before the rupture.
	TimeIndex int `json:"-" yaml:"-"`

	// Interior is set when the rupture lies strictly inside interval TimeIndex.
	Interior bool `json:"-" yaml:"-"`
}

type Interval struct {
	Begin float64 `json:"begin" yaml:"begin"`
	End   float64 `json:"end" yaml:"end"`
	MagC  float64 `json:"magC" yaml:"magC"`
}

func (i Interval) Width() float64 { return i.End - i.Begin }

// Spec is the raw input of New.
type Spec struct {
	MagCat    float64    `json:"magCat" yaml:"magCat"`
	MagTop    float64    `json:"magTop" yaml:"magTop"`
	FitBegin  float64    `json:"fitBegin" yaml:"fitBegin"`
	FitEnd    float64    `json:"fitEnd" yaml:"fitEnd"`
	Ruptures  []Rupture  `json:"ruptures" yaml:"ruptures"`
	Intervals []Interval `json:"intervals" yaml:"intervals"`
}

// History is the discretized earthquake history a fit runs on. It is
// immutable once built and shared read-only between fit workers.
type History struct {
	MagCat float64
	MagTop float64

	FitBegin float64
	FitEnd   float64

	Ruptures  []Rupture
	Intervals []Interval

	// target ruptures are [RupFitBegin, RupFitEnd)
	RupFitBegin, RupFitEnd int

	// target intervals are [IntFitBegin, IntFitEnd)
	IntFitBegin, IntFitEnd int

	times []float64
	ends  []float64
}

// New validates the raw history and derives the per-rupture interval indices.
func New(spec Spec) (*History, error) {
	if len(spec.Intervals) == 0 {
		return nil, fiterr.NewConfigError("history has no intervals")
	}

	if !(spec.MagTop > spec.MagCat) {
		return nil, fiterr.NewConfigError("magTop %v must be greater than magCat %v", spec.MagTop, spec.MagCat)
	}

	h := &History{
		MagCat:    spec.MagCat,
		MagTop:    spec.MagTop,
		FitBegin:  spec.FitBegin,
		FitEnd:    spec.FitEnd,
		Ruptures:  make([]Rupture, len(spec.Ruptures)),
		Intervals: make([]Interval, len(spec.Intervals)),
	}
	copy(h.Ruptures, spec.Ruptures)
	copy(h.Intervals, spec.Intervals)

	h.ends = make([]float64, len(h.Intervals))
	for i, iv := range h.Intervals {
		if isNaN(iv.Begin, iv.End, iv.MagC) {
			return nil, fiterr.NewConfigError("interval %d has NaN fields", i)
		}
		if !(iv.End > iv.Begin) {
			return nil, fiterr.NewConfigError("interval %d boundaries not increasing: [%v, %v]", i, iv.Begin, iv.End)
		}
		if i > 0 && iv.Begin != h.Intervals[i-1].End {
			return nil, fiterr.NewConfigError("interval %d begins at %v but interval %d ends at %v", i, iv.Begin, i-1, h.Intervals[i-1].End)
		}
		if iv.MagC < h.MagCat {
			return nil, fiterr.NewConfigError("interval %d completeness %v below catalog magnitude %v", i, iv.MagC, h.MagCat)
		}
		h.ends[i] = iv.End
	}

	var ok bool
	if h.IntFitBegin, ok = h.boundaryIndex(spec.FitBegin); !ok {
		return nil, fiterr.NewConfigError("fit begin %v is not an interval boundary", spec.FitBegin)
	}
	if h.IntFitEnd, ok = h.boundaryIndex(spec.FitEnd); !ok {
		return nil, fiterr.NewConfigError("fit end %v is not an interval boundary", spec.FitEnd)
	}
	if h.IntFitEnd <= h.IntFitBegin {
		return nil, fiterr.NewConfigError("empty fit range [%v, %v)", spec.FitBegin, spec.FitEnd)
	}

	begin, end := h.Begin(), h.End()
	h.times = make([]float64, len(h.Ruptures))
	for i := range h.Ruptures {
		r := &h.Ruptures[i]
		if isNaN(r.T, r.Mag, r.MagC) {
			return nil, fiterr.NewConfigError("rupture %d has NaN fields", i)
		}
		if r.T < begin || r.T > end {
			return nil, fiterr.NewConfigError("rupture %d at %v outside history range [%v, %v]", i, r.T, begin, end)
		}
		if i > 0 && r.T < h.Ruptures[i-1].T {
			return nil, fiterr.NewConfigError("rupture %d at %v precedes rupture %d at %v", i, r.T, i-1, h.Ruptures[i-1].T)
		}

		// number of intervals with End <= t
		r.TimeIndex = sort.Search(len(h.ends), func(k int) bool { return h.ends[k] > r.T })
		r.Interior = r.TimeIndex < len(h.Intervals) && h.Intervals[r.TimeIndex].Begin < r.T

		if r.MagC < h.MagCat {
			r.MagC = h.Intervals[h.containing(r)].MagC
		}

		h.times[i] = r.T
	}

	h.RupFitBegin = sort.SearchFloat64s(h.times, h.FitBegin)
	h.RupFitEnd = sort.SearchFloat64s(h.times, h.FitEnd)
	return h, nil
}

func (h *History) boundaryIndex(t float64) (int, bool) {
	if t == h.Intervals[0].Begin {
		return 0, true
	}
	k := sort.SearchFloat64s(h.ends, t)
	if k < len(h.ends) && h.ends[k] == t {
		return k + 1, true
	}
	return 0, false
}

// containing returns the interval a rupture belongs to; a rupture sitting on a
// boundary belongs to the interval that starts there.
func (h *History) containing(r *Rupture) int {
	if r.TimeIndex >= len(h.Intervals) {
		return len(h.Intervals) - 1
	}
	return r.TimeIndex
}

func (h *History) Begin() float64 { return h.Intervals[0].Begin }

func (h *History) End() float64 { return h.Intervals[len(h.Intervals)-1].End }

func (h *History) NumRuptures() int { return len(h.Ruptures) }

func (h *History) NumIntervals() int { return len(h.Intervals) }

func (h *History) NumTargetRuptures() int { return h.RupFitEnd - h.RupFitBegin }

func (h *History) NumTargetIntervals() int { return h.IntFitEnd - h.IntFitBegin }

// RuptureTimes returns the shared, sorted rupture times. Callers must not modify it.
func (h *History) RuptureTimes() []float64 { return h.times }

// RupturesBefore returns the number of ruptures strictly before t.
func (h *History) RupturesBefore(t float64) int {
	return sort.SearchFloat64s(h.times, t)
}

func (h *History) IsTargetInterval(i int) bool {
	return i >= h.IntFitBegin && i < h.IntFitEnd
}

func (h *History) Zone(r int) Zone {
	switch {
	case r < h.RupFitBegin:
		return ZoneBefore
	case r < h.RupFitEnd:
		return ZoneInside
	}
	return ZoneAfter
}

// MagRange returns the smallest and largest rupture magnitudes, or MagCat
// twice for an empty history.
func (h *History) MagRange() (lo, hi float64) {
	if len(h.Ruptures) == 0 {
		return h.MagCat, h.MagCat
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range h.Ruptures {
		lo = math.Min(lo, r.Mag)
		hi = math.Max(hi, r.Mag)
	}
	return lo, hi
}

func isNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
