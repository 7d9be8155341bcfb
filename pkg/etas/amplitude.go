package etas

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/quakelab/etasfit/pkg/fiterr"
)

// Origin identifies which productivity a contribution scales with.
type Origin int

const (
	OriginSecondary Origin = iota
	OriginMainshock
	OriginBackground
	NumOrigins
)

func (o Origin) String() string {
	switch o {
	case OriginSecondary:
		return "secondary"
	case OriginMainshock:
		return "mainshock"
	case OriginBackground:
		return "background"
	}
	return "unknown"
}

// AmplitudeCache resolves the interval source recurrence for one interval
// productivity scale and keeps the results split by origin, so that the
// likelihood is linear in the mainshock productivity and the background
// rate.
type AmplitudeCache struct {
	pair *PairCache

	// K is the secondary productivity the interval sources were resolved with.
	K float64

	supercritical bool

	srcScale []float64

	// per origin, integrated intensity over each interval
	intIntensity [NumOrigins][]float64

	// per origin, scaled source density of each interval
	intSource [NumOrigins][]float64

	// per origin, intensity at each target rupture
	rupIntensity [NumOrigins][]float64

	// per origin, likelihood weighted integrated intensity over the target intervals
	totalIntegral [NumOrigins]float64

	groupCoef [NumOrigins][]float64
}

func NewAmplitudeCache(mag *MagnitudeExponentCache) *AmplitudeCache {
	h := mag.History()
	nInt := h.NumIntervals()
	nTgt := h.NumTargetRuptures()

	a := &AmplitudeCache{
		K:        math.NaN(),
		srcScale: make([]float64, nInt),
	}

	for o := Origin(0); o < NumOrigins; o++ {
		a.intIntensity[o] = make([]float64, nInt)
		a.intSource[o] = make([]float64, nInt)
		a.rupIntensity[o] = make([]float64, nTgt)
		if g := mag.Groups(); g != nil {
			a.groupCoef[o] = make([]float64, g.NumGroups())
		}
	}
	return a
}

func (a *AmplitudeCache) Pair() *PairCache { return a.pair }

// Supercritical reports whether some interval excites itself without bound
// at this productivity; the likelihood is then -Inf.
func (a *AmplitudeCache) Supercritical() bool { return a.supercritical }

// Build resolves the cache for the pair and the secondary productivity k.
// Building twice from the same inputs gives bit-identical results.
func (a *AmplitudeCache) Build(pair *PairCache, k float64) error {
	mag, omori := pair.Mag, pair.Omori
	if mag == nil || omori == nil {
		return fiterr.NewInvariantError("amplitude cache built from an empty pair cache")
	}

	if len(a.srcScale) != mag.History().NumIntervals() {
		return fiterr.NewInvariantError("amplitude cache sized for another history")
	}

	a.pair = pair
	a.K = k
	a.supercritical = false

	offs := [][]float64{pair.IntSecondary, pair.IntMainshock, mag.IntWidth}
	ys := a.intIntensity[:]
	xs := a.intSource[:]

	if omori.Mask().Has(KernelIntervalInterval) && mag.Options().IntervalSources {
		for i, g := range mag.IntUnobservedProd {
			a.srcScale[i] = k * g / mag.IntWidth[i]
		}
		a.supercritical = !omori.ApplyIntervalRecurrence(a.srcScale, offs, ys, xs)
	} else {
		for o := range ys {
			copy(ys[o], offs[o])
			clear(xs[o])
		}
	}

	// interval sources are final only now, so the rupture targets come last
	rupOffs := [][]float64{pair.TgtRupSecondary, pair.TgtRupMainshock, mag.TgtRupBackground}
	if omori.Mask().Has(KernelIntervalRupture) && mag.Options().IntervalSources {
		omori.ApplyIntervalRupture(nil, xs, rupOffs, a.rupIntensity[:])
	} else {
		for o := range rupOffs {
			copy(a.rupIntensity[o], rupOffs[o])
		}
	}

	for o := range a.totalIntegral {
		a.totalIntegral[o] = floats.Dot(mag.IntLike, a.intIntensity[o])
	}

	if groups := mag.Groups(); groups != nil {
		copy(a.groupCoef[OriginSecondary], mag.GroupProdSecondary)
		copy(a.groupCoef[OriginMainshock], mag.GroupProdMainshock)
		clear(a.groupCoef[OriginBackground])

		// interval sources contribute their density times their duration
		for i, w := range mag.IntWidth {
			g := groups.IntervalGroup(i)
			if g < 0 {
				continue
			}
			for o := range a.groupCoef {
				a.groupCoef[o][g] += w * a.intSource[o][i]
			}
		}
	}

	return nil
}

// LogLikelihood returns the log-likelihood for secondary productivity k,
// mainshock productivity kms and background rate mu. The interval sources
// stay resolved at the productivity the cache was built with.
func (a *AmplitudeCache) LogLikelihood(k, kms, mu float64) float64 {
	if a.supercritical {
		return math.Inf(-1)
	}

	mag := a.pair.Mag
	sec, ms, bg := a.rupIntensity[OriginSecondary], a.rupIntensity[OriginMainshock], a.rupIntensity[OriginBackground]

	ll := mag.LogTgtRupLike
	for j := range sec {
		rate := k*sec[j] + kms*ms[j] + mu*bg[j]
		if !(rate > 0) {
			return math.Inf(-1)
		}
		ll += math.Log(rate)
	}

	return ll - k*a.totalIntegral[OriginSecondary] - kms*a.totalIntegral[OriginMainshock] - mu*a.totalIntegral[OriginBackground]
}

// LogLikelihoodGrid evaluates the log-likelihood for every combination of
// mainshock productivity and background rate in one pass over the targets.
// out[iMs*len(mus)+iBg] receives the value for (kms[iMs], mus[iBg]).
func (a *AmplitudeCache) LogLikelihoodGrid(k float64, kms, mus, out []float64) {
	n := len(kms) * len(mus)
	out = out[:n]

	if a.supercritical {
		for s := range out {
			out[s] = math.Inf(-1)
		}
		return
	}

	mag := a.pair.Mag
	for iMs, vms := range kms {
		for iBg, vbg := range mus {
			out[iMs*len(mus)+iBg] = mag.LogTgtRupLike -
				k*a.totalIntegral[OriginSecondary] -
				vms*a.totalIntegral[OriginMainshock] -
				vbg*a.totalIntegral[OriginBackground]
		}
	}

	sec, ms, bg := a.rupIntensity[OriginSecondary], a.rupIntensity[OriginMainshock], a.rupIntensity[OriginBackground]
	for j := range sec {
		base := k * sec[j]
		for iMs, vms := range kms {
			partial := base + vms*ms[j]
			row := out[iMs*len(mus) : (iMs+1)*len(mus)]
			for iBg, vbg := range mus {
				rate := partial + vbg*bg[j]
				if rate > 0 {
					row[iBg] += math.Log(rate)
				} else {
					row[iBg] = math.Inf(-1)
				}
			}
		}
	}
}

// IntervalIntensity returns the integrated intensity over each interval
// generated by one unit of the given origin.
func (a *AmplitudeCache) IntervalIntensity(o Origin) []float64 { return a.intIntensity[o] }

// RuptureIntensity returns the intensity at each target rupture generated by
// one unit of the given origin.
func (a *AmplitudeCache) RuptureIntensity(o Origin) []float64 { return a.rupIntensity[o] }

// IntervalSource returns the scaled source density of each interval per
// unit of the given origin.
func (a *AmplitudeCache) IntervalSource(o Origin) []float64 { return a.intSource[o] }

func (a *AmplitudeCache) TotalIntegral(o Origin) float64 { return a.totalIntegral[o] }

// GroupCoefficients returns the unscaled seed productivity of every group for
// one origin. The seed productivity of group g is
// k*coef[secondary][g] + kms*coef[mainshock][g] + mu*coef[background][g].
func (a *AmplitudeCache) GroupCoefficients(o Origin) []float64 { return a.groupCoef[o] }
