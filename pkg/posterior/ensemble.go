package posterior

import (
	"sync/atomic"

	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/grouping"
)

// Member is one ensemble slot. LogDensity is relative to the maximum.
type Member struct {
	Ref

	LogDensity float64 `json:"logDensity"`
}

// Ensemble is a fixed-size sample of the posterior. Members are in
// bit-reversed selection order.
type Ensemble struct {
	Members []Member            `json:"members"`
	Maxima  [NumRegimes]Maximum `json:"maxima"`
	Options Options             `json:"options"`
	Voxels  []*fitter.StatVoxel `json:"-"`

	// Mass is the kept probability mass, relative to the maximum.
	Mass float64 `json:"mass"`
	Kept int     `json:"kept"`
	Bins int     `json:"bins"`
}

func (e *Ensemble) Len() int { return len(e.Members) }

func (e *Ensemble) Voxel(i int) *fitter.StatVoxel {
	return e.Voxels[e.Members[i].Voxel]
}

// Counts returns how many slots each sub-voxel fills.
func (e *Ensemble) Counts() map[Ref]int {
	counts := make(map[Ref]int)
	for _, m := range e.Members {
		counts[m.Ref]++
	}
	return counts
}

// SeedRupture is the point source standing for one group.
type SeedRupture struct {
	Time         float64 `json:"time"`
	Mag          float64 `json:"mag"`
	Productivity float64 `json:"productivity"`
}

// SeedParameters initialize one simulated catalog.
type SeedParameters struct {
	Member int `json:"member"`

	B     float64 `json:"b"`
	P     float64 `json:"p"`
	C     float64 `json:"c"`
	Alpha float64 `json:"alpha"`

	K   float64 `json:"k"`
	Kms float64 `json:"kms"`
	Mu  float64 `json:"mu"`

	Ruptures []SeedRupture `json:"ruptures,omitempty"`
}

// Seeder hands out ensemble members one call at a time, cycling through the
// ensemble. It is safe for concurrent use.
type Seeder struct {
	ensemble *Ensemble
	magCat   float64
	groups   []grouping.Group

	next atomic.Int64
}

// Seeder returns a seeder over the ensemble. Without groups the seed
// parameters carry no ruptures.
func (e *Ensemble) Seeder(magCat float64, groups []grouping.Group) *Seeder {
	return &Seeder{ensemble: e, magCat: magCat, groups: groups}
}

func (s *Seeder) Next() SeedParameters {
	i := int((s.next.Add(1) - 1) % int64(s.ensemble.Len()))
	return s.Seed(i)
}

// Seed returns the seed parameters of member i.
func (s *Seeder) Seed(i int) SeedParameters {
	m := s.ensemble.Members[i]
	v := s.ensemble.Voxels[m.Voxel]

	seed := SeedParameters{
		Member: i,
		B:      v.B,
		P:      v.P,
		C:      v.C,
		Alpha:  v.Alpha,
		K:      v.Productivity,
		Kms:    v.MainshockProductivity(m.Sub),
		Mu:     v.BackgroundRate(m.Sub),
	}

	prods := v.SeedProductivities(m.Sub)
	if len(prods) != len(s.groups) {
		return seed
	}

	for g, prod := range prods {
		if !(prod > 0) {
			continue
		}
		seed.Ruptures = append(seed.Ruptures, SeedRupture{
			Time:         s.groups[g].Center,
			Mag:          v.EffectiveMagnitude(prod, s.magCat),
			Productivity: prod,
		})
	}
	return seed
}
