package etas

import (
	"fmt"
	"strings"

	"github.com/quakelab/etasfit/pkg/fiterr"
)

// LikelihoodMagRange selects the magnitude range each target contributes to
// the partial Gutenberg-Richter likelihood.
type LikelihoodMagRange int

const (
	// MagRangeInfLocal uses [local completeness, infinity)
	MagRangeInfLocal LikelihoodMagRange = iota

	// MagRangeInfCatalog uses [catalog magnitude, infinity)
	MagRangeInfCatalog

	// MagRangeCapLocal uses [local completeness, capped top]
	MagRangeCapLocal

	// MagRangeCapCatalog uses [catalog magnitude, capped top]
	MagRangeCapCatalog
)

// MinCappedMagRange is the smallest width of a capped likelihood magnitude range.
const MinCappedMagRange = 0.5

var magRangeNames = map[LikelihoodMagRange]string{
	MagRangeInfLocal:   "inf_local",
	MagRangeInfCatalog: "inf_catalog",
	MagRangeCapLocal:   "cap_local",
	MagRangeCapCatalog: "cap_catalog",
}

func (r LikelihoodMagRange) String() string {
	if s, ok := magRangeNames[r]; ok {
		return s
	}
	return fmt.Sprintf("magrange(%d)", int(r))
}

func (r LikelihoodMagRange) Capped() bool {
	return r == MagRangeCapLocal || r == MagRangeCapCatalog
}

func (r LikelihoodMagRange) Local() bool {
	return r == MagRangeInfLocal || r == MagRangeCapLocal
}

func (r LikelihoodMagRange) Valid() bool {
	_, ok := magRangeNames[r]
	return ok
}

func ParseLikelihoodMagRange(s string) (LikelihoodMagRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range magRangeNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fiterr.NewConfigError("unknown likelihood magnitude range %q", s)
}

func (r LikelihoodMagRange) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fiterr.NewConfigError("invalid likelihood magnitude range %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *LikelihoodMagRange) UnmarshalText(data []byte) error {
	v, err := ParseLikelihoodMagRange(string(data))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// KernelMask selects which Omori kernel matrices are allocated.
type KernelMask uint8

const (
	KernelRuptureRupture KernelMask = 1 << iota
	KernelRuptureInterval
	KernelIntervalRupture
	KernelIntervalInterval
)

func (m KernelMask) Has(k KernelMask) bool { return m&k == k }

// Options are the model switches shared by every cache layer.
type Options struct {
	MagRange LikelihoodMagRange

	// Background enables the constant background rate.
	Background bool

	// IntervalSources lets intervals act as extended sources standing for the
	// events below the interval completeness.
	IntervalSources bool

	// BranchTimeRange is the time span over which the branch ratio integrates
	// the Omori kernel.
	BranchTimeRange float64
}

func DefaultOptions() Options {
	return Options{
		MagRange:        MagRangeInfLocal,
		Background:      true,
		IntervalSources: true,
		BranchTimeRange: 365.0,
	}
}

// KernelMask decides the kernel matrices once from the feature flags.
func (o Options) KernelMask() KernelMask {
	m := KernelRuptureRupture | KernelRuptureInterval
	if o.IntervalSources {
		m |= KernelIntervalRupture | KernelIntervalInterval
	}
	return m
}

// Groups maps sources to seed groups.
type Groups interface {
	NumGroups() int

	// RuptureGroup returns the group of rupture r, or -1.
	RuptureGroup(r int) int

	// IntervalGroup returns the group of interval i, or -1.
	IntervalGroup(i int) int
}
