package etas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/fiterr"
)

func TestPairCache_CheckParams(t *testing.T) {
	h := sequenceHistory(t)
	cs := buildCaches(t, h, DefaultOptions(), nil, 1.0, 0.8, 0.02, 1.15)

	assert.NoError(t, cs.pair.CheckParams(1.0, 0.8, 0.02, 1.15))
	assert.NoError(t, cs.pair.CheckParams(1.0*(1+1e-12), 0.8, 0.02, 1.15))

	err := cs.pair.CheckParams(1.0, 0.8, 0.02, 1.16)
	if assert.Error(t, err) {
		assert.True(t, fiterr.IsKind(err, fiterr.InvariantViolation))
	}

	err = cs.pair.CheckParams(1.0, 0.8+1e-8, 0.02, 1.15)
	assert.Error(t, err)
}

func TestPairCache_BranchRatio(t *testing.T) {
	h := sequenceHistory(t)
	cs := buildCaches(t, h, DefaultOptions(), nil, 1.1, 0.9, 0.05, 1.2)

	for _, n := range []float64{0.05, 0.5, 1.5} {
		k := cs.pair.BranchRatioToProductivity(n)
		assert.InEpsilon(t, n, cs.pair.ProductivityToBranchRatio(k), 1e-14)
	}

	// longer branch time range means more offspring per unit productivity
	opts := DefaultOptions()
	opts.BranchTimeRange = 3650
	long := buildCaches(t, h, opts, nil, 1.1, 0.9, 0.05, 1.2)
	assert.Less(t, long.pair.BranchRatioToProductivity(0.5), cs.pair.BranchRatioToProductivity(0.5))
}

func TestPairCache_Build(t *testing.T) {
	h := sequenceHistory(t)
	opts := DefaultOptions()
	cs := buildCaches(t, h, opts, nil, 1.0, 1.0, 0.02, 1.1)

	// secondary and mainshock sources are disjoint
	for j := range cs.pair.TgtRupSecondary {
		rr := cs.omori.rr.row(j)
		var sec, ms float64
		for r, m := range rr {
			sec += m * cs.mag.RupProdSecondary[r]
			ms += m * cs.mag.RupProdMainshock[r]
		}
		assertClose(t, sec, cs.pair.TgtRupSecondary[j])
		assertClose(t, ms, cs.pair.TgtRupMainshock[j])
	}

	t.Run("other history", func(t *testing.T) {
		other := NewOmoriKernelCache(twoRuptureHistory(t), opts.KernelMask())
		other.Build(1.1, 0.02)

		err := NewPairCache(cs.mag).Build(cs.mag, other)
		require.Error(t, err)
		assert.True(t, fiterr.IsKind(err, fiterr.InvariantViolation))
	})
}
