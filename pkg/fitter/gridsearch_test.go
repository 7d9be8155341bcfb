package fitter

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/grouping"
	"github.com/quakelab/etasfit/pkg/history"
)

func testHistory(t *testing.T) *history.History {
	h, err := history.New(history.Spec{
		MagCat:   2.5,
		MagTop:   8.0,
		FitBegin: 1,
		FitEnd:   12,
		Ruptures: []history.Rupture{
			{T: 0.2, Mag: 3.1},
			{T: 1.0, Mag: 6.4, Mainshock: true},
			{T: 1.05, Mag: 4.2},
			{T: 1.3, Mag: 3.8},
			{T: 2.5, Mag: 3.3},
			{T: 4.0, Mag: 4.9},
			{T: 4.01, Mag: 3.0},
			{T: 9.0, Mag: 3.6},
		},
		Intervals: []history.Interval{
			{Begin: 0, End: 1, MagC: 2.5},
			{Begin: 1, End: 1.5, MagC: 4.0},
			{Begin: 1.5, End: 3, MagC: 3.2},
			{Begin: 3, End: 6, MagC: 2.8},
			{Begin: 6, End: 12, MagC: 2.5},
		},
	})
	require.NoError(t, err)
	return h
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Grid = GridConfig{
		B:                         AxisConfig{Min: 0.9, Max: 1.1, Num: 2},
		C:                         AxisConfig{Min: 0.01, Max: 0.1, Num: 2, Log: true},
		P:                         AxisConfig{Min: 1.0, Max: 1.2, Num: 2},
		Productivity:              AxisConfig{Min: 0.2, Max: 0.8, Num: 3},
		MainshockOffset:           AxisConfig{Min: -0.5, Max: 0.5, Num: 3},
		BackgroundOffset:          AxisConfig{Min: -1, Max: 0, Num: 2},
		AlphaEqualsB:              true,
		ProductivityIsBranchRatio: true,
		BackgroundRateRef:         0.05,
	}
	cfg.Search.Threads = 1
	return cfg
}

func TestChooseMode(t *testing.T) {
	assert.Equal(t, UnitPerCP, ChooseMode(2, 4, 3, 1))
	assert.Equal(t, UnitPerCP, ChooseMode(2, 4, 3, 4))
	assert.Equal(t, UnitPerQuad, ChooseMode(2, 4, 3, 5))
	assert.Equal(t, UnitPerQuad, ChooseMode(2, 4, 3, 8))
	assert.Equal(t, UnitPerQuint, ChooseMode(2, 4, 3, 9))
	assert.Equal(t, UnitPerQuint, ChooseMode(2, 4, 3, 64))
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{UnitPerCP, UnitPerQuad, UnitPerQuint} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err := ParseMode("voxel")
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError))
}

func TestGridSearch_VoxelCount(t *testing.T) {
	h := testHistory(t)
	cfg := testConfig()

	var reference []*StatVoxel
	for _, tc := range []struct {
		threads int
		mode    Mode
	}{
		{1, UnitPerCP},
		{4, UnitPerCP},
		{5, UnitPerQuad},
		{9, UnitPerQuint},
	} {
		s, err := NewGridSearch(h, cfg, nil, nil)
		require.NoError(t, err)
		s.SetThreads(tc.threads)
		require.Equal(t, tc.mode, s.Mode(), "threads=%d", tc.threads)

		voxels, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, voxels, 2*4*3, "mode=%s", tc.mode)

		for i, v := range voxels {
			assert.Equal(t, i, v.Index)
			assert.Len(t, v.SubVoxels, 6)
		}

		if reference == nil {
			reference = voxels
			continue
		}

		// every decomposition computes the same numbers
		for i := range voxels {
			assert.Equal(t, reference[i].GridPoint, voxels[i].GridPoint, "mode=%s voxel=%d", tc.mode, i)
			assert.Equal(t, reference[i].SubVoxels, voxels[i].SubVoxels, "mode=%s voxel=%d", tc.mode, i)
		}
	}
}

func TestGridSearch_ForcedMode(t *testing.T) {
	h := testHistory(t)
	cfg := testConfig()

	for _, mode := range []Mode{UnitPerCP, UnitPerQuad, UnitPerQuint} {
		s, err := NewGridSearch(h, cfg, nil, nil)
		require.NoError(t, err)
		s.SetThreads(3)
		s.SetMode(mode)

		voxels, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, voxels, cfg.Grid.B.Len()*cfg.Grid.C.Len()*cfg.Grid.P.Len()*cfg.Grid.Productivity.Len(), "mode=%s", mode)
	}
}

func TestGridSearch_MatchesAmplitudeCache(t *testing.T) {
	h := testHistory(t)
	cfg := testConfig()

	s, err := NewGridSearch(h, cfg, nil, nil)
	require.NoError(t, err)
	voxels, err := s.Run(context.Background())
	require.NoError(t, err)

	v := voxels[s.Grid().VoxelIndex(1, 2, 1)]
	assert.Equal(t, 1.1, v.B)
	assert.Equal(t, 1.1, v.Alpha)
	assert.Equal(t, 0.1, v.C)
	assert.Equal(t, 1.0, v.P)
	assert.InDelta(t, 0.5, v.BranchRatio, 1e-12)

	opts := cfg.Options()
	mag := etas.NewMagnitudeExponentCache(h, opts, nil)
	mag.Build(v.B, v.Alpha)
	omori := etas.NewOmoriKernelCache(h, opts.KernelMask())
	omori.Build(v.P, v.C)
	pair := etas.NewPairCache(mag)
	require.NoError(t, pair.Build(mag, omori))
	amp := etas.NewAmplitudeCache(mag)
	k := pair.BranchRatioToProductivity(0.5)
	require.NoError(t, amp.Build(pair, k))
	assert.InEpsilon(t, k, v.Productivity, 1e-12)

	for sIdx, sub := range v.SubVoxels {
		kms, mu := v.MainshockProductivity(sIdx), v.BackgroundRate(sIdx)
		assert.InEpsilon(t, amp.LogLikelihood(k, kms, mu), sub.LogLikelihood, 1e-12, "sub-voxel %d", sIdx)
	}

	iMs, iBg := v.Def.Split(5)
	assert.Equal(t, 2, iMs)
	assert.Equal(t, 1, iBg)
	assert.InEpsilon(t, k*math.Pow(10, 0.5), v.MainshockProductivity(5), 1e-12)
	assert.InEpsilon(t, 0.05, v.BackgroundRate(5), 1e-12)
}

func TestGridSearch_Groups(t *testing.T) {
	h := testHistory(t)
	cfg := testConfig()

	groups, err := grouping.Build(h, grouping.Options{SpanWidth: grouping.ConstantSpanWidth(2)})
	require.NoError(t, err)

	s, err := NewGridSearch(h, cfg, nil, groups)
	require.NoError(t, err)
	voxels, err := s.Run(context.Background())
	require.NoError(t, err)

	for _, v := range voxels {
		for o := range v.GroupCoef {
			assert.Len(t, v.GroupCoef[o], groups.NumGroups())
		}

		prods := v.SeedProductivities(0)
		require.Len(t, prods, groups.NumGroups())
		for _, p := range prods {
			assert.Greater(t, p, 0.0)
		}
	}
}

func TestGridSearch_Abort(t *testing.T) {
	h := testHistory(t)
	s, err := NewGridSearch(h, testConfig(), nil, nil)
	require.NoError(t, err)

	s.SetProgressFunc(func(done, total int) {
		s.Abort()
	})

	voxels, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, voxels)

	fe, ok := fiterr.AsFitError(err)
	require.True(t, ok)
	assert.Equal(t, fiterr.ThreadAbort, fe.Kind)
	assert.Greater(t, fe.Completed, 0.0)
	assert.Less(t, fe.Completed, 1.0)
}

func TestGridSearch_AbortBeforeRun(t *testing.T) {
	h := testHistory(t)
	s, err := NewGridSearch(h, testConfig(), nil, nil)
	require.NoError(t, err)

	var calls int
	s.SetProgressFunc(func(done, total int) { calls++ })
	s.Abort()

	voxels, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, voxels)
	assert.Zero(t, calls)

	fe, ok := fiterr.AsFitError(err)
	require.True(t, ok)
	assert.Equal(t, fiterr.ThreadAbort, fe.Kind)
	assert.Equal(t, 0.0, fe.Completed)

	// still aborted on the next run
	_, err = s.Run(context.Background())
	assert.True(t, fiterr.IsKind(err, fiterr.ThreadAbort), "%v", err)
}

func TestGridSearch_Timeout(t *testing.T) {
	h := testHistory(t)
	cfg := testConfig()
	cfg.Search.Timeout = time.Nanosecond

	s, err := NewGridSearch(h, cfg, nil, nil)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.Timeout), "%v", err)
}

func TestGridSearch_PriorFailure(t *testing.T) {
	h := testHistory(t)
	prior := PriorFunc(func(point GridPoint, def *SubVoxelDef, logDensity, logVolume []float64) error {
		if point.Index == 7 {
			return errors.New("prior model unavailable")
		}
		return nil
	})

	s, err := NewGridSearch(h, testConfig(), prior, nil)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.ThreadAbort))
	assert.Contains(t, err.Error(), "prior model unavailable")
}

func TestGridSearch_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Posterior.EnsembleSize = 1000

	_, err := NewGridSearch(testHistory(t), cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError))
}
