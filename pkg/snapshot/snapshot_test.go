package snapshot

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/grouping"
	"github.com/quakelab/etasfit/pkg/posterior"
)

func testSnapshot(t *testing.T) *Snapshot {
	def := &fitter.SubVoxelDef{
		MainshockOffsets:  fitter.SingleAxis("mainshockOffset", 0),
		BackgroundOffsets: fitter.Axis{Name: "backgroundOffset", Values: []float64{-1, 0}, LogWidths: []float64{0, 0}},
		BackgroundRateRef: 0.05,
		Background:        true,
	}

	var voxels []*fitter.StatVoxel
	for i, p := range []float64{1.0, 1.1, 1.2, 1.3} {
		v := &fitter.StatVoxel{
			GridPoint: fitter.GridPoint{
				Index: i, ICP: i,
				B: 1.0, Alpha: 1.0, C: 0.01, P: p,
				Productivity: 0.02 * float64(i+1),
				BranchRatio:  0.1 * float64(i+1),
			},
			Def: def,
			SubVoxels: []fitter.SubVoxel{
				{PriorLogDensity: -0.5, PriorLogVolume: -2, LogLikelihood: -10 - float64(i)},
				{PriorLogDensity: -0.5, PriorLogVolume: -2, LogLikelihood: -11 - float64(i)},
			},
		}
		v.GroupCoef[etas.OriginSecondary] = []float64{1, 2}
		v.GroupCoef[etas.OriginMainshock] = []float64{0, 0.5}
		v.GroupCoef[etas.OriginBackground] = []float64{3, 4}
		voxels = append(voxels, v)
	}
	voxels[3].SubVoxels[1].LogLikelihood = math.Inf(-1)

	s := New(voxels, 2.5)
	s.Groups = []grouping.Group{
		{Begin: 0, End: 1, Center: 0.5, Ruptures: 2},
		{Begin: 1, End: 3, Center: 2, Ruptures: 1, Intervals: 1},
	}

	sel, err := posterior.NewSelector(voxels, posterior.Options{BayesianWeight: 1, TailTrimFraction: 0.01, EnsembleSize: 16})
	require.NoError(t, err)
	s.Ensemble, err = sel.Select()
	require.NoError(t, err)
	return s
}

func TestRoundTrip(t *testing.T) {
	s := testSnapshot(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))

	decoded, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.ID, decoded.ID)
	assert.True(t, s.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, s.MagCat, decoded.MagCat)
	assert.Equal(t, s.Groups, decoded.Groups)

	require.Len(t, decoded.Voxels, len(s.Voxels))
	for i, v := range decoded.Voxels {
		assert.Equal(t, s.Voxels[i].GridPoint, v.GridPoint)
		assert.Equal(t, s.Voxels[i].SubVoxels, v.SubVoxels)
		assert.Equal(t, s.Voxels[i].GroupCoef, v.GroupCoef)
		assert.Equal(t, *s.Voxels[i].Def, *v.Def)
	}
	assert.True(t, math.IsInf(decoded.Voxels[3].SubVoxels[1].LogLikelihood, -1))

	// shared definitions stay shared
	assert.Same(t, decoded.Voxels[0].Def, decoded.Voxels[3].Def)

	require.NotNil(t, decoded.Ensemble)
	assert.Equal(t, s.Ensemble.Members, decoded.Ensemble.Members)
	assert.Equal(t, s.Ensemble.Maxima, decoded.Ensemble.Maxima)
	assert.Equal(t, s.Ensemble.Options, decoded.Ensemble.Options)

	seeder, err := decoded.Seeder()
	require.NoError(t, err)
	orig, err := s.Seeder()
	require.NoError(t, err)
	assert.Equal(t, orig.Seed(3), seeder.Seed(3))
}

func TestDocumentDeduplicates(t *testing.T) {
	doc := testSnapshot(t).document()
	assert.Len(t, doc.BA, 1)
	assert.Len(t, doc.CP, 4)
	assert.Len(t, doc.Defs, 1)
}

func TestUnmarshal_RejectsUnknownVersion(t *testing.T) {
	data, err := Marshal(testSnapshot(t))
	require.NoError(t, err)

	patched := bytes.Replace(data, []byte(`"version":1`), []byte(`"version":2`), 1)
	require.NotEqual(t, data, patched)

	_, err = Unmarshal(patched)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownVersion)
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError))

	_, err = Unmarshal([]byte(`{"kind":"etasfit.snapshot"}`))
	assert.ErrorIs(t, err, ErrUnknownVersion)

	_, err = Unmarshal([]byte(`{"version":1,"kind":"something.else"}`))
	assert.Error(t, err)

	_, err = Unmarshal([]byte(`{"version":1,`))
	assert.Error(t, err)
}

func TestUnmarshal_BadReferences(t *testing.T) {
	for name, body := range map[string]string{
		"pair":       `"ba":[],"cp":[[0.01,1]],"defs":[{}],"voxels":[{"i":0,"ba":0,"cp":0,"def":0,"sub":[]}]`,
		"definition": `"ba":[[1,1]],"cp":[[0.01,1]],"defs":[],"voxels":[{"i":0,"ba":0,"cp":0,"def":0,"sub":[]}]`,
		"sub-voxels": `"ba":[[1,1]],"cp":[[0.01,1]],"defs":[{"mainshockOffsets":{"values":[0]},"backgroundOffsets":{"values":[0]}}],"voxels":[{"i":0,"ba":0,"cp":0,"def":0,"sub":[]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(`{"version":1,"kind":"etasfit.snapshot",` + body + `}`))
			assert.Error(t, err)
		})
	}
}

func TestNumber(t *testing.T) {
	for _, v := range []float64{0, -1.5, 1e-300, math.Inf(-1), math.Inf(1)} {
		data, err := number(v).MarshalJSON()
		require.NoError(t, err)

		var n number
		require.NoError(t, n.UnmarshalJSON(data))
		assert.Equal(t, v, float64(n))
	}

	var n number
	assert.Error(t, n.UnmarshalJSON([]byte(`"infinity"`)))
}
