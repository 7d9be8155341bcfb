package fitter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/grouping"
)

const testConfigYaml = `
history: history.yaml
grid:
  b: {min: 0.8, max: 1.2, num: 5}
  c: {min: 0.001, max: 1, num: 4, log: true}
  p: {values: [0.9, 1.0, 1.1, 1.3]}
  productivity: {min: 0.1, max: 1.0, num: 10}
  mainshockOffset: {min: -1, max: 1, num: 5}
  backgroundOffset: {min: -2, max: 0, num: 3}
  alphaEqualsB: true
  productivityIsBranchRatio: true
  backgroundRateRef: 0.02
model:
  likelihoodMagRange: cap_catalog
  intervalSources: false
prior:
  type: gaussian
  b: {mean: 1.0, sigma: 0.1}
posterior:
  bayesianWeight: 1.5
  tailTrimFraction: 0.01
  ensembleSize: 256
search:
  threads: 3
  timeout: 90s
grouping:
  enabled: true
  direction: reverse
  spanRatio: 0.05
  minSpan: 0.1
  maxSpan: 10
`

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testConfigYaml), 0644))

	cfg, err := LoadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, "history.yaml", cfg.History)
	assert.Equal(t, 5, cfg.Grid.B.Num)
	assert.Equal(t, []float64{0.9, 1.0, 1.1, 1.3}, cfg.Grid.P.Values)
	assert.True(t, cfg.Grid.C.Log)
	assert.Equal(t, 0.02, cfg.Grid.BackgroundRateRef)
	assert.Equal(t, 90*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 3, cfg.NumThreads())
	assert.Equal(t, grouping.Reverse, cfg.Grouping.Direction)
	assert.Equal(t, PriorGaussian, cfg.Prior.Type)
	assert.Equal(t, 256, cfg.Posterior.EnsembleSize)

	opts := cfg.Options()
	assert.Equal(t, etas.MagRangeCapCatalog, opts.MagRange)
	assert.True(t, opts.Background)
	assert.False(t, opts.IntervalSources)
	assert.Equal(t, 365.0, opts.BranchTimeRange)

	// defaults survive for keys the file leaves out
	assert.Equal(t, DefaultMaxVoxels, cfg.Search.MaxVoxels)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown magnitude range": `
model:
  likelihoodMagRange: cap_everything
`,
		"ensemble size": `
grid:
  backgroundRateRef: 0.1
posterior:
  ensembleSize: 1000
`,
		"empty axis": `
grid:
  backgroundRateRef: 0.1
  p: {min: 1.0, max: 1.2, num: 0}
`,
		"bayesian weight": `
grid:
  backgroundRateRef: 0.1
posterior:
  bayesianWeight: 3
`,
		"missing background rate": `
grid:
  backgroundRateRef: 0
`,
		"voxel cap": `
grid:
  backgroundRateRef: 0.1
search:
  maxVoxels: 10
`,
		"unknown prior": `
grid:
  backgroundRateRef: 0.1
prior:
  type: cauchy
`,
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(text))
			require.Error(t, err)
			assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError), "%v", err)
		})
	}
}

func TestParseConfig_ReportsEveryProblem(t *testing.T) {
	_, err := ParseConfig([]byte(`
grid:
  backgroundRateRef: 0.1
posterior:
  bayesianWeight: -1
  ensembleSize: 3
  tailTrimFraction: 2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bayesianWeight")
	assert.Contains(t, err.Error(), "ensembleSize")
	assert.Contains(t, err.Error(), "tailTrimFraction")
}

func TestParseConfig_NonPositiveValues(t *testing.T) {
	_, err := ParseConfig([]byte(`
grid:
  backgroundRateRef: 0.1
  b: {values: [-1.0]}
  c: {values: [0, 0.01], log: false}
  productivity: {values: [-0.5, 0.5]}
`))
	require.Error(t, err)
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError), "%v", err)
	assert.Contains(t, err.Error(), "b must be positive, got -1")
	assert.Contains(t, err.Error(), "c must be positive, got 0")
	assert.Contains(t, err.Error(), "productivity must be positive, got -0.5")
}

func TestParseConfig_BackgroundDisabled(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
model:
  background: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Options().Background)

	grid, err := NewGrid(cfg.Grid, cfg.Options())
	require.NoError(t, err)
	assert.Equal(t, 1, grid.Sub.BackgroundOffsets.Len())
	assert.Equal(t, 0.0, grid.Sub.BackgroundRate(0))
}
