package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/posterior"
)

const testHistoryYaml = `
magCat: 2.5
magTop: 8.0
fitBegin: 1
fitEnd: 12
ruptures:
  - {t: 0.2, mag: 3.1}
  - {t: 1.0, mag: 6.4, mainshock: true}
  - {t: 1.05, mag: 4.2}
  - {t: 1.3, mag: 3.8}
  - {t: 2.5, mag: 3.3}
  - {t: 4.0, mag: 4.9}
  - {t: 9.0, mag: 3.6}
intervals:
  - {begin: 0, end: 1, magC: 2.5}
  - {begin: 1, end: 1.5, magC: 4.0}
  - {begin: 1.5, end: 3, magC: 3.2}
  - {begin: 3, end: 6, magC: 2.8}
  - {begin: 6, end: 12, magC: 2.5}
`

const testFitYaml = `
history: history.yaml
grid:
  b: {min: 1.0, max: 1.0, num: 1}
  c: {min: 0.01, max: 0.1, num: 2, log: true}
  p: {min: 1.0, max: 1.2, num: 2}
  productivity: {min: 0.2, max: 0.6, num: 3}
  backgroundOffset: {min: -1, max: 0, num: 2}
  alphaEqualsB: true
  productivityIsBranchRatio: true
  backgroundRateRef: 0.05
posterior:
  bayesianWeight: 1
  tailTrimFraction: 0.001
  ensembleSize: 64
search:
  threads: 2
`

func writeTestFit(t *testing.T) (configFile, historyFile string) {
	dir := t.TempDir()
	configFile = filepath.Join(dir, "fit.yaml")
	historyFile = filepath.Join(dir, "history.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(testFitYaml), 0644))
	require.NoError(t, os.WriteFile(historyFile, []byte(testHistoryYaml), 0644))
	return configFile, historyFile
}

func TestFitJob_Run(t *testing.T) {
	configFile, historyFile := writeTestFit(t)
	cfg, err := fitter.LoadConfig(configFile)
	require.NoError(t, err)

	job := &fitJob{Config: cfg, HistoryFile: historyFile, Mode: "quint"}
	snap, run, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.Voxels, 12)
	assert.Equal(t, 2.5, snap.MagCat)
	assert.NotEmpty(t, snap.Groups)
	require.NotNil(t, snap.Ensemble)
	assert.Equal(t, 64, snap.Ensemble.Len())

	assert.Equal(t, snap.ID, run.RunID)
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, "quint", run.Mode)
	assert.Equal(t, 12, run.Voxels)
	assert.Equal(t, 24, run.SubVoxels)
	assert.Equal(t, 2, run.Threads)
	assert.Equal(t, 1.0, run.Completed)
	assert.True(t, run.MLELogLikelihood.Valid)

	mle := snap.Ensemble.Maxima[posterior.PureLikelihood]
	assert.Equal(t, snap.Voxels[mle.Voxel].P, run.MLEP)

	seeder, err := snap.Seeder()
	require.NoError(t, err)
	seed := seeder.Next()
	assert.Equal(t, 0, seed.Member)
	assert.Greater(t, seed.K, 0.0)

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, snap, false))
	require.NoError(t, printEnsemble(&buf, snap, 3, false))
	require.NoError(t, printSeeds(&buf, snap, 2))
	out := buf.String()
	assert.Contains(t, out, snap.ID)
	assert.Contains(t, out, "likelihood")
	assert.Contains(t, out, "bayesian")
	assert.Contains(t, out, `"member":1`)
}

func TestFitJob_Run_BadMode(t *testing.T) {
	configFile, historyFile := writeTestFit(t)
	cfg, err := fitter.LoadConfig(configFile)
	require.NoError(t, err)

	job := &fitJob{Config: cfg, HistoryFile: historyFile, Mode: "voxel"}
	_, run, err := job.Run(context.Background())
	assert.True(t, fiterr.IsKind(err, fiterr.ConfigurationError))
	assert.Nil(t, run)
}

func TestFitJob_Run_Canceled(t *testing.T) {
	configFile, historyFile := writeTestFit(t)
	cfg, err := fitter.LoadConfig(configFile)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := &fitJob{Config: cfg, HistoryFile: historyFile}
	_, run, err := job.Run(ctx)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.NotEqual(t, "ok", run.Status)
	assert.False(t, run.MLELogLikelihood.Valid)
}

func TestTopMembers(t *testing.T) {
	ens := &posterior.Ensemble{Members: []posterior.Member{
		{Ref: posterior.Ref{Voxel: 2}, LogDensity: -1},
		{Ref: posterior.Ref{Voxel: 0}},
		{Ref: posterior.Ref{Voxel: 2}, LogDensity: -1},
		{Ref: posterior.Ref{Voxel: 1, Sub: 1}, LogDensity: -3},
		{Ref: posterior.Ref{Voxel: 0}},
		{Ref: posterior.Ref{Voxel: 2}, LogDensity: -1},
	}}

	top := topMembers(ens, 2)
	require.Len(t, top, 2)
	assert.Equal(t, posterior.Ref{Voxel: 2}, top[0].Ref)
	assert.Equal(t, 3, top[0].Slots)
	assert.Equal(t, -1.0, top[0].LogDensity)
	assert.Equal(t, posterior.Ref{Voxel: 0}, top[1].Ref)

	assert.Len(t, topMembers(ens, 0), 3)
}
