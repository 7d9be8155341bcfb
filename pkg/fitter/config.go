package fitter

import (
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/grouping"
)

const (
	DefaultMaxVoxels    = 50_000_000
	DefaultMaxSubVoxels = 10_000
)

type GridConfig struct {
	B     AxisConfig `json:"b" yaml:"b"`
	Alpha AxisConfig `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	C     AxisConfig `json:"c" yaml:"c"`
	P     AxisConfig `json:"p" yaml:"p"`

	// Productivity enumerates branch ratios when ProductivityIsBranchRatio is
	// set, secondary productivities otherwise.
	Productivity AxisConfig `json:"productivity" yaml:"productivity"`

	MainshockOffset  AxisConfig `json:"mainshockOffset,omitempty" yaml:"mainshockOffset,omitempty"`
	BackgroundOffset AxisConfig `json:"backgroundOffset,omitempty" yaml:"backgroundOffset,omitempty"`

	AlphaEqualsB              bool `json:"alphaEqualsB" yaml:"alphaEqualsB"`
	ProductivityIsBranchRatio bool `json:"productivityIsBranchRatio" yaml:"productivityIsBranchRatio"`

	// BackgroundRateRef is the background rate at offset zero, in events
	// above magCat per unit time.
	BackgroundRateRef float64 `json:"backgroundRateRef" yaml:"backgroundRateRef"`
}

type ModelConfig struct {
	LikelihoodMagRange etas.LikelihoodMagRange `json:"likelihoodMagRange" yaml:"likelihoodMagRange"`
	Background         *bool                   `json:"background,omitempty" yaml:"background,omitempty"`
	IntervalSources    *bool                   `json:"intervalSources,omitempty" yaml:"intervalSources,omitempty"`
	BranchTimeRange    float64                 `json:"branchTimeRange,omitempty" yaml:"branchTimeRange,omitempty"`
}

type PosteriorConfig struct {
	BayesianWeight   float64 `json:"bayesianWeight" yaml:"bayesianWeight"`
	TailTrimFraction float64 `json:"tailTrimFraction" yaml:"tailTrimFraction"`
	EnsembleSize     int     `json:"ensembleSize" yaml:"ensembleSize"`
}

type SearchConfig struct {
	// Threads is the worker count, zero for one per CPU.
	Threads int           `json:"threads,omitempty" yaml:"threads,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxVoxels    int `json:"maxVoxels,omitempty" yaml:"maxVoxels,omitempty"`
	MaxSubVoxels int `json:"maxSubVoxels,omitempty" yaml:"maxSubVoxels,omitempty"`
}

type Config struct {
	History   string          `json:"history,omitempty" yaml:"history,omitempty"`
	Grid      GridConfig      `json:"grid" yaml:"grid"`
	Model     ModelConfig     `json:"model" yaml:"model"`
	Prior     PriorConfig     `json:"prior" yaml:"prior"`
	Posterior PosteriorConfig `json:"posterior" yaml:"posterior"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Grouping  grouping.Config `json:"grouping" yaml:"grouping"`
}

func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			B:                         AxisConfig{Min: 1.0, Max: 1.0, Num: 1},
			C:                         AxisConfig{Min: 0.001, Max: 1.0, Num: 7, Log: true},
			P:                         AxisConfig{Min: 0.9, Max: 1.5, Num: 13},
			Productivity:              AxisConfig{Min: 0.05, Max: 1.0, Num: 20},
			MainshockOffset:           AxisConfig{Min: 0, Max: 0, Num: 1},
			BackgroundOffset:          AxisConfig{Min: 0, Max: 0, Num: 1},
			AlphaEqualsB:              true,
			ProductivityIsBranchRatio: true,
		},
		Model: ModelConfig{
			LikelihoodMagRange: etas.MagRangeInfLocal,
			BranchTimeRange:    365.0,
		},
		Prior: PriorConfig{Type: PriorUniform},
		Posterior: PosteriorConfig{
			BayesianWeight:   1.0,
			TailTrimFraction: 0.001,
			EnsembleSize:     1024,
		},
		Search: SearchConfig{
			MaxVoxels:    DefaultMaxVoxels,
			MaxSubVoxels: DefaultMaxSubVoxels,
		},
		Grouping: grouping.DefaultConfig(),
	}
}

// LoadConfig reads a YAML fit configuration over the defaults and validates it.
func LoadConfig(yamlConfigFileName string) (*Config, error) {
	configYaml, err := os.ReadFile(yamlConfigFileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read fit config %s", yamlConfigFileName)
	}

	return ParseConfig(configYaml)
}

func ParseConfig(configYaml []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(configYaml, config); err != nil {
		return nil, fiterr.WrapKind(errors.Wrap(err, "unable to parse fit config"), fiterr.ConfigurationError)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Options returns the model switches of the config.
func (c *Config) Options() etas.Options {
	opts := etas.DefaultOptions()
	opts.MagRange = c.Model.LikelihoodMagRange
	if c.Model.Background != nil {
		opts.Background = *c.Model.Background
	}
	if c.Model.IntervalSources != nil {
		opts.IntervalSources = *c.Model.IntervalSources
	}
	if c.Model.BranchTimeRange > 0 {
		opts.BranchTimeRange = c.Model.BranchTimeRange
	}
	return opts
}

// NumThreads resolves the configured worker count.
func (c *Config) NumThreads() int {
	if c.Search.Threads > 0 {
		return c.Search.Threads
	}
	return runtime.NumCPU()
}

// Validate reports every problem of the config at once.
func (c *Config) Validate() error {
	var err error

	check := func(name string, a AxisConfig) {
		if e := a.Validate(name); e != nil {
			err = multierr.Append(err, e)
		}
	}

	check("b", c.Grid.B)
	if !c.Grid.AlphaEqualsB {
		check("alpha", c.Grid.Alpha)
	}
	check("c", c.Grid.C)
	check("p", c.Grid.P)
	check("productivity", c.Grid.Productivity)
	check("mainshockOffset", c.Grid.MainshockOffset)
	check("backgroundOffset", c.Grid.BackgroundOffset)

	positive := func(name string, a AxisConfig) {
		if lo := a.Lowest(); !(lo > 0) {
			err = multierr.Append(err, errors.Errorf("%s must be positive, got %v", name, lo))
		}
	}

	positive("b", c.Grid.B)
	positive("c", c.Grid.C)
	positive("productivity", c.Grid.Productivity)

	opts := c.Options()
	if opts.Background && !(c.Grid.BackgroundRateRef > 0) {
		err = multierr.Append(err, errors.Errorf("backgroundRateRef must be positive when background is enabled, got %v", c.Grid.BackgroundRateRef))
	}
	if !opts.MagRange.Valid() {
		err = multierr.Append(err, errors.Errorf("invalid likelihood magnitude range %d", int(opts.MagRange)))
	}
	if !(opts.BranchTimeRange > 0) {
		err = multierr.Append(err, errors.Errorf("branchTimeRange must be positive, got %v", opts.BranchTimeRange))
	}

	if w := c.Posterior.BayesianWeight; w < 0 || w > 2 {
		err = multierr.Append(err, errors.Errorf("bayesianWeight must lie in [0, 2], got %v", w))
	}
	if f := c.Posterior.TailTrimFraction; f < 0 || f >= 1 {
		err = multierr.Append(err, errors.Errorf("tailTrimFraction must lie in [0, 1), got %v", f))
	}
	if n := c.Posterior.EnsembleSize; n <= 0 || n&(n-1) != 0 {
		err = multierr.Append(err, errors.Errorf("ensembleSize must be a power of two, got %d", n))
	}

	if c.Search.Threads < 0 {
		err = multierr.Append(err, errors.Errorf("threads must not be negative, got %d", c.Search.Threads))
	}
	if c.Search.Timeout < 0 {
		err = multierr.Append(err, errors.Errorf("timeout must not be negative, got %s", c.Search.Timeout))
	}

	if e := c.Prior.Validate(); e != nil {
		err = multierr.Append(err, e)
	}
	if e := c.Grouping.Validate(); e != nil {
		err = multierr.Append(err, e)
	}

	if err == nil {
		err = c.checkCaps()
	}

	if err != nil {
		return fiterr.WrapKind(errors.Wrap(err, "invalid fit config"), fiterr.ConfigurationError)
	}
	return nil
}

func (c *Config) checkCaps() error {
	nAlpha := c.Grid.Alpha.Len()
	if c.Grid.AlphaEqualsB {
		nAlpha = 1
	}

	voxels := c.Grid.B.Len() * nAlpha * c.Grid.C.Len() * c.Grid.P.Len() * c.Grid.Productivity.Len()
	subVoxels := c.Grid.MainshockOffset.Len() * c.Grid.BackgroundOffset.Len()

	maxVoxels := c.Search.MaxVoxels
	if maxVoxels <= 0 {
		maxVoxels = DefaultMaxVoxels
	}
	maxSubVoxels := c.Search.MaxSubVoxels
	if maxSubVoxels <= 0 {
		maxSubVoxels = DefaultMaxSubVoxels
	}

	if voxels > maxVoxels {
		return errors.Errorf("grid has %d voxels, the limit is %d", voxels, maxVoxels)
	}
	if subVoxels == 0 {
		return errors.New("grid has no sub-voxels")
	}
	if subVoxels > maxSubVoxels {
		return errors.Errorf("grid has %d sub-voxels per voxel, the limit is %d", subVoxels, maxSubVoxels)
	}
	return nil
}
