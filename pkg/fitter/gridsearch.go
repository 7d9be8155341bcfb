package fitter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/history"
	"github.com/quakelab/etasfit/pkg/metrics"
)

var log = logrus.WithField("component", "fitter")

// Mode is the unit of parallel work of a grid search.
type Mode int

const (
	// UnitPerCP runs one (c, p) pair per unit; magnitude caches are pre-built.
	UnitPerCP Mode = iota

	// UnitPerQuad runs one (b, alpha, c, p) quadruple per unit; magnitude and
	// Omori caches are pre-built.
	UnitPerQuad

	// UnitPerQuint runs one voxel per unit; magnitude, Omori and pair caches
	// are pre-built.
	UnitPerQuint
)

func (m Mode) String() string {
	switch m {
	case UnitPerCP:
		return "cp"
	case UnitPerQuad:
		return "quad"
	case UnitPerQuint:
		return "quint"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses the name printed by Mode.String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{UnitPerCP, UnitPerQuad, UnitPerQuint} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fiterr.NewConfigError("unknown grid search mode %q", s)
}

// ChooseMode picks the coarsest decomposition with at least one unit per thread.
func ChooseMode(nBA, nCP, nProd, threads int) Mode {
	switch {
	case nCP >= threads:
		return UnitPerCP
	case nBA*nCP >= threads:
		return UnitPerQuad
	}
	return UnitPerQuint
}

// ProgressFunc receives the number of completed voxels. It is called from
// the worker goroutines.
type ProgressFunc func(done, total int)

var errAborted = errors.New("grid search aborted")

type GridSearch struct {
	hist   *history.History
	grid   *Grid
	opts   etas.Options
	prior  Prior
	groups etas.Groups

	threads int
	timeout time.Duration
	mode    Mode
	forced  bool

	progress ProgressFunc

	aborted atomic.Bool
	done    atomic.Int64

	// background rates of the sub-voxel axis, fixed for the whole run
	mus []float64

	// read-only once pre-built
	mags   []*etas.MagnitudeExponentCache
	omoris []*etas.OmoriKernelCache
	pairs  []*etas.PairCache

	omoriPool *Pool[*etas.OmoriKernelCache]
	pairPool  *Pool[*etas.PairCache]
	ampPool   *Pool[*etas.AmplitudeCache]

	mu     sync.Mutex
	voxels []*StatVoxel
}

// NewGridSearch prepares a grid search over the configured grid. A nil prior
// selects the configured one; nil groups disable seed grouping.
func NewGridSearch(hist *history.History, cfg *Config, prior Prior, groups etas.Groups) (*GridSearch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := cfg.Options()
	grid, err := NewGrid(cfg.Grid, opts)
	if err != nil {
		return nil, err
	}

	if prior == nil {
		if prior, err = cfg.Prior.NewPrior(grid); err != nil {
			return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
		}
	}

	s := &GridSearch{
		hist:    hist,
		grid:    grid,
		opts:    opts,
		prior:   prior,
		groups:  groups,
		threads: cfg.NumThreads(),
		timeout: cfg.Search.Timeout,
	}

	s.mus = make([]float64, grid.Sub.BackgroundOffsets.Len())
	for i := range s.mus {
		s.mus[i] = grid.Sub.BackgroundRate(i)
	}

	mask := opts.KernelMask()
	s.omoriPool = NewPool("omori", func() *etas.OmoriKernelCache {
		return etas.NewOmoriKernelCache(hist, mask)
	})
	s.pairPool = NewPool("pair", func() *etas.PairCache {
		return etas.NewPairCache(s.mags[0])
	})
	s.ampPool = NewPool("amplitude", func() *etas.AmplitudeCache {
		return etas.NewAmplitudeCache(s.mags[0])
	})

	return s, nil
}

func (s *GridSearch) Grid() *Grid { return s.grid }

func (s *GridSearch) Options() etas.Options { return s.opts }

func (s *GridSearch) SetThreads(n int) {
	if n > 0 {
		s.threads = n
	}
}

// SetMode forces a decomposition instead of choosing one from the thread count.
func (s *GridSearch) SetMode(m Mode) {
	s.mode = m
	s.forced = true
}

func (s *GridSearch) SetProgressFunc(f ProgressFunc) { s.progress = f }

// Mode returns the decomposition the next Run uses.
func (s *GridSearch) Mode() Mode {
	if s.forced {
		return s.mode
	}
	return ChooseMode(len(s.grid.BA), len(s.grid.CP), s.grid.Productivity.Len(), s.threads)
}

// Abort makes the workers stop claiming units. Run then fails with ThreadAbort.
// The abort is sticky: a Run started after Abort fails before evaluating
// anything.
func (s *GridSearch) Abort() { s.aborted.Store(true) }

func (s *GridSearch) numUnits(mode Mode) int {
	nBA, nCP := len(s.grid.BA), len(s.grid.CP)
	switch mode {
	case UnitPerCP:
		return nCP
	case UnitPerQuad:
		return nBA * nCP
	}
	return s.grid.NumVoxels()
}

// Run evaluates every voxel of the grid and returns them in voxel index
// order. On Timeout the voxels completed so far are returned along with the
// error.
func (s *GridSearch) Run(ctx context.Context) ([]*StatVoxel, error) {
	start := time.Now()
	mode := s.Mode()
	total := s.grid.NumVoxels()
	units := s.numUnits(mode)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.done.Store(0)
	s.voxels = make([]*StatVoxel, 0, total)
	metrics.GridSearchProgressMetrics.Set(0)

	threads := s.threads
	if threads > units {
		threads = units
	}

	log.WithFields(logrus.Fields{
		"mode":      mode,
		"voxels":    total,
		"subVoxels": s.grid.Sub.Len(),
		"units":     units,
		"threads":   threads,
	}).Info("starting grid search")

	if err := s.checkStop(ctx); err != nil {
		return nil, s.failure(ctx, err, start, total, mode)
	}

	if err := s.prebuild(ctx, mode); err != nil {
		return nil, s.failure(ctx, err, start, total, mode)
	}

	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	var cursor atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < threads; w++ {
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fiterr.WrapKind(errors.Errorf("grid search worker panic: %v", r), fiterr.ThreadAbort)
				}
			}()

			for {
				if err := s.checkStop(egCtx); err != nil {
					return err
				}

				u := int(cursor.Add(1)) - 1
				if u >= units {
					return nil
				}

				batch, err := s.runUnit(egCtx, mode, u)
				s.collect(batch, total, limiter, mode)
				if err != nil {
					return err
				}
			}
		})
	}

	err := eg.Wait()

	sort.Slice(s.voxels, func(i, j int) bool {
		return s.voxels[i].Index < s.voxels[j].Index
	})

	if err != nil {
		ferr := s.failure(ctx, err, start, total, mode)
		if fiterr.IsKind(ferr, fiterr.Timeout) {
			return s.voxels, ferr
		}
		return nil, ferr
	}

	if len(s.voxels) != total {
		return nil, fiterr.NewInvariantError("grid search produced %d voxels, expected %d", len(s.voxels), total)
	}
	for i, v := range s.voxels {
		if v.Index != i {
			return nil, fiterr.NewInvariantError("voxel %d found at position %d", v.Index, i)
		}
	}

	elapsed := time.Since(start)
	metrics.GridSearchDurationMetrics.WithLabelValues(mode.String(), "ok").Observe(elapsed.Seconds())
	log.Infof("grid search evaluated %d voxels in %s", total, elapsed.Round(time.Millisecond))
	return s.voxels, nil
}

func (s *GridSearch) checkStop(ctx context.Context) error {
	if s.aborted.Load() {
		return errAborted
	}
	return ctx.Err()
}

func (s *GridSearch) collect(batch []*StatVoxel, total int, limiter *rate.Limiter, mode Mode) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	s.voxels = append(s.voxels, batch...)
	s.mu.Unlock()

	done := int(s.done.Add(int64(len(batch))))
	metrics.VoxelsEvaluatedMetrics.WithLabelValues(mode.String()).Add(float64(len(batch)))
	metrics.GridSearchProgressMetrics.Set(float64(done) / float64(total))

	if limiter.Allow() {
		log.Infof("grid search progress: %d/%d voxels (%.1f%%)", done, total, 100*float64(done)/float64(total))
	}

	if s.progress != nil {
		s.progress(done, total)
	}
}

func (s *GridSearch) failure(ctx context.Context, err error, start time.Time, total int, mode Mode) error {
	elapsed := time.Since(start)
	completed := float64(s.done.Load()) / float64(total)

	if fe, ok := fiterr.AsFitError(err); ok && (fe.Kind == fiterr.ConfigurationError || fe.Kind == fiterr.InvariantViolation) {
		metrics.GridSearchDurationMetrics.WithLabelValues(mode.String(), fe.Kind.String()).Observe(elapsed.Seconds())
		return err
	}

	kind := fiterr.ThreadAbort
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = fiterr.Timeout
	}

	if fe, ok := fiterr.AsFitError(err); ok {
		err = fe.Err
	}

	metrics.GridSearchDurationMetrics.WithLabelValues(mode.String(), kind.String()).Observe(elapsed.Seconds())
	log.WithError(err).Warnf("grid search stopped after %s with %.1f%% completed", elapsed.Round(time.Millisecond), completed*100)

	return &fiterr.FitError{
		Kind:      kind,
		Completed: completed,
		Elapsed:   elapsed,
		Err:       err,
	}
}

// prebuild fills the read-only cache lists the chosen mode shares between workers.
func (s *GridSearch) prebuild(ctx context.Context, mode Mode) error {
	nBA, nCP := len(s.grid.BA), len(s.grid.CP)

	s.mags = make([]*etas.MagnitudeExponentCache, nBA)
	s.omoris = nil
	s.pairs = nil

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.threads)

	for i, ba := range s.grid.BA {
		eg.Go(func() error {
			if err := s.checkStop(egCtx); err != nil {
				return err
			}
			mag := etas.NewMagnitudeExponentCache(s.hist, s.opts, s.groups)
			mag.Build(ba.First, ba.Second)
			metrics.CacheBuildsMetrics.WithLabelValues("magnitude").Inc()
			s.mags[i] = mag
			return nil
		})
	}

	if mode != UnitPerCP {
		s.omoris = make([]*etas.OmoriKernelCache, nCP)
		mask := s.opts.KernelMask()
		for i, cp := range s.grid.CP {
			eg.Go(func() error {
				if err := s.checkStop(egCtx); err != nil {
					return err
				}
				omori := etas.NewOmoriKernelCache(s.hist, mask)
				omori.Build(cp.Second, cp.First)
				metrics.CacheBuildsMetrics.WithLabelValues("omori").Inc()
				s.omoris[i] = omori
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	if mode != UnitPerQuint {
		return nil
	}

	s.pairs = make([]*etas.PairCache, nBA*nCP)
	eg, egCtx = errgroup.WithContext(ctx)
	eg.SetLimit(s.threads)
	for iBA := range s.grid.BA {
		for iCP := range s.grid.CP {
			eg.Go(func() error {
				if err := s.checkStop(egCtx); err != nil {
					return err
				}
				pair := etas.NewPairCache(s.mags[iBA])
				if err := pair.Build(s.mags[iBA], s.omoris[iCP]); err != nil {
					return err
				}
				metrics.CacheBuildsMetrics.WithLabelValues("pair").Inc()
				s.pairs[iBA*nCP+iCP] = pair
				return nil
			})
		}
	}
	return eg.Wait()
}

// runUnit evaluates every voxel of one work unit. The voxels finished before
// a stop request are returned along with the error.
func (s *GridSearch) runUnit(ctx context.Context, mode Mode, u int) ([]*StatVoxel, error) {
	nCP, nProd := len(s.grid.CP), s.grid.Productivity.Len()

	amp := s.ampPool.Acquire()
	defer s.ampPool.Release(amp)

	switch mode {
	case UnitPerCP:
		iCP := u
		cp := s.grid.CP[iCP]

		omori := s.omoriPool.Acquire()
		defer s.omoriPool.Release(omori)
		omori.Build(cp.Second, cp.First)
		metrics.CacheBuildsMetrics.WithLabelValues("omori").Inc()

		pair := s.pairPool.Acquire()
		defer s.pairPool.Release(pair)

		batch := make([]*StatVoxel, 0, len(s.grid.BA)*nProd)
		for iBA := range s.grid.BA {
			if err := pair.Build(s.mags[iBA], omori); err != nil {
				return batch, err
			}
			metrics.CacheBuildsMetrics.WithLabelValues("pair").Inc()

			for iProd := 0; iProd < nProd; iProd++ {
				if err := s.checkStop(ctx); err != nil {
					return batch, err
				}
				v, err := s.evaluate(pair, amp, iBA, iCP, iProd)
				if err != nil {
					return batch, err
				}
				batch = append(batch, v)
			}
		}
		return batch, nil

	case UnitPerQuad:
		iBA, iCP := u/nCP, u%nCP

		pair := s.pairPool.Acquire()
		defer s.pairPool.Release(pair)
		if err := pair.Build(s.mags[iBA], s.omoris[iCP]); err != nil {
			return nil, err
		}
		metrics.CacheBuildsMetrics.WithLabelValues("pair").Inc()

		batch := make([]*StatVoxel, 0, nProd)
		for iProd := 0; iProd < nProd; iProd++ {
			if err := s.checkStop(ctx); err != nil {
				return batch, err
			}
			v, err := s.evaluate(pair, amp, iBA, iCP, iProd)
			if err != nil {
				return batch, err
			}
			batch = append(batch, v)
		}
		return batch, nil

	case UnitPerQuint:
		iBA, iCP, iProd := s.grid.SplitIndex(u)
		v, err := s.evaluate(s.pairs[iBA*nCP+iCP], amp, iBA, iCP, iProd)
		if err != nil {
			return nil, err
		}
		return []*StatVoxel{v}, nil
	}

	return nil, fiterr.NewInvariantError("unknown grid search mode %s", mode)
}

func (s *GridSearch) evaluate(pair *etas.PairCache, amp *etas.AmplitudeCache, iBA, iCP, iProd int) (*StatVoxel, error) {
	point := s.grid.Point(iBA, iCP, iProd)
	if err := pair.CheckParams(point.B, point.Alpha, point.C, point.P); err != nil {
		return nil, err
	}

	value := s.grid.Productivity.Values[iProd]
	if s.grid.ProductivityIsBranchRatio {
		point.BranchRatio = value
		point.Productivity = pair.BranchRatioToProductivity(value)
	} else {
		point.Productivity = value
		point.BranchRatio = pair.ProductivityToBranchRatio(value)
	}

	if err := amp.Build(pair, point.Productivity); err != nil {
		return nil, err
	}
	metrics.CacheBuildsMetrics.WithLabelValues("amplitude").Inc()

	def := s.grid.Sub
	n := def.Len()

	kms := make([]float64, def.MainshockOffsets.Len())
	for i := range kms {
		kms[i] = def.MainshockProductivity(point.Productivity, i)
	}

	like := make([]float64, n)
	amp.LogLikelihoodGrid(point.Productivity, kms, s.mus, like)

	density := make([]float64, n)
	volume := make([]float64, n)
	if err := s.prior.Evaluate(point, def, density, volume); err != nil {
		return nil, errors.Wrapf(err, "prior failed at voxel %d", point.Index)
	}

	voxel := &StatVoxel{
		GridPoint: point,
		Def:       def,
		SubVoxels: make([]SubVoxel, n),
	}
	for i := range voxel.SubVoxels {
		if math.IsNaN(like[i]) {
			return nil, fiterr.NewInvariantError("NaN log-likelihood at voxel %d sub-voxel %d", point.Index, i)
		}
		voxel.SubVoxels[i] = SubVoxel{
			PriorLogDensity: density[i],
			PriorLogVolume:  volume[i],
			LogLikelihood:   like[i],
		}
	}

	if s.groups != nil {
		for o := range voxel.GroupCoef {
			voxel.GroupCoef[o] = append([]float64(nil), amp.GroupCoefficients(etas.Origin(o))...)
		}
	}

	return voxel, nil
}
