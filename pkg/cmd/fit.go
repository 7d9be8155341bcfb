package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quakelab/etasfit/pkg/cmd/cmdutil"
	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/grouping"
	"github.com/quakelab/etasfit/pkg/history"
	"github.com/quakelab/etasfit/pkg/posterior"
	"github.com/quakelab/etasfit/pkg/service"
	"github.com/quakelab/etasfit/pkg/snapshot"
)

func init() {
	fitCmd.Flags().String("config", "fit.yaml", "fit config file")
	fitCmd.Flags().String("history", "", "history file, overrides the config; a relative path in the config is resolved against the config directory")
	fitCmd.Flags().Int("threads", 0, "worker count, overrides the config")
	fitCmd.Flags().String("mode", "auto", "grid search decomposition: auto, cp, quad or quint")
	fitCmd.Flags().Bool("no-progress", false, "do not show the progress bar")
	fitCmd.Flags().String("dump", "", "write the voxel diagnostics to this TSV file")
	RootCmd.AddCommand(fitCmd)
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "run the grid search and select the posterior ensemble",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		historyFile, err := cmd.Flags().GetString("history")
		if err != nil {
			return err
		}

		threads, err := cmd.Flags().GetInt("threads")
		if err != nil {
			return err
		}

		modeName, err := cmd.Flags().GetString("mode")
		if err != nil {
			return err
		}

		noProgress, err := cmd.Flags().GetBool("no-progress")
		if err != nil {
			return err
		}

		dumpFile, err := cmd.Flags().GetString("dump")
		if err != nil {
			return err
		}

		cfg, err := fitter.LoadConfig(configFile)
		if err != nil {
			return err
		}

		if historyFile == "" {
			if cfg.History == "" {
				return errors.New("no history file given, set --history or history in the config")
			}
			historyFile = cfg.History
			if !filepath.IsAbs(historyFile) {
				historyFile = filepath.Join(filepath.Dir(configFile), historyFile)
			}
		}

		job := &fitJob{
			Config:      cfg,
			HistoryFile: historyFile,
			Threads:     threads,
			Mode:        modeName,
			Progress:    !noProgress,
		}

		repo, err := cmdutil.NewSnapshotRepository(cmd.Flags())
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		db, err := cmdutil.ConnectDatabase(ctx, cmd.Flags())
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		snap, run, fitErr := job.Run(ctx)
		if db != nil && run != nil {
			if err := db.FitRunService().Insert(ctx, run); err != nil {
				log.WithError(err).Errorf("unable to record fit run %s", run.RunID)
			}
		}
		if fitErr != nil {
			return fitErr
		}

		if err := repo.Save(snap); err != nil {
			return err
		}

		if dumpFile != "" {
			f, err := os.Create(dumpFile)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := fitter.WriteDiagnostics(f, snap.Voxels, true); err != nil {
				return err
			}
		}

		log.Infof("fit %s saved", snap.ID)
		return printSummary(os.Stdout, snap, false)
	},
}

// fitJob runs one grid search and the ensemble selection over its voxels.
type fitJob struct {
	Config      *fitter.Config
	HistoryFile string
	Threads     int
	Mode        string
	Progress    bool
}

// Run returns the fitted snapshot and the record of the run. The record is
// also returned when the grid search fails.
func (j *fitJob) Run(ctx context.Context) (*snapshot.Snapshot, *service.FitRun, error) {
	hist, err := history.LoadFile(j.HistoryFile)
	if err != nil {
		return nil, nil, err
	}

	var groups etas.Groups
	var grp *grouping.Grouping
	if j.Config.Grouping.Enabled {
		grp, err = grouping.Build(hist, j.Config.Grouping.Options(hist))
		if err != nil {
			return nil, nil, err
		}
		groups = grp
		log.Infof("%d ruptures grouped into %d seed groups", hist.NumRuptures(), grp.NumGroups())
	}

	search, err := fitter.NewGridSearch(hist, j.Config, nil, groups)
	if err != nil {
		return nil, nil, err
	}

	search.SetThreads(j.Threads)
	if j.Mode != "" && j.Mode != "auto" {
		mode, err := fitter.ParseMode(j.Mode)
		if err != nil {
			return nil, nil, err
		}
		search.SetMode(mode)
	}

	grid := search.Grid()
	snap := snapshot.New(nil, hist.MagCat)
	run := &service.FitRun{
		RunID:     snap.ID,
		History:   j.HistoryFile,
		Mode:      search.Mode().String(),
		Voxels:    grid.NumVoxels(),
		SubVoxels: grid.NumVoxels() * grid.Sub.Len(),
		Threads:   j.Threads,
		CreatedAt: snap.CreatedAt,
	}
	if run.Threads <= 0 {
		run.Threads = j.Config.NumThreads()
	}

	if j.Progress {
		bar := pb.Full.Start(grid.NumVoxels())
		bar.SetTemplateString(`{{ string . "mode" | green}} | {{counters . }} {{bar . }} {{percent . }} {{etime . }} {{rtime . "ETA %s"}}`)
		bar.Set("mode", run.Mode)
		search.SetProgressFunc(func(done, total int) {
			bar.SetCurrent(int64(done))
		})
		defer bar.Finish()
	}

	start := time.Now()
	voxels, err := search.Run(ctx)
	run.Elapsed = time.Since(start).Seconds()
	run.SetResult(err)
	if err != nil {
		return nil, run, err
	}

	selector, err := posterior.NewSelector(voxels, posterior.OptionsFromConfig(j.Config.Posterior))
	if err != nil {
		run.SetResult(err)
		return nil, run, err
	}

	if mle := selector.MLE(); mle.Found() {
		v := voxels[mle.Voxel]
		run.SetMLE(v, v.SubVoxels[mle.Sub].LogLikelihood)
	}

	ensemble, err := selector.Select()
	if err != nil {
		run.SetResult(err)
		return nil, run, err
	}

	snap.Voxels = voxels
	snap.Ensemble = ensemble
	if grp != nil {
		snap.Groups = grp.Groups
	}
	return snap, run, nil
}
