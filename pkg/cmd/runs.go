package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quakelab/etasfit/pkg/cmd/cmdutil"
	"github.com/quakelab/etasfit/pkg/service"
	"github.com/quakelab/etasfit/pkg/style"
)

func init() {
	runsCmd.Flags().String("status", "", "only list runs with this status")
	runsCmd.Flags().String("history", "", "only list runs of this history file")
	runsCmd.Flags().Duration("since", 0, "only list runs younger than this")
	runsCmd.Flags().Uint64("limit", 20, "maximum number of runs to list")
	RootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "list recorded fit runs",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		var options service.FitRunQueryOptions
		var err error

		if options.Status, err = cmd.Flags().GetString("status"); err != nil {
			return err
		}

		if options.History, err = cmd.Flags().GetString("history"); err != nil {
			return err
		}

		if options.Limit, err = cmd.Flags().GetUint64("limit"); err != nil {
			return err
		}

		since, err := cmd.Flags().GetDuration("since")
		if err != nil {
			return err
		}
		if since > 0 {
			options.Since = time.Now().Add(-since)
		}

		ctx := context.Background()
		db, err := cmdutil.ConnectDatabase(ctx, cmd.Flags())
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("--db-driver is required to list fit runs")
		}
		defer db.Close()

		runs, err := db.FitRunService().Query(ctx, options)
		if err != nil {
			return err
		}

		t := style.NewTableWriter(style.NewDefaultTableStyle(), table.Row{"run", "created", "status", "mode", "voxels", "threads", "elapsed", "mle ll", "b", "c", "p", "n"})
		t.SetOutputMirror(os.Stdout)
		for _, run := range runs {
			ll := "-"
			if run.MLELogLikelihood.Valid {
				ll = fmt.Sprintf("%.4f", run.MLELogLikelihood.Float64)
			}
			t.AppendRow(table.Row{
				run.RunID, run.CreatedAt.Format(time.DateTime), run.Status, run.Mode,
				run.Voxels, run.Threads, fmt.Sprintf("%.1fs", run.Elapsed), ll,
				run.MLEB, run.MLEC, run.MLEP, run.MLEBranchRatio,
			})
		}
		t.Render()
		return nil
	},
}
