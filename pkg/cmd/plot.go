package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quakelab/etasfit/pkg/chart"
	"github.com/quakelab/etasfit/pkg/posterior"
)

func init() {
	plotCmd.Flags().String("file", "", "read the snapshot from this file instead of the store")
	plotCmd.Flags().String("param", "p", "parameter to plot: b, alpha, c, p, productivity or branchRatio")
	plotCmd.Flags().Float64("bayesian-weight", -1, "bayesian weight of the plotted posterior, negative uses the fit's")
	plotCmd.Flags().String("output", "marginal.png", "output PNG file")
	RootCmd.AddCommand(plotCmd)
}

var plotCmd = &cobra.Command{
	Use:   "plot [run id]",
	Short: "plot the marginal posterior of one parameter",
	Args:  cobra.MaximumNArgs(1),

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		paramName, err := cmd.Flags().GetString("param")
		if err != nil {
			return err
		}

		bw, err := cmd.Flags().GetFloat64("bayesian-weight")
		if err != nil {
			return err
		}

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		param, err := posterior.ParseParam(paramName)
		if err != nil {
			return err
		}

		snap, err := loadSnapshot(cmd, args)
		if err != nil {
			return err
		}

		if bw < 0 {
			bw = 1
			if snap.Ensemble != nil {
				bw = snap.Ensemble.Options.BayesianWeight
			}
		}

		m, err := posterior.NewMarginal(snap.Voxels, param, bw)
		if err != nil {
			return err
		}

		if err := chart.RenderMarginalFile(output, m); err != nil {
			return err
		}

		log.Infof("marginal of %s written to %s, peak at %.4g", param, output, m.Argmax())
		return nil
	},
}
