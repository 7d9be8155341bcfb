package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/snapshot"
)

func init() {
	dumpCmd.Flags().String("file", "", "read the snapshot from this file instead of the store")
	dumpCmd.Flags().String("output", "", "write the TSV here instead of stdout")
	dumpCmd.Flags().Bool("header", true, "write the column header")
	dumpCmd.Flags().String("snapshot-output", "", "also write the snapshot JSON to this file")
	RootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump [run id]",
	Short: "write the per sub-voxel diagnostics of a fit as TSV",
	Args:  cobra.MaximumNArgs(1),

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		header, err := cmd.Flags().GetBool("header")
		if err != nil {
			return err
		}

		snapshotOutput, err := cmd.Flags().GetString("snapshot-output")
		if err != nil {
			return err
		}

		snap, err := loadSnapshot(cmd, args)
		if err != nil {
			return err
		}

		if snapshotOutput != "" {
			f, err := os.Create(snapshotOutput)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := snapshot.Encode(f, snap); err != nil {
				return err
			}
		}

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		return fitter.WriteDiagnostics(out, snap.Voxels, header)
	},
}
