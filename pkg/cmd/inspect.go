package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/quakelab/etasfit/pkg/cmd/cmdutil"
	"github.com/quakelab/etasfit/pkg/posterior"
	"github.com/quakelab/etasfit/pkg/snapshot"
	"github.com/quakelab/etasfit/pkg/style"
)

func init() {
	inspectCmd.Flags().String("file", "", "read the snapshot from this file instead of the store")
	inspectCmd.Flags().Int("top", 10, "number of ensemble members to list")
	inspectCmd.Flags().Int("seeds", 0, "print this many seed parameter sets as JSON")
	inspectCmd.Flags().Bool("no-color", false, "disable colors")
	RootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [run id]",
	Short: "summarize a fitted snapshot",
	Args:  cobra.MaximumNArgs(1),

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		top, err := cmd.Flags().GetInt("top")
		if err != nil {
			return err
		}

		seeds, err := cmd.Flags().GetInt("seeds")
		if err != nil {
			return err
		}

		noColor, err := cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}

		snap, err := loadSnapshot(cmd, args)
		if err != nil {
			return err
		}

		if err := printSummary(os.Stdout, snap, !noColor); err != nil {
			return err
		}
		if err := printEnsemble(os.Stdout, snap, top, !noColor); err != nil {
			return err
		}
		if seeds > 0 {
			return printSeeds(os.Stdout, snap, seeds)
		}
		return nil
	},
}

// loadSnapshot reads the snapshot named by --file, or the one stored under
// the run id argument.
func loadSnapshot(cmd *cobra.Command, args []string) (*snapshot.Snapshot, error) {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return nil, err
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return snapshot.Decode(f)
	}

	if len(args) == 0 {
		return nil, errors.New("a run id or --file is required")
	}

	repo, err := cmdutil.NewSnapshotRepository(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return repo.Load(args[0])
}

func headingWriter(withColor bool) func(io.Writer, string, ...interface{}) {
	if withColor {
		return color.New(color.FgHiCyan, color.Bold).FprintfFunc()
	}
	return func(w io.Writer, format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}
}

func tableStyle(withColor bool) *table.Style {
	if withColor {
		return style.NewDefaultTableStyle()
	}
	return style.NewPlainTableStyle()
}

// printSummary prints the maximum of every weighting regime.
func printSummary(w io.Writer, snap *snapshot.Snapshot, withColor bool) error {
	write := headingWriter(withColor)
	write(w, "---- fit %s (%s) ----\n", snap.ID, snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "%d voxels, magCat %.2f, %d seed groups\n", len(snap.Voxels), snap.MagCat, len(snap.Groups))

	if snap.Ensemble == nil {
		return nil
	}

	t := style.NewTableWriter(tableStyle(withColor), table.Row{"regime", "weight", "b", "alpha", "c", "p", "k", "n", "kms", "mu", "log-density"})
	t.SetOutputMirror(w)
	for r := posterior.Regime(0); r < posterior.NumRegimes; r++ {
		m := snap.Ensemble.Maxima[r]
		if !m.Found() {
			t.AppendRow(table.Row{r, m.Weight, "-", "-", "-", "-", "-", "-", "-", "-", style.LogDensityString(m.LogDensity)})
			continue
		}
		row := table.Row{r, m.Weight}
		row = append(row, voxelRow(snap, m.Ref)...)
		t.AppendRow(append(row, style.LogDensityString(m.LogDensity)))
	}
	t.Render()
	return nil
}

func voxelRow(snap *snapshot.Snapshot, ref posterior.Ref) table.Row {
	v := snap.Voxels[ref.Voxel]
	return table.Row{
		fmt.Sprintf("%.3f", v.B),
		fmt.Sprintf("%.3f", v.Alpha),
		fmt.Sprintf("%.3g", v.C),
		fmt.Sprintf("%.3f", v.P),
		fmt.Sprintf("%.4g", v.Productivity),
		fmt.Sprintf("%.3f", v.BranchRatio),
		fmt.Sprintf("%.4g", v.MainshockProductivity(ref.Sub)),
		fmt.Sprintf("%.4g", v.BackgroundRate(ref.Sub)),
	}
}

type memberCount struct {
	posterior.Ref

	Slots      int
	LogDensity float64
}

// topMembers returns the n sub-voxels filling the most ensemble slots.
func topMembers(ens *posterior.Ensemble, n int) []memberCount {
	byRef := make(map[posterior.Ref]*memberCount)
	var out []memberCount
	for _, m := range ens.Members {
		if c, ok := byRef[m.Ref]; ok {
			c.Slots++
			continue
		}
		byRef[m.Ref] = &memberCount{Ref: m.Ref, Slots: 1, LogDensity: m.LogDensity}
	}
	for _, c := range byRef {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Slots != out[j].Slots {
			return out[i].Slots > out[j].Slots
		}
		if out[i].Voxel != out[j].Voxel {
			return out[i].Voxel < out[j].Voxel
		}
		return out[i].Sub < out[j].Sub
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// printEnsemble lists the ensemble members filling the most slots.
func printEnsemble(w io.Writer, snap *snapshot.Snapshot, n int, withColor bool) error {
	ens := snap.Ensemble
	if ens == nil {
		return errors.Errorf("snapshot %s has no ensemble", snap.ID)
	}

	write := headingWriter(withColor)
	write(w, "---- ensemble of %d, %d sub-voxels kept in %d bins ----\n", ens.Len(), ens.Kept, ens.Bins)

	t := style.NewTableWriter(tableStyle(withColor), table.Row{"slots", "b", "alpha", "c", "p", "k", "n", "kms", "mu", "log-density", ""})
	t.SetOutputMirror(w)
	for _, c := range topMembers(ens, n) {
		row := table.Row{c.Slots}
		row = append(row, voxelRow(snap, c.Ref)...)
		ld := style.LogDensityString(c.LogDensity)
		bar := style.DensityBar(c.LogDensity, style.DefaultDensityLevelResolution, 8)
		if withColor {
			ld = style.LogDensityColor(c.LogDensity, style.DefaultDensityLevelResolution).Sprint(ld)
		}
		t.AppendRow(append(row, ld, bar))
	}
	t.Render()
	return nil
}

// printSeeds prints the next n seed parameter sets, one JSON document per line.
func printSeeds(w io.Writer, snap *snapshot.Snapshot, n int) error {
	seeder, err := snap.Seeder()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if err := enc.Encode(seeder.Next()); err != nil {
			return err
		}
	}
	return nil
}
