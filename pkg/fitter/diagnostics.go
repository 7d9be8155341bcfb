package fitter

import (
	"io"

	"github.com/pkg/errors"

	"github.com/quakelab/etasfit/pkg/data/tsv"
)

// DiagnosticsHeader names the columns written by WriteDiagnostics.
var DiagnosticsHeader = []string{
	"b", "alpha", "c", "p", "productivity",
	"mainshockOffset", "backgroundOffset",
	"priorLogDensity", "priorLogVolume", "logLikelihood",
}

// WriteDiagnostics writes one line per sub-voxel. The productivity column
// holds the secondary productivity whatever the grid enumerates.
func WriteDiagnostics(out io.Writer, voxels []*StatVoxel, header bool) error {
	w := tsv.NewWriter(out)

	if header {
		if err := w.Write(DiagnosticsHeader); err != nil {
			return errors.Wrap(err, "unable to write diagnostics header")
		}
	}

	for _, v := range voxels {
		for s, sub := range v.SubVoxels {
			iMs, iBg := v.Def.Split(s)
			if err := w.WriteFloats(
				v.B, v.Alpha, v.C, v.P, v.Productivity,
				v.Def.MainshockOffsets.Values[iMs], v.Def.BackgroundOffsets.Values[iBg],
				sub.PriorLogDensity, sub.PriorLogVolume, sub.LogLikelihood,
			); err != nil {
				return errors.Wrapf(err, "unable to write diagnostics of voxel %d", v.Index)
			}
		}
	}

	return w.Close()
}
