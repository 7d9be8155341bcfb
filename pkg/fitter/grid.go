package fitter

import (
	"math"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
)

// ParamPair is one entry of the (b, alpha) or (c, p) enumeration. I and J
// index the underlying axes.
type ParamPair struct {
	First  float64 `json:"first"`
	Second float64 `json:"second"`
	I      int     `json:"i"`
	J      int     `json:"j"`
}

// GridPoint is one voxel of the primary grid.
type GridPoint struct {
	Index int `json:"index"`

	IBA   int `json:"iBA"`
	ICP   int `json:"iCP"`
	IProd int `json:"iProd"`

	B     float64 `json:"b"`
	Alpha float64 `json:"alpha"`
	C     float64 `json:"c"`
	P     float64 `json:"p"`

	// Productivity is the secondary productivity k.
	Productivity float64 `json:"productivity"`
	BranchRatio  float64 `json:"branchRatio"`
}

// SubVoxelDef holds the nested offset axes shared by every voxel.
type SubVoxelDef struct {
	MainshockOffsets  Axis `json:"mainshockOffsets"`
	BackgroundOffsets Axis `json:"backgroundOffsets"`

	BackgroundRateRef float64 `json:"backgroundRateRef"`
	Background        bool    `json:"background"`
}

func (d *SubVoxelDef) Len() int {
	return d.MainshockOffsets.Len() * d.BackgroundOffsets.Len()
}

// Index returns the sub-voxel index of the offset pair.
func (d *SubVoxelDef) Index(iMs, iBg int) int {
	return iMs*d.BackgroundOffsets.Len() + iBg
}

func (d *SubVoxelDef) Split(s int) (iMs, iBg int) {
	n := d.BackgroundOffsets.Len()
	return s / n, s % n
}

// MainshockProductivity converts offset iMs into the mainshock productivity
// for secondary productivity k.
func (d *SubVoxelDef) MainshockProductivity(k float64, iMs int) float64 {
	return k * math.Pow(10, d.MainshockOffsets.Values[iMs])
}

// BackgroundRate converts offset iBg into the background rate, zero without
// background.
func (d *SubVoxelDef) BackgroundRate(iBg int) float64 {
	if !d.Background {
		return 0
	}
	return d.BackgroundRateRef * math.Pow(10, d.BackgroundOffsets.Values[iBg])
}

// Grid is the Cartesian enumeration of a fit.
type Grid struct {
	B, Alpha, C, P, Productivity Axis

	AlphaEqualsB              bool
	ProductivityIsBranchRatio bool

	BA []ParamPair
	CP []ParamPair

	Sub *SubVoxelDef
}

func NewGrid(cfg GridConfig, opts etas.Options) (*Grid, error) {
	g := &Grid{
		AlphaEqualsB:              cfg.AlphaEqualsB,
		ProductivityIsBranchRatio: cfg.ProductivityIsBranchRatio,
	}

	var err error
	if g.B, err = NewAxis("b", cfg.B); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	if cfg.AlphaEqualsB {
		g.Alpha = g.B
		g.Alpha.Name = "alpha"
	} else if g.Alpha, err = NewAxis("alpha", cfg.Alpha); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	if g.C, err = NewAxis("c", cfg.C); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	if g.P, err = NewAxis("p", cfg.P); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	if g.Productivity, err = NewAxis("productivity", cfg.Productivity); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}

	sub := &SubVoxelDef{
		BackgroundRateRef: cfg.BackgroundRateRef,
		Background:        opts.Background,
	}
	if sub.MainshockOffsets, err = NewAxis("mainshockOffset", cfg.MainshockOffset); err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}
	if opts.Background {
		if sub.BackgroundOffsets, err = NewAxis("backgroundOffset", cfg.BackgroundOffset); err != nil {
			return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
		}
	} else {
		sub.BackgroundOffsets = SingleAxis("backgroundOffset", 0)
	}
	if sub.Len() == 0 {
		return nil, fiterr.NewConfigError("grid has no sub-voxels")
	}
	g.Sub = sub

	for i, b := range g.B.Values {
		if cfg.AlphaEqualsB {
			g.BA = append(g.BA, ParamPair{First: b, Second: b, I: i, J: i})
			continue
		}
		for j, alpha := range g.Alpha.Values {
			g.BA = append(g.BA, ParamPair{First: b, Second: alpha, I: i, J: j})
		}
	}

	for i, c := range g.C.Values {
		for j, p := range g.P.Values {
			g.CP = append(g.CP, ParamPair{First: c, Second: p, I: i, J: j})
		}
	}

	return g, nil
}

func (g *Grid) NumVoxels() int {
	return len(g.BA) * len(g.CP) * g.Productivity.Len()
}

// VoxelIndex is the canonical voxel order.
func (g *Grid) VoxelIndex(iBA, iCP, iProd int) int {
	return (iBA*len(g.CP)+iCP)*g.Productivity.Len() + iProd
}

func (g *Grid) SplitIndex(index int) (iBA, iCP, iProd int) {
	nProd := g.Productivity.Len()
	iProd = index % nProd
	index /= nProd
	return index / len(g.CP), index % len(g.CP), iProd
}

// Point returns the voxel at the given indices. Productivity and BranchRatio
// are filled by the caller, which knows the normalization.
func (g *Grid) Point(iBA, iCP, iProd int) GridPoint {
	ba, cp := g.BA[iBA], g.CP[iCP]
	return GridPoint{
		Index: g.VoxelIndex(iBA, iCP, iProd),
		IBA:   iBA,
		ICP:   iCP,
		IProd: iProd,
		B:     ba.First,
		Alpha: ba.Second,
		C:     cp.First,
		P:     cp.Second,
	}
}
