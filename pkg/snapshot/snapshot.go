package snapshot

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"

	"github.com/quakelab/etasfit/pkg/etas"
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
	"github.com/quakelab/etasfit/pkg/grouping"
	"github.com/quakelab/etasfit/pkg/posterior"
)

var log = logrus.WithField("component", "snapshot")

const (
	Version = 1
	Kind    = "etasfit.snapshot"
)

var ErrUnknownVersion = errors.New("unknown snapshot version")

// Snapshot is a fitted voxel set with everything seeding and MLE lookups
// need.
type Snapshot struct {
	ID        string
	CreatedAt time.Time

	MagCat float64

	Voxels   []*fitter.StatVoxel
	Groups   []grouping.Group
	Ensemble *posterior.Ensemble
}

// New stamps a fresh run id on the voxel set.
func New(voxels []*fitter.StatVoxel, magCat float64) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		MagCat:    magCat,
		Voxels:    voxels,
	}
}

// Seeder seeds from the stored ensemble.
func (s *Snapshot) Seeder() (*posterior.Seeder, error) {
	if s.Ensemble == nil {
		return nil, errors.Errorf("snapshot %s has no ensemble", s.ID)
	}
	return s.Ensemble.Seeder(s.MagCat, s.Groups), nil
}

type document struct {
	Version int    `json:"version"`
	Kind    string `json:"kind"`

	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	MagCat    float64   `json:"magCat"`

	// de-duplicated tables referenced by index from the voxels
	BA   [][2]float64          `json:"ba"`
	CP   [][2]float64          `json:"cp"`
	Defs []*fitter.SubVoxelDef `json:"defs"`

	Groups   []grouping.Group `json:"groups,omitempty"`
	Voxels   []voxelRecord    `json:"voxels"`
	Ensemble *ensembleRecord  `json:"ensemble,omitempty"`
}

type voxelRecord struct {
	Index int `json:"i"`
	BA    int `json:"ba"`
	CP    int `json:"cp"`
	Def   int `json:"def"`

	IBA   int `json:"iBA"`
	ICP   int `json:"iCP"`
	IProd int `json:"iProd"`

	Productivity float64 `json:"k"`
	BranchRatio  float64 `json:"n"`

	// prior log-density, prior log-volume, log-likelihood
	Sub [][3]number `json:"sub"`

	GroupCoef *[etas.NumOrigins][]float64 `json:"groupCoef,omitempty"`
}

type memberRecord struct {
	Voxel      int    `json:"v"`
	Sub        int    `json:"s"`
	LogDensity number `json:"ld"`
}

type maximumRecord struct {
	memberRecord

	Weight float64 `json:"w"`
}

type ensembleRecord struct {
	Options posterior.Options `json:"options"`
	Mass    float64           `json:"mass"`
	Kept    int               `json:"kept"`
	Bins    int               `json:"bins"`

	Members []memberRecord  `json:"members"`
	Maxima  []maximumRecord `json:"maxima"`
}

type pairTable struct {
	index  map[[2]float64]int
	values [][2]float64
}

func (t *pairTable) add(a, b float64) int {
	key := [2]float64{a, b}
	if i, ok := t.index[key]; ok {
		return i
	}
	if t.index == nil {
		t.index = make(map[[2]float64]int)
	}
	t.index[key] = len(t.values)
	t.values = append(t.values, key)
	return len(t.values) - 1
}

func (s *Snapshot) document() *document {
	doc := &document{
		Version:   Version,
		Kind:      Kind,
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		MagCat:    s.MagCat,
		Groups:    s.Groups,
		Voxels:    make([]voxelRecord, len(s.Voxels)),
	}

	var ba, cp pairTable
	defs := map[*fitter.SubVoxelDef]int{}
	for i, v := range s.Voxels {
		def, ok := defs[v.Def]
		if !ok {
			def = len(doc.Defs)
			defs[v.Def] = def
			doc.Defs = append(doc.Defs, v.Def)
		}

		rec := voxelRecord{
			Index:        v.Index,
			BA:           ba.add(v.B, v.Alpha),
			CP:           cp.add(v.C, v.P),
			Def:          def,
			IBA:          v.IBA,
			ICP:          v.ICP,
			IProd:        v.IProd,
			Productivity: v.Productivity,
			BranchRatio:  v.BranchRatio,
			Sub:          make([][3]number, len(v.SubVoxels)),
		}
		for j, sub := range v.SubVoxels {
			rec.Sub[j] = [3]number{number(sub.PriorLogDensity), number(sub.PriorLogVolume), number(sub.LogLikelihood)}
		}
		if v.GroupCoef[etas.OriginSecondary] != nil {
			coef := v.GroupCoef
			rec.GroupCoef = &coef
		}
		doc.Voxels[i] = rec
	}
	doc.BA, doc.CP = ba.values, cp.values

	if e := s.Ensemble; e != nil {
		rec := &ensembleRecord{
			Options: e.Options,
			Mass:    e.Mass,
			Kept:    e.Kept,
			Bins:    e.Bins,
			Members: make([]memberRecord, len(e.Members)),
		}
		for i, m := range e.Members {
			rec.Members[i] = memberRecord{Voxel: m.Voxel, Sub: m.Sub, LogDensity: number(m.LogDensity)}
		}
		for _, m := range e.Maxima {
			rec.Maxima = append(rec.Maxima, maximumRecord{
				memberRecord: memberRecord{Voxel: m.Voxel, Sub: m.Sub, LogDensity: number(m.LogDensity)},
				Weight:       m.Weight,
			})
		}
		doc.Ensemble = rec
	}

	return doc
}

func Marshal(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s.document())
	if err != nil {
		return nil, errors.Wrapf(err, "unable to marshal snapshot %s", s.ID)
	}
	return data, nil
}

func Encode(w io.Writer, s *Snapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "unable to write snapshot %s", s.ID)
	}
	log.Infof("encoded snapshot %s: %d voxels, %d bytes", s.ID, len(s.Voxels), len(data))
	return nil
}

func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read snapshot")
	}
	return Unmarshal(data)
}

// Unmarshal checks the header before decoding the body, so documents of
// another kind or version are rejected without being decoded.
func Unmarshal(data []byte) (*Snapshot, error) {
	var parser fastjson.Parser
	val, err := parser.ParseBytes(data)
	if err != nil {
		return nil, fiterr.WrapKind(errors.Wrap(err, "unable to parse snapshot"), fiterr.ConfigurationError)
	}

	if kind := string(val.GetStringBytes("kind")); kind != Kind {
		return nil, fiterr.NewConfigError("not a snapshot document, kind %q", kind)
	}
	if version := val.GetInt("version"); version != Version {
		return nil, fiterr.WrapKind(errors.Wrapf(ErrUnknownVersion, "version %d", version), fiterr.ConfigurationError)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fiterr.WrapKind(errors.Wrap(err, "unable to decode snapshot"), fiterr.ConfigurationError)
	}

	s, err := doc.snapshot()
	if err != nil {
		return nil, fiterr.WrapKind(err, fiterr.ConfigurationError)
	}

	log.Debugf("decoded snapshot %s: %d voxels", s.ID, len(s.Voxels))
	return s, nil
}

func (doc *document) snapshot() (*Snapshot, error) {
	s := &Snapshot{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		MagCat:    doc.MagCat,
		Groups:    doc.Groups,
		Voxels:    make([]*fitter.StatVoxel, len(doc.Voxels)),
	}

	for i, rec := range doc.Voxels {
		if rec.BA < 0 || rec.BA >= len(doc.BA) || rec.CP < 0 || rec.CP >= len(doc.CP) {
			return nil, errors.Errorf("voxel %d references a missing parameter pair", rec.Index)
		}
		if rec.Def < 0 || rec.Def >= len(doc.Defs) || doc.Defs[rec.Def] == nil {
			return nil, errors.Errorf("voxel %d references a missing sub-voxel definition", rec.Index)
		}

		def := doc.Defs[rec.Def]
		if len(rec.Sub) != def.Len() {
			return nil, errors.Errorf("voxel %d has %d sub-voxels, its definition %d", rec.Index, len(rec.Sub), def.Len())
		}

		v := &fitter.StatVoxel{
			GridPoint: fitter.GridPoint{
				Index:        rec.Index,
				IBA:          rec.IBA,
				ICP:          rec.ICP,
				IProd:        rec.IProd,
				B:            doc.BA[rec.BA][0],
				Alpha:        doc.BA[rec.BA][1],
				C:            doc.CP[rec.CP][0],
				P:            doc.CP[rec.CP][1],
				Productivity: rec.Productivity,
				BranchRatio:  rec.BranchRatio,
			},
			Def:       def,
			SubVoxels: make([]fitter.SubVoxel, len(rec.Sub)),
		}
		for j, sub := range rec.Sub {
			v.SubVoxels[j] = fitter.SubVoxel{
				PriorLogDensity: float64(sub[0]),
				PriorLogVolume:  float64(sub[1]),
				LogLikelihood:   float64(sub[2]),
			}
		}
		if rec.GroupCoef != nil {
			v.GroupCoef = *rec.GroupCoef
			for o := range v.GroupCoef {
				if len(v.GroupCoef[o]) != len(doc.Groups) {
					return nil, errors.Errorf("voxel %d has %d group coefficients for %d groups", rec.Index, len(v.GroupCoef[o]), len(doc.Groups))
				}
			}
		}
		s.Voxels[i] = v
	}

	if rec := doc.Ensemble; rec != nil {
		if len(rec.Maxima) != int(posterior.NumRegimes) {
			return nil, errors.Errorf("ensemble has %d maxima, expected %d", len(rec.Maxima), posterior.NumRegimes)
		}

		e := &posterior.Ensemble{
			Members: make([]posterior.Member, len(rec.Members)),
			Options: rec.Options,
			Voxels:  s.Voxels,
			Mass:    rec.Mass,
			Kept:    rec.Kept,
			Bins:    rec.Bins,
		}
		for i, m := range rec.Members {
			if err := s.checkRef(m.Voxel, m.Sub); err != nil {
				return nil, errors.Wrapf(err, "ensemble member %d", i)
			}
			e.Members[i] = posterior.Member{
				Ref:        posterior.Ref{Voxel: m.Voxel, Sub: m.Sub},
				LogDensity: float64(m.LogDensity),
			}
		}
		for r, m := range rec.Maxima {
			e.Maxima[r] = posterior.Maximum{
				Ref:        posterior.Ref{Voxel: m.Voxel, Sub: m.Sub},
				Weight:     m.Weight,
				LogDensity: float64(m.LogDensity),
			}
		}
		s.Ensemble = e
	}

	return s, nil
}

func (s *Snapshot) checkRef(voxel, sub int) error {
	if voxel < 0 || voxel >= len(s.Voxels) {
		return errors.Errorf("voxel %d out of range", voxel)
	}
	if sub < 0 || sub >= len(s.Voxels[voxel].SubVoxels) {
		return errors.Errorf("sub-voxel %d of voxel %d out of range", sub, voxel)
	}
	return nil
}

// MarshalJSON writes the versioned document, so a snapshot can be handed to
// any JSON based store.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return Marshal(s)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}
