package grouping

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/history"
)

var log = logrus.WithField("component", "grouping")

// Direction is the order in which sources are scanned.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "", "forward":
		*d = Forward
	case "reverse":
		*d = Reverse
	default:
		return fiterr.NewConfigError("unknown scan direction %q", string(data))
	}
	return nil
}

type Options struct {
	AcceptRupture  RuptureAcceptFunc
	AcceptInterval IntervalAcceptFunc
	SpanWidth      SpanWidthFunc
	RuptureWidth   RuptureWidthFunc
	Direction      Direction
}

// Group is a run of temporally adjacent sources seeded as one point source.
type Group struct {
	Begin  float64 `json:"begin"`
	End    float64 `json:"end"`
	Center float64 `json:"center"`

	Ruptures  int `json:"ruptures"`
	Intervals int `json:"intervals"`

	// Oversized marks a group made of one source that is wider than its own
	// bound. Such a group is kept rather than splitting the source.
	Oversized bool `json:"oversized,omitempty"`
}

func (g Group) Width() float64 { return g.End - g.Begin }

// source is one scan unit: a lone rupture, or an interval together with the
// accepted ruptures strictly inside it, so that group spans never overlap.
type source struct {
	interval int
	ruptures []int

	// scan order key; the interval midpoint keeps group centers ordered
	key    float64
	lo, hi float64

	limit float64
}

func (s source) String() string {
	if s.interval >= 0 {
		return fmt.Sprintf("interval %d", s.interval)
	}
	return fmt.Sprintf("rupture %d", s.ruptures[0])
}

// Grouping partitions the accepted sources of a history into groups. It
// implements etas.Groups.
type Grouping struct {
	Groups []Group `json:"groups"`

	RuptureGroups  []int `json:"ruptureGroups"`
	IntervalGroups []int `json:"intervalGroups"`

	acceptedRuptures  int
	acceptedIntervals int
	sources           []source
}

// Build scans the accepted sources and greedily merges them while the
// merged width stays within the bounds of every member.
func Build(hist *history.History, opts Options) (*Grouping, error) {
	if opts.AcceptRupture == nil {
		opts.AcceptRupture = AcceptAllRuptures
	}
	if opts.AcceptInterval == nil {
		opts.AcceptInterval = AcceptAllIntervals
	}
	if opts.SpanWidth == nil {
		return nil, fiterr.NewConfigError("grouping requires a span width function")
	}
	if opts.RuptureWidth == nil {
		opts.RuptureWidth = UnlimitedRuptureWidth
	}

	g := &Grouping{
		RuptureGroups:  make([]int, hist.NumRuptures()),
		IntervalGroups: make([]int, hist.NumIntervals()),
	}

	owner := make([]int, hist.NumIntervals())
	for i, iv := range hist.Intervals {
		g.IntervalGroups[i] = -1
		owner[i] = -1
		if !opts.AcceptInterval(i, iv) {
			continue
		}
		g.acceptedIntervals++
		owner[i] = len(g.sources)
		g.sources = append(g.sources, source{
			interval: i,
			key:      0.5 * (iv.Begin + iv.End),
			lo:       iv.Begin,
			hi:       iv.End,
			limit:    opts.SpanWidth(iv.End),
		})
	}

	for r, rup := range hist.Ruptures {
		g.RuptureGroups[r] = -1
		if !opts.AcceptRupture(r, rup) {
			continue
		}
		g.acceptedRuptures++

		limit := math.Min(opts.SpanWidth(rup.T), opts.RuptureWidth(r, rup))
		if rup.Interior && owner[rup.TimeIndex] >= 0 {
			src := &g.sources[owner[rup.TimeIndex]]
			src.ruptures = append(src.ruptures, r)
			src.limit = math.Min(src.limit, limit)
			continue
		}

		g.sources = append(g.sources, source{
			interval: -1,
			ruptures: []int{r},
			key:      rup.T,
			lo:       rup.T,
			hi:       rup.T,
			limit:    limit,
		})
	}

	// lone ruptures sort before an interval with the same key
	sort.SliceStable(g.sources, func(a, b int) bool {
		sa, sb := g.sources[a], g.sources[b]
		if sa.key != sb.key {
			return sa.key < sb.key
		}
		return sa.interval < sb.interval
	})

	switch opts.Direction {
	case Forward:
		g.scan(0, len(g.sources), 1)
	case Reverse:
		g.scan(len(g.sources)-1, -1, -1)
		g.reverse()
	default:
		return nil, fiterr.NewConfigError("unknown scan direction %d", int(opts.Direction))
	}

	if err := g.Verify(); err != nil {
		return nil, err
	}

	log.Debugf("built %d groups from %d ruptures and %d intervals (%s scan)",
		len(g.Groups), g.acceptedRuptures, g.acceptedIntervals, opts.Direction)
	if n := g.NumOversized(); n > 0 {
		log.Warnf("%d sources are wider than their span bound and form groups of their own", n)
	}
	return g, nil
}

func (g *Grouping) scan(from, to, step int) {
	var (
		open  bool
		cur   Group
		bound float64
	)

	closeGroup := func() {
		if open {
			cur.Center = 0.5 * (cur.Begin + cur.End)
			g.Groups = append(g.Groups, cur)
		}
		open = false
	}

	for s := from; s != to; s += step {
		src := g.sources[s]
		if open {
			lo, hi := math.Min(cur.Begin, src.lo), math.Max(cur.End, src.hi)
			nb := math.Min(bound, src.limit)
			if hi-lo <= nb {
				cur.Begin, cur.End, bound = lo, hi, nb
				g.stamp(&cur, src)
				continue
			}
			closeGroup()
		}

		open = true
		cur = Group{Begin: src.lo, End: src.hi, Oversized: src.hi-src.lo > src.limit}
		bound = src.limit
		g.stamp(&cur, src)
	}
	closeGroup()
}

func (g *Grouping) stamp(cur *Group, src source) {
	id := len(g.Groups)
	if src.interval >= 0 {
		g.IntervalGroups[src.interval] = id
		cur.Intervals++
	}
	for _, r := range src.ruptures {
		g.RuptureGroups[r] = id
		cur.Ruptures++
	}
}

// reverse renumbers the groups of a reverse scan in increasing time.
func (g *Grouping) reverse() {
	n := len(g.Groups)
	for a, b := 0, n-1; a < b; a, b = a+1, b-1 {
		g.Groups[a], g.Groups[b] = g.Groups[b], g.Groups[a]
	}
	for r, id := range g.RuptureGroups {
		if id >= 0 {
			g.RuptureGroups[r] = n - 1 - id
		}
	}
	for i, id := range g.IntervalGroups {
		if id >= 0 {
			g.IntervalGroups[i] = n - 1 - id
		}
	}
}

func (g *Grouping) NumGroups() int { return len(g.Groups) }

func (g *Grouping) RuptureGroup(r int) int { return g.RuptureGroups[r] }

func (g *Grouping) IntervalGroup(i int) int { return g.IntervalGroups[i] }

// NumOversized returns the number of groups wider than their bound.
func (g *Grouping) NumOversized() int {
	n := 0
	for _, grp := range g.Groups {
		if grp.Oversized {
			n++
		}
	}
	return n
}

// NumAccepted returns the number of ruptures and intervals taking part.
func (g *Grouping) NumAccepted() (ruptures, intervals int) {
	return g.acceptedRuptures, g.acceptedIntervals
}

// Verify checks the bookkeeping: each accepted source belongs to exactly one
// group, groups follow the scan order without overlapping and the member
// counts add up. Only a flagged single source group may exceed its bound.
func (g *Grouping) Verify() error {
	n := len(g.Groups)
	rups := make([]int, n)
	ints := make([]int, n)
	members := make([]int, n)
	bounds := make([]float64, n)
	for id := range bounds {
		bounds[id] = math.Inf(1)
	}

	last := -1
	for _, src := range g.sources {
		id := -1
		if src.interval >= 0 {
			id = g.IntervalGroups[src.interval]
		} else if len(src.ruptures) > 0 {
			id = g.RuptureGroups[src.ruptures[0]]
		}

		if id < 0 || id >= n {
			return fiterr.NewInvariantError("accepted %s has group %d of %d", src, id, n)
		}
		if id < last || id > last+1 {
			return fiterr.NewInvariantError("%s jumps from group %d to group %d", src, last, id)
		}

		for _, r := range src.ruptures {
			if g.RuptureGroups[r] != id {
				return fiterr.NewInvariantError("rupture %d is in group %d, expected group %d", r, g.RuptureGroups[r], id)
			}
			rups[id]++
		}
		if src.interval >= 0 {
			ints[id]++
		}
		members[id]++
		bounds[id] = math.Min(bounds[id], src.limit)

		grp := g.Groups[id]
		if src.lo < grp.Begin || src.hi > grp.End {
			return fiterr.NewInvariantError("%s [%v, %v] outside group %d [%v, %v]", src, src.lo, src.hi, id, grp.Begin, grp.End)
		}
		last = id
	}

	if last != n-1 {
		return fiterr.NewInvariantError("%d groups but the last source is in group %d", n, last)
	}

	totalRups, totalInts := 0, 0
	for id, grp := range g.Groups {
		if grp.Ruptures != rups[id] || grp.Intervals != ints[id] {
			return fiterr.NewInvariantError("group %d records %d ruptures and %d intervals, found %d and %d",
				id, grp.Ruptures, grp.Intervals, rups[id], ints[id])
		}
		if grp.Ruptures+grp.Intervals == 0 {
			return fiterr.NewInvariantError("group %d is empty", id)
		}
		if over := grp.Width() > bounds[id]; over != grp.Oversized {
			return fiterr.NewInvariantError("group %d width %v against bound %v, oversized flag %v", id, grp.Width(), bounds[id], grp.Oversized)
		}
		if grp.Oversized && members[id] != 1 {
			return fiterr.NewInvariantError("group %d exceeds its bound %v with %d sources", id, bounds[id], members[id])
		}
		if id > 0 {
			prev := g.Groups[id-1]
			if grp.Begin < prev.End {
				return fiterr.NewInvariantError("group %d [%v, %v] overlaps group %d [%v, %v]", id, grp.Begin, grp.End, id-1, prev.Begin, prev.End)
			}
			if grp.Center < prev.Center {
				return fiterr.NewInvariantError("group %d center %v precedes group %d center %v", id, grp.Center, id-1, prev.Center)
			}
		}
		totalRups += grp.Ruptures
		totalInts += grp.Intervals
	}

	if totalRups != g.acceptedRuptures || totalInts != g.acceptedIntervals {
		return fiterr.NewInvariantError("groups hold %d ruptures and %d intervals, accepted %d and %d",
			totalRups, totalInts, g.acceptedRuptures, g.acceptedIntervals)
	}

	// unaccepted sources must carry -1
	stamped := 0
	for _, id := range g.RuptureGroups {
		if id >= 0 {
			stamped++
		}
	}
	for _, id := range g.IntervalGroups {
		if id >= 0 {
			stamped++
		}
	}
	if stamped != g.acceptedRuptures+g.acceptedIntervals {
		return fiterr.NewInvariantError("%d sources stamped with a group, %d accepted", stamped, g.acceptedRuptures+g.acceptedIntervals)
	}
	return nil
}
