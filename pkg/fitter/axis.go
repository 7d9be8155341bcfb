package fitter

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// AxisConfig enumerates one grid axis, either as explicit values or as Num
// points spaced evenly, in log10 when Log is set, between Min and Max.
type AxisConfig struct {
	Min    float64   `json:"min" yaml:"min"`
	Max    float64   `json:"max" yaml:"max"`
	Num    int       `json:"num" yaml:"num"`
	Log    bool      `json:"log,omitempty" yaml:"log,omitempty"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

func (a AxisConfig) Len() int {
	if len(a.Values) > 0 {
		return len(a.Values)
	}
	return a.Num
}

// Lowest returns the smallest value the axis enumerates.
func (a AxisConfig) Lowest() float64 {
	if len(a.Values) > 0 {
		return floats.Min(a.Values)
	}
	return math.Min(a.Min, a.Max)
}

func (a AxisConfig) Validate(name string) error {
	if len(a.Values) > 0 {
		for i := 1; i < len(a.Values); i++ {
			if !(a.Values[i] > a.Values[i-1]) {
				return errors.Errorf("axis %s values must be strictly increasing", name)
			}
		}
		if a.Log && a.Values[0] <= 0 {
			return errors.Errorf("axis %s is logarithmic but has non-positive values", name)
		}
		return nil
	}

	if a.Num <= 0 {
		return errors.Errorf("axis %s needs at least one point, got num %d", name, a.Num)
	}
	if a.Max < a.Min || (a.Num == 1 && a.Max != a.Min) {
		return errors.Errorf("axis %s range [%v, %v] does not fit %d points", name, a.Min, a.Max, a.Num)
	}
	if a.Num > 1 && a.Max == a.Min {
		return errors.Errorf("axis %s has %d points on an empty range", name, a.Num)
	}
	if a.Log && a.Min <= 0 {
		return errors.Errorf("axis %s is logarithmic but min is %v", name, a.Min)
	}
	return nil
}

// Axis is a validated enumeration of parameter values.
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Log    bool      `json:"log,omitempty"`

	// LogWidths holds the natural log of each cell width, measured in log10
	// units for logarithmic axes; single point axes have zero.
	LogWidths []float64 `json:"logWidths"`
}

func NewAxis(name string, cfg AxisConfig) (Axis, error) {
	if err := cfg.Validate(name); err != nil {
		return Axis{}, err
	}

	a := Axis{Name: name, Log: cfg.Log}
	if len(cfg.Values) > 0 {
		a.Values = append([]float64(nil), cfg.Values...)
	} else {
		a.Values = make([]float64, cfg.Num)
		lo, hi := cfg.Min, cfg.Max
		if cfg.Log {
			lo, hi = math.Log10(lo), math.Log10(hi)
		}
		for i := range a.Values {
			v := lo
			if cfg.Num > 1 {
				v = lo + (hi-lo)*float64(i)/float64(cfg.Num-1)
			}
			if cfg.Log {
				v = math.Pow(10, v)
			}
			a.Values[i] = v
		}
		// keep the end points exact
		a.Values[0] = cfg.Min
		a.Values[len(a.Values)-1] = cfg.Max
	}

	a.LogWidths = cellLogWidths(a.scaled())
	return a, nil
}

// SingleAxis is a one point axis.
func SingleAxis(name string, v float64) Axis {
	return Axis{Name: name, Values: []float64{v}, LogWidths: []float64{0}}
}

func (a Axis) Len() int { return len(a.Values) }

func (a Axis) scaled() []float64 {
	if !a.Log {
		return a.Values
	}
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		out[i] = math.Log10(v)
	}
	return out
}

// cellLogWidths splits the axis at the midpoints between values and extends
// the end cells symmetrically.
func cellLogWidths(xs []float64) []float64 {
	n := len(xs)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	for i := range xs {
		var w float64
		switch i {
		case 0:
			w = xs[1] - xs[0]
		case n - 1:
			w = xs[n-1] - xs[n-2]
		default:
			w = 0.5 * (xs[i+1] - xs[i-1])
		}
		out[i] = math.Log(w)
	}
	return out
}
