package grouping

import (
	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/history"
)

// Config is the serializable form of Options.
type Config struct {
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`

	// MinMag drops ruptures below this magnitude; zero keeps all.
	MinMag float64 `json:"minMag,omitempty" yaml:"minMag,omitempty"`

	// SpanRatio is the group width allowed per unit of age.
	SpanRatio float64 `json:"spanRatio" yaml:"spanRatio"`
	MinSpan   float64 `json:"minSpan" yaml:"minSpan"`
	MaxSpan   float64 `json:"maxSpan" yaml:"maxSpan"`

	// rupture width taper, disabled when MagHigh <= MagLow
	MagLow    float64 `json:"magLow,omitempty" yaml:"magLow,omitempty"`
	MagHigh   float64 `json:"magHigh,omitempty" yaml:"magHigh,omitempty"`
	HighRatio float64 `json:"highRatio,omitempty" yaml:"highRatio,omitempty"`
	LowRatio  float64 `json:"lowRatio,omitempty" yaml:"lowRatio,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Direction: Forward,
		SpanRatio: 0.1,
		MinSpan:   0.01,
		MaxSpan:   30.0,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !(c.SpanRatio > 0) {
		return fiterr.NewConfigError("grouping spanRatio must be positive, got %v", c.SpanRatio)
	}
	if c.MinSpan < 0 || c.MaxSpan < c.MinSpan {
		return fiterr.NewConfigError("grouping span range [%v, %v] is invalid", c.MinSpan, c.MaxSpan)
	}
	if c.MagHigh > c.MagLow && (c.HighRatio < 0 || c.LowRatio < 0) {
		return fiterr.NewConfigError("grouping taper ratios must not be negative")
	}
	return nil
}

// Options turns the config into grouping functions measured against the end
// of the history.
func (c Config) Options(hist *history.History) Options {
	tRef := hist.End()
	opts := Options{
		AcceptInterval: AcceptAllIntervals,
		SpanWidth:      RelativeSpanWidth(tRef, c.SpanRatio, c.MinSpan, c.MaxSpan),
		RuptureWidth:   UnlimitedRuptureWidth,
		Direction:      c.Direction,
	}

	if c.MinMag > 0 {
		opts.AcceptRupture = AcceptRupturesAbove(c.MinMag)
	} else {
		opts.AcceptRupture = AcceptAllRuptures
	}

	if c.MagHigh > c.MagLow {
		opts.RuptureWidth = TaperedRuptureWidth(tRef, c.MagLow, c.MagHigh, c.HighRatio, c.LowRatio, c.MinSpan)
	}
	return opts
}
