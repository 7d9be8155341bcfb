package style

import (
	"math"
	"strconv"

	"github.com/fatih/color"
)

var (
	HighDensityColor = color.New(color.FgHiGreen)
	LowDensityColor  = color.New(color.FgYellow)
	EmptyColor       = color.New(color.FgHiBlack)
)

// DefaultDensityLevelResolution is the log-density drop per marker level.
var DefaultDensityLevelResolution = 2.0

const densityMarker = "█"

// LogDensityString formats a log-density relative to the maximum.
func LogDensityString(ld float64) string {
	switch {
	case math.IsInf(ld, -1):
		return "-Inf"
	case ld == 0:
		return "0"
	}
	return strconv.FormatFloat(ld, 'f', 3, 64)
}

// LogDensityColor picks the color of a relative log-density.
func LogDensityColor(ld, resolution float64) *color.Color {
	if math.IsInf(ld, -1) || math.IsNaN(ld) {
		return EmptyColor
	}
	if ld > -resolution {
		return HighDensityColor
	}
	return LowDensityColor
}

// DensityBar draws one marker per resolution step above the floor, so the
// maximum gets the longest bar.
func DensityBar(ld, resolution float64, width int) (out string) {
	if math.IsInf(ld, -1) || math.IsNaN(ld) || resolution <= 0 {
		return out
	}

	level := width - int(-ld/resolution)
	for i := 0; i < level; i++ {
		out += densityMarker
	}
	return out
}
