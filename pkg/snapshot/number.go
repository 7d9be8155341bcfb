package snapshot

import (
	"bytes"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// number is a float64 that survives JSON with infinities, written as the
// strings "-Inf", "+Inf" and "NaN". Supercritical sub-voxels carry a
// log-likelihood of -Inf.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	switch {
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		switch string(data) {
		case `"-Inf"`:
			*n = number(math.Inf(-1))
		case `"+Inf"`, `"Inf"`:
			*n = number(math.Inf(1))
		case `"NaN"`:
			*n = number(math.NaN())
		default:
			return errors.Errorf("invalid number %s", data)
		}
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.Wrapf(err, "invalid number %s", data)
	}
	*n = number(v)
	return nil
}
