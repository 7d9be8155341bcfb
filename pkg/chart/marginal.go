package chart

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/quakelab/etasfit/pkg/posterior"
)

// DrawMarginal plots the relative density of a marginal posterior. Log-scaled
// parameters are drawn against their log10.
func DrawMarginal(m *posterior.Marginal) (*chart.Chart, error) {
	if len(m.Values) < 2 {
		return nil, errors.Errorf("marginal over %s has %d values, at least 2 are needed", m.Param, len(m.Values))
	}

	xName := m.Param.String()
	xs := make([]float64, len(m.Values))
	for i, v := range m.Values {
		xs[i] = v
		if m.Param.LogScale() {
			xs[i] = math.Log10(v)
		}
	}
	if m.Param.LogScale() {
		xName = "log10 " + xName
	}

	ys := m.Density()
	best := 0
	for i := range ys {
		if ys[i] > ys[best] {
			best = i
		}
	}

	canvas := &chart.Chart{
		Title: fmt.Sprintf("marginal posterior of %s (%s)", m.Param, m.Regime),
		XAxis: chart.XAxis{
			Name:           xName,
			ValueFormatter: floatFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "relative density",
			ValueFormatter: floatFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    m.Param.String(),
				XValues: xs,
				YValues: ys,
			},
			chart.AnnotationSeries{
				Annotations: []chart.Value2{
					{XValue: xs[best], YValue: ys[best], Label: fmt.Sprintf("%s = %.4g", m.Param, m.Values[best])},
				},
			},
		},
	}
	return canvas, nil
}

func floatFormatter(v interface{}) string {
	if vf, isFloat := v.(float64); isFloat {
		return fmt.Sprintf("%.4f", vf)
	}
	return ""
}

// RenderMarginal writes the marginal plot as PNG.
func RenderMarginal(w io.Writer, m *posterior.Marginal) error {
	canvas, err := DrawMarginal(m)
	if err != nil {
		return err
	}
	if err := canvas.Render(chart.PNG, w); err != nil {
		return errors.Wrapf(err, "cannot render marginal of %s", m.Param)
	}
	return nil
}

func RenderMarginalFile(filename string, m *posterior.Marginal) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", filename)
	}
	defer f.Close()

	return RenderMarginal(f, m)
}
