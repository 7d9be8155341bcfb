package etas

import (
	"math"
)

const Ln10 = math.Ln10

// CalcW returns (exp(x*y) - 1) / x. The x == 0 limit is substituted directly,
// which keeps the magnitude integrals exact when alpha == b.
func CalcW(x, y float64) float64 {
	if x == 0 {
		return y
	}
	return math.Expm1(x*y) / x
}

// 10-point Gauss-Legendre rule on [-1, 1]
var (
	glNodes = [...]float64{
		-0.9739065285171717, -0.8650633666889845, -0.6794095682990244, -0.4333953941292472, -0.1488743389816312,
		0.1488743389816312, 0.4333953941292472, 0.6794095682990244, 0.8650633666889845, 0.9739065285171717,
	}
	glWeights = [...]float64{
		0.0666713443086881, 0.1494513491505806, 0.2190863625159820, 0.2692667193099963, 0.2955242247147529,
		0.2955242247147529, 0.2692667193099963, 0.2190863625159820, 0.1494513491505806, 0.0666713443086881,
	}
)

func gaussLegendre(a, b float64, f func(x float64) float64) float64 {
	half := 0.5 * (b - a)
	mid := 0.5 * (b + a)
	sum := 0.0
	for i, x := range glNodes {
		sum += glWeights[i] * f(mid+half*x)
	}
	return half * sum
}

// OmoriRate is the decay kernel (t + c)^-p.
func OmoriRate(p, c, t float64) float64 {
	return math.Pow(t+c, -p)
}

// OmoriIntegral returns the integral of (t + c)^-p for t in [a, b], 0 <= a <= b.
// The value is continuous in p, including across p == 1.
func OmoriIntegral(p, c, a, b float64) float64 {
	if b <= a {
		return 0
	}

	x := 1.0 - p
	return math.Exp(x*math.Log(a+c)) * CalcW(x, math.Log1p((b-a)/(a+c)))
}

// OmoriSelfIntegral returns H(w), the integral over t in [0, w] of the
// integral of (t - u + c)^-p for u in [0, t]; that is the number of events an
// extended source of unit density produces inside its own span.
func OmoriSelfIntegral(p, c, w float64) float64 {
	if w <= 0 {
		return 0
	}

	// closed form cancels badly for short spans
	if w < c {
		return gaussLegendre(0, w, func(r float64) float64 {
			return (w - r) * math.Pow(r+c, -p)
		})
	}

	l := math.Log1p(w / c)
	return (w+c)*math.Pow(c, 1-p)*CalcW(1-p, l) - math.Pow(c, 2-p)*CalcW(2-p, l)
}

// OmoriDoubleIntegral returns the integral over t in [s1, e1] of the integral
// of (t - u + c)^-p for u in [s0, e0], where the source span [s0, e0] ends no
// later than the target span [s1, e1] begins.
func OmoriDoubleIntegral(p, c, s0, e0, s1, e1 float64) float64 {
	gap := s1 - e0
	width := e1 - s1

	// far sources: the integrand is smooth over the target span
	if gap >= width {
		return gaussLegendre(s1, e1, func(t float64) float64 {
			return OmoriIntegral(p, c, t-e0, t-s0)
		})
	}

	return OmoriSelfIntegral(p, c, e1-s0) - OmoriSelfIntegral(p, c, s1-s0) -
		OmoriSelfIntegral(p, c, e1-e0) + OmoriSelfIntegral(p, c, gap)
}
