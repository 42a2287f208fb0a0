// Package quantize converts audio amplitudes in [-1, 1] to and from
// discrete integer bins. Two quantization laws are supported: uniform
// (linear) bucketing and mu-law companding, which allocates bins
// logarithmically so that quiet material keeps more resolution.
package quantize

import (
	"fmt"
	"math"
)

// Scheme selects the quantization law.
type Scheme int

const (
	Linear Scheme = iota
	MuLaw
)

// ParseScheme maps the config strings "linear" and "mu-law" to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "linear":
		return Linear, nil
	case "mu-law":
		return MuLaw, nil
	}
	return 0, fmt.Errorf("unknown quantization type %q (want \"linear\" or \"mu-law\")", s)
}

func (s Scheme) String() string {
	if s == MuLaw {
		return "mu-law"
	}
	return "linear"
}

// Zero returns the bin silence maps to.
func Zero(levels int) int {
	return levels / 2
}

// compand applies the mu-law transform sign(x) * ln(1+mu|x|) / ln(1+mu)
// with mu = levels-1, mapping [-1, 1] onto [-1, 1].
func compand(x float64, levels int) float64 {
	mu := float64(levels - 1)
	return math.Copysign(math.Log1p(mu*math.Abs(x))/math.Log1p(mu), x)
}

// expand is the inverse of compand: sign(y) * ((1+mu)^|y| - 1) / mu.
func expand(y float64, levels int) float64 {
	mu := float64(levels - 1)
	return math.Copysign((math.Pow(1+mu, math.Abs(y))-1)/mu, y)
}

func quantizeOne(x float64, scheme Scheme, levels int) int {
	x = math.Max(-1, math.Min(1, x))
	if scheme == MuLaw {
		// Scale the companded value by mu so both extremes land exactly
		// on the outermost bins.
		c := compand(x, levels)
		return int(math.Round((c + 1) / 2 * float64(levels-1)))
	}
	q := int(math.Round((x + 1) * float64(levels) / 2))
	if q < 0 {
		q = 0
	}
	if q > levels-1 {
		q = levels - 1
	}
	return q
}

func dequantizeOne(q int, scheme Scheme, levels int) float64 {
	// The silence bin decodes to exactly 0.
	if q == Zero(levels) {
		return 0
	}
	if scheme == MuLaw {
		return expand(2*float64(q)/float64(levels-1)-1, levels)
	}
	// The clamp bins absorb the clipped tails, so they decode at their
	// own centers rather than on the uniform grid.
	switch q {
	case 0:
		return -1 + 0.5/float64(levels)
	case levels - 1:
		return 1 - 1.5/float64(levels)
	}
	return 2*float64(q)/float64(levels) - 1
}

func checkLevels(levels int) {
	if levels < 2 {
		panic(fmt.Sprintf("quantize: levels must be >= 2, got %d", levels))
	}
}

// Quantize maps amplitudes in [-1, 1] to bins in [0, levels). Out-of-range
// amplitudes are clipped first. Silence (0) maps to levels/2 exactly.
func Quantize(samples []float64, scheme Scheme, levels int) []int {
	checkLevels(levels)
	out := make([]int, len(samples))
	for i, x := range samples {
		out[i] = quantizeOne(x, scheme, levels)
	}
	return out
}

// Dequantize is the inverse mapping. The silence bin decodes to exactly
// 0 and full scale decodes to exactly +/-1 under mu-law; every other bin
// reconstructs its amplitude within 1/levels (linear, up to 1.5/levels
// at the top clamp bin) or within the companded bin width (mu-law).
func Dequantize(q []int, scheme Scheme, levels int) []float64 {
	checkLevels(levels)
	out := make([]float64, len(q))
	for i, v := range q {
		out[i] = dequantizeOne(v, scheme, levels)
	}
	return out
}

// OneHot expands quantized levels into indicator rows: row i has a single
// 1.0 at column q[i]. Levels outside [0, levels) leave an all-zero row.
func OneHot(q []int, levels int) [][]float64 {
	checkLevels(levels)
	out := make([][]float64, len(q))
	for i, v := range q {
		row := make([]float64, levels)
		if v >= 0 && v < levels {
			row[v] = 1
		}
		out[i] = row
	}
	return out
}
