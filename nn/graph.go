package nn

import (
	"fmt"
	"math"
)

// Graph records the backward pass of each operation applied through it.
// Run the forward computation through a Graph, then call Backward to
// propagate gradients from outputs to inputs in reverse order. A Graph
// built with needsBackprop=false records nothing and is cheap enough
// for generation's sample-by-sample loop.
type Graph struct {
	needsBackprop bool
	tape          []func()
}

func NewGraph(needsBackprop bool) *Graph {
	return &Graph{needsBackprop: needsBackprop}
}

// Backward replays the tape in reverse, accumulating gradients into the
// Dw buffers of every matrix that took part in the forward pass.
func (g *Graph) Backward() {
	for i := len(g.tape) - 1; i >= 0; i-- {
		g.tape[i]()
	}
}

func (g *Graph) record(f func()) {
	if g.needsBackprop {
		g.tape = append(g.tape, f)
	}
}

func assertShape(ok bool, format string, args ...interface{}) {
	if !ok {
		panic("nn: " + fmt.Sprintf(format, args...))
	}
}

func (g *Graph) applyUnary(m *Mat, fn func(float64) float64, deriv func(x, y float64) float64) *Mat {
	out := NewMat(m.N, m.D)
	for i := range m.W {
		out.W[i] = fn(m.W[i])
	}
	g.record(func() {
		for i := range m.W {
			m.Dw[i] += deriv(m.W[i], out.W[i]) * out.Dw[i]
		}
	})
	return out
}

func (g *Graph) Tanh(m *Mat) *Mat {
	return g.applyUnary(m, math.Tanh, func(x, y float64) float64 { return 1 - y*y })
}

func (g *Graph) Sigmoid(m *Mat) *Mat {
	return g.applyUnary(m,
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(x, y float64) float64 { return y * (1 - y) })
}

func (g *Graph) Relu(m *Mat) *Mat {
	return g.applyUnary(m,
		func(x float64) float64 { return math.Max(0, x) },
		func(x, y float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// Add is element-wise; shapes must match.
func (g *Graph) Add(m1, m2 *Mat) *Mat {
	assertShape(m1.N == m2.N && m1.D == m2.D, "Add shape mismatch %dx%d vs %dx%d", m1.N, m1.D, m2.N, m2.D)
	out := NewMat(m1.N, m1.D)
	for i := range m1.W {
		out.W[i] = m1.W[i] + m2.W[i]
	}
	g.record(func() {
		for i := range m1.W {
			m1.Dw[i] += out.Dw[i]
			m2.Dw[i] += out.Dw[i]
		}
	})
	return out
}

// Mul is matrix multiplication: [N x K] * [K x B] -> [N x B].
func (g *Graph) Mul(m1, m2 *Mat) *Mat {
	assertShape(m1.D == m2.N, "Mul shape mismatch %dx%d vs %dx%d", m1.N, m1.D, m2.N, m2.D)
	n, k, b := m1.N, m1.D, m2.D
	out := NewMat(n, b)
	for i := 0; i < n; i++ {
		for j := 0; j < b; j++ {
			dot := 0.0
			for l := 0; l < k; l++ {
				dot += m1.W[i*k+l] * m2.W[l*b+j]
			}
			out.W[i*b+j] = dot
		}
	}
	g.record(func() {
		for i := 0; i < n; i++ {
			for j := 0; j < b; j++ {
				grad := out.Dw[i*b+j]
				if grad == 0 {
					continue
				}
				for l := 0; l < k; l++ {
					m1.Dw[i*k+l] += m2.W[l*b+j] * grad
					m2.Dw[l*b+j] += m1.W[i*k+l] * grad
				}
			}
		}
	})
	return out
}

// Eltmul is element-wise multiplication; shapes must match.
func (g *Graph) Eltmul(m1, m2 *Mat) *Mat {
	assertShape(m1.N == m2.N && m1.D == m2.D, "Eltmul shape mismatch %dx%d vs %dx%d", m1.N, m1.D, m2.N, m2.D)
	out := NewMat(m1.N, m1.D)
	for i := range m1.W {
		out.W[i] = m1.W[i] * m2.W[i]
	}
	g.record(func() {
		for i := range m1.W {
			m1.Dw[i] += m2.W[i] * out.Dw[i]
			m2.Dw[i] += m1.W[i] * out.Dw[i]
		}
	})
	return out
}

// OneMinus computes 1 - m element-wise.
func (g *Graph) OneMinus(m *Mat) *Mat {
	out := NewMat(m.N, m.D)
	for i := range m.W {
		out.W[i] = 1 - m.W[i]
	}
	g.record(func() {
		for i := range m.W {
			m.Dw[i] -= out.Dw[i]
		}
	})
	return out
}

// AddBroadcastCol adds the column vector bias [N x 1] to every column
// of m [N x B].
func (g *Graph) AddBroadcastCol(m, bias *Mat) *Mat {
	assertShape(m.N == bias.N && bias.D == 1, "AddBroadcastCol shape mismatch %dx%d vs %dx%d", m.N, m.D, bias.N, bias.D)
	n, b := m.N, m.D
	out := NewMat(n, b)
	for j := 0; j < b; j++ {
		for i := 0; i < n; i++ {
			out.W[i*b+j] = m.W[i*b+j] + bias.W[i]
		}
	}
	g.record(func() {
		for j := 0; j < b; j++ {
			for i := 0; i < n; i++ {
				grad := out.Dw[i*b+j]
				m.Dw[i*b+j] += grad
				bias.Dw[i] += grad
			}
		}
	})
	return out
}

// Lookup gathers embedding rows for a batch of integer ids from the
// table [Vocab x Dim], producing [Dim x B] with one column per id.
// Ids outside [0, Vocab) produce a zero column and receive no gradient.
// The ids slice is copied, so callers may reuse it across steps.
func (g *Graph) Lookup(table *Mat, ids []int) *Mat {
	assertShape(len(ids) > 0, "Lookup needs at least one id")
	ids = append([]int(nil), ids...)
	vocab, dim, b := table.N, table.D, len(ids)
	out := NewMat(dim, b)
	for j, id := range ids {
		if id < 0 || id >= vocab {
			continue
		}
		for i := 0; i < dim; i++ {
			out.W[i*b+j] = table.W[id*dim+i]
		}
	}
	g.record(func() {
		for j, id := range ids {
			if id < 0 || id >= vocab {
				continue
			}
			for i := 0; i < dim; i++ {
				table.Dw[id*dim+i] += out.Dw[i*b+j]
			}
		}
	})
	return out
}

// SliceRows views rows [from, to) of m as a new matrix. Gradients flow
// back into the corresponding rows of m.
func (g *Graph) SliceRows(m *Mat, from, to int) *Mat {
	assertShape(0 <= from && from < to && to <= m.N, "SliceRows [%d,%d) out of range for %d rows", from, to, m.N)
	n, b := to-from, m.D
	out := NewMat(n, b)
	copy(out.W, m.W[from*b:to*b])
	g.record(func() {
		for i := range out.Dw {
			m.Dw[from*b+i] += out.Dw[i]
		}
	})
	return out
}

// Softmax computes a column-wise softmax outside any graph. Used for
// the cross-entropy loss (whose gradient is applied analytically) and
// for sampling.
func Softmax(m *Mat) *Mat {
	n, b := m.N, m.D
	out := NewMat(n, b)
	for j := 0; j < b; j++ {
		max := math.Inf(-1)
		for i := 0; i < n; i++ {
			if v := m.Get(i, j); v > max {
				max = v
			}
		}
		sum := 0.0
		for i := 0; i < n; i++ {
			e := math.Exp(m.Get(i, j) - max)
			out.Set(i, j, e)
			sum += e
		}
		inv := 1 / sum
		for i := 0; i < n; i++ {
			out.Set(i, j, out.Get(i, j)*inv)
		}
	}
	return out
}
