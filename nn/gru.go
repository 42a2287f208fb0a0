package nn

import (
	"fmt"
	"math/rand"
)

// GRU is a stack of minimal gated recurrent cells. Each layer keeps an
// update gate and a candidate state:
//
//	z = sigmoid(Wz*x + bz)
//	c = tanh(Wh*x + Uh*h + bh)
//	h' = (1-z)*h + z*c
//
// The weights live in the shared parameter map under keys derived from
// the prefix, so one optimizer and one checkpoint cover every tier.
// Hidden state is owned by the caller as one [dim x batch] Mat per
// layer; the cell never resets or stores it.
type GRU struct {
	prefix   string
	inputDim int
	dim      int
	layers   int
	params   map[string]*Mat
}

// NewGRU registers weights for a GRU stack into params under the given
// key prefix and returns the cell. Loading a checkpoint replaces the
// matrices in params; the cell always reads them by key.
func NewGRU(params map[string]*Mat, prefix string, inputDim, dim, layers int, rng *rand.Rand) *GRU {
	c := &GRU{prefix: prefix, inputDim: inputDim, dim: dim, layers: layers, params: params}
	for l := 0; l < layers; l++ {
		in := inputDim
		if l > 0 {
			in = dim
		}
		params[c.key(l, "Wz")] = NewRandMat(dim, in, 0, InitStddev, rng)
		params[c.key(l, "bz")] = NewMat(dim, 1)
		params[c.key(l, "Wh")] = NewRandMat(dim, in, 0, InitStddev, rng)
		params[c.key(l, "Uh")] = NewRandMat(dim, dim, 0, InitStddev, rng)
		params[c.key(l, "bh")] = NewMat(dim, 1)
	}
	return c
}

func (c *GRU) key(layer int, name string) string {
	return fmt.Sprintf("%s.l%d.%s", c.prefix, layer, name)
}

// NewState allocates a zero hidden state for the given batch size.
func (c *GRU) NewState(batch int) []*Mat {
	state := make([]*Mat, c.layers)
	for l := range state {
		state[l] = NewMat(c.dim, batch)
	}
	return state
}

// Step advances the stack one timestep. x is [inputDim x batch], state
// holds one [dim x batch] Mat per layer. It returns the new per-layer
// states; the last entry is the stack's output.
func (c *GRU) Step(g *Graph, x *Mat, state []*Mat) []*Mat {
	if len(state) != c.layers {
		panic(fmt.Sprintf("nn: GRU %s given %d state layers, want %d", c.prefix, len(state), c.layers))
	}
	next := make([]*Mat, c.layers)
	in := x
	for l := 0; l < c.layers; l++ {
		h := state[l]
		z := g.Sigmoid(g.AddBroadcastCol(g.Mul(c.params[c.key(l, "Wz")], in), c.params[c.key(l, "bz")]))
		cand := g.Tanh(g.AddBroadcastCol(
			g.Add(g.Mul(c.params[c.key(l, "Wh")], in), g.Mul(c.params[c.key(l, "Uh")], h)),
			c.params[c.key(l, "bh")]))
		hNew := g.Add(g.Eltmul(g.OneMinus(z), h), g.Eltmul(z, cand))
		next[l] = hNew
		in = hNew
	}
	return next
}

// InitStddev is the weight initialization scale shared by all tiers.
const InitStddev = 0.08
