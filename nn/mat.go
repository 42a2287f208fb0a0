// Package nn provides the small neural-network primitive library the
// model tiers are built from: a float64 matrix type with gradient
// storage, a tape-based autograd graph, a minimal GRU cell, and the
// optimizers. Everything runs on a single goroutine; parallelism, if
// any, is an implementation detail of the caller.
package nn

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major matrix of N rows and D columns. W holds the
// values, Dw the accumulated gradients of the same shape. Parameter
// matrices use D as the feature dimension; activation matrices use D as
// the batch dimension (one column per batch item).
type Mat struct {
	N  int
	D  int
	W  []float64
	Dw []float64
}

// NewMat creates a zero-filled matrix.
func NewMat(n, d int) *Mat {
	if n < 0 || d < 0 {
		panic(fmt.Sprintf("nn: negative matrix dimensions %dx%d", n, d))
	}
	return &Mat{N: n, D: d, W: make([]float64, n*d), Dw: make([]float64, n*d)}
}

// NewRandMat creates a matrix with Gaussian entries of the given mean
// and standard deviation, drawn from rng.
func NewRandMat(n, d int, mu, stddev float64, rng *rand.Rand) *Mat {
	m := NewMat(n, d)
	for i := range m.W {
		m.W[i] = rng.NormFloat64()*stddev + mu
	}
	return m
}

// Get returns the value at (row, col).
func (m *Mat) Get(row, col int) float64 {
	return m.W[row*m.D+col]
}

// Set stores v at (row, col).
func (m *Mat) Set(row, col int, v float64) {
	m.W[row*m.D+col] = v
}

// ZeroGrads clears the gradient buffer.
func (m *Mat) ZeroGrads() {
	for i := range m.Dw {
		m.Dw[i] = 0
	}
}

// Clone copies the values (not the gradients) into a fresh matrix.
// Cloning an activation detaches it from the graph that produced it.
func (m *Mat) Clone() *Mat {
	out := NewMat(m.N, m.D)
	copy(out.W, m.W)
	return out
}

// ZeroColumn clears column j of both values and gradients.
func (m *Mat) ZeroColumn(j int) {
	for i := 0; i < m.N; i++ {
		m.W[i*m.D+j] = 0
		m.Dw[i*m.D+j] = 0
	}
}
