package nn

import (
	"fmt"
	"math"
	"sort"
)

// Optimizer applies one gradient update to every parameter and then
// zeros the gradients. State is exported so checkpoints can resume
// training with intact moment estimates.
type Optimizer interface {
	Step(params map[string]*Mat)
	State() SolverState
	LoadState(state SolverState) error
}

// SolverState is the serializable snapshot of an optimizer.
type SolverState struct {
	Kind     string
	LR       float64
	Momentum float64
	T        int
	M        map[string][]float64
	V        map[string][]float64
}

// OptimizerKinds lists the accepted --optimizer values.
var OptimizerKinds = []string{"adam", "rmsprop", "sgd"}

// NewOptimizer builds an optimizer by name: "adam", "rmsprop" or "sgd"
// (stochastic gradient descent with momentum).
func NewOptimizer(kind string, lr, momentum float64) (Optimizer, error) {
	switch kind {
	case "adam":
		return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8,
			m: map[string][]float64{}, v: map[string][]float64{}}, nil
	case "rmsprop":
		return &rmsprop{lr: lr, rho: 0.9, eps: 1e-8, momentum: momentum,
			m: map[string][]float64{}, v: map[string][]float64{}}, nil
	case "sgd":
		return &sgd{lr: lr, momentum: momentum, m: map[string][]float64{}}, nil
	}
	return nil, fmt.Errorf("unknown optimizer %q (want one of %v)", kind, OptimizerKinds)
}

// LoadOptimizer reconstructs an optimizer from checkpoint state.
func LoadOptimizer(state SolverState) (Optimizer, error) {
	opt, err := NewOptimizer(state.Kind, state.LR, state.Momentum)
	if err != nil {
		return nil, err
	}
	if err := opt.LoadState(state); err != nil {
		return nil, err
	}
	return opt, nil
}

// SortedKeys returns the parameter names in deterministic order.
func SortedKeys(params map[string]*Mat) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClipByGlobalNorm rescales all gradients so their joint L2 norm does
// not exceed max, and returns the pre-clip norm. Non-finite gradient
// entries are zeroed.
func ClipByGlobalNorm(params map[string]*Mat, max float64) float64 {
	normSq := 0.0
	for _, p := range params {
		for i, dw := range p.Dw {
			if math.IsNaN(dw) || math.IsInf(dw, 0) {
				p.Dw[i] = 0
				continue
			}
			normSq += dw * dw
		}
	}
	norm := math.Sqrt(normSq)
	if norm > max {
		scale := max / (norm + 1e-7)
		for _, p := range params {
			for i := range p.Dw {
				p.Dw[i] *= scale
			}
		}
	}
	return norm
}

func moments(store map[string][]float64, key string, size int) []float64 {
	if m, ok := store[key]; ok && len(m) == size {
		return m
	}
	store[key] = make([]float64, size)
	return store[key]
}

type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  map[string][]float64
}

func (s *adam) Step(params map[string]*Mat) {
	s.t++
	// Bias correction folded into the step size.
	lrT := s.lr * math.Sqrt(1-math.Pow(s.beta2, float64(s.t))) / (1 - math.Pow(s.beta1, float64(s.t)))
	for _, k := range SortedKeys(params) {
		p := params[k]
		m := moments(s.m, k, len(p.W))
		v := moments(s.v, k, len(p.W))
		for i := range p.W {
			grad := p.Dw[i]
			m[i] = s.beta1*m[i] + (1-s.beta1)*grad
			v[i] = s.beta2*v[i] + (1-s.beta2)*grad*grad
			p.W[i] -= lrT * m[i] / (math.Sqrt(v[i]) + s.eps)
		}
		p.ZeroGrads()
	}
}

func (s *adam) State() SolverState {
	return SolverState{Kind: "adam", LR: s.lr, T: s.t, M: s.m, V: s.v}
}

func (s *adam) LoadState(state SolverState) error {
	if state.Kind != "adam" {
		return fmt.Errorf("optimizer state is %q, not adam", state.Kind)
	}
	s.lr, s.t = state.LR, state.T
	if state.M != nil {
		s.m = state.M
	}
	if state.V != nil {
		s.v = state.V
	}
	return nil
}

type rmsprop struct {
	lr, rho, eps, momentum float64
	t                      int
	m, v                   map[string][]float64 // m: momentum buffer, v: squared-gradient average
}

func (s *rmsprop) Step(params map[string]*Mat) {
	s.t++
	for _, k := range SortedKeys(params) {
		p := params[k]
		m := moments(s.m, k, len(p.W))
		v := moments(s.v, k, len(p.W))
		for i := range p.W {
			grad := p.Dw[i]
			v[i] = s.rho*v[i] + (1-s.rho)*grad*grad
			update := s.lr * grad / (math.Sqrt(v[i]) + s.eps)
			if s.momentum > 0 {
				m[i] = s.momentum*m[i] + update
				update = m[i]
			}
			p.W[i] -= update
		}
		p.ZeroGrads()
	}
}

func (s *rmsprop) State() SolverState {
	return SolverState{Kind: "rmsprop", LR: s.lr, Momentum: s.momentum, T: s.t, M: s.m, V: s.v}
}

func (s *rmsprop) LoadState(state SolverState) error {
	if state.Kind != "rmsprop" {
		return fmt.Errorf("optimizer state is %q, not rmsprop", state.Kind)
	}
	s.lr, s.momentum, s.t = state.LR, state.Momentum, state.T
	if state.M != nil {
		s.m = state.M
	}
	if state.V != nil {
		s.v = state.V
	}
	return nil
}

type sgd struct {
	lr, momentum float64
	t            int
	m            map[string][]float64
}

func (s *sgd) Step(params map[string]*Mat) {
	s.t++
	for _, k := range SortedKeys(params) {
		p := params[k]
		m := moments(s.m, k, len(p.W))
		for i := range p.W {
			m[i] = s.momentum*m[i] + p.Dw[i]
			p.W[i] -= s.lr * m[i]
		}
		p.ZeroGrads()
	}
}

func (s *sgd) State() SolverState {
	return SolverState{Kind: "sgd", LR: s.lr, Momentum: s.momentum, T: s.t, M: s.m}
}

func (s *sgd) LoadState(state SolverState) error {
	if state.Kind != "sgd" {
		return fmt.Errorf("optimizer state is %q, not sgd", state.Kind)
	}
	s.lr, s.momentum, s.t = state.LR, state.Momentum, state.T
	if state.M != nil {
		s.m = state.M
	}
	return nil
}
