// Package tune runs small hyperparameter searches over short training
// trials. A Strategy proposes parameter sets one at a time from the
// trial history; Run evaluates each with a caller-supplied objective
// and keeps the best. Scores are losses: lower is better.
package tune

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Params is one candidate hyperparameter assignment.
type Params map[string]float64

// Trial is one evaluated candidate. A failed trial keeps its error and
// is excluded from best-trial selection.
type Trial struct {
	Params Params
	Score  float64
	Err    error
}

// Strategy proposes the next candidate given all finished trials, or
// ok=false when the search is exhausted.
type Strategy interface {
	Next(history []Trial) (Params, bool)
}

// Objective evaluates one candidate, typically by running a short
// training session and returning its final loss.
type Objective func(Params) (float64, error)

// Run drives a strategy to exhaustion and returns the lowest-scoring
// successful trial. Individual trial failures are recorded and skipped;
// it is an error only if every trial fails or none run.
func Run(s Strategy, obj Objective) (Trial, []Trial, error) {
	var history []Trial
	best := Trial{Score: math.Inf(1)}
	found := false
	for {
		params, ok := s.Next(history)
		if !ok {
			break
		}
		score, err := obj(params)
		t := Trial{Params: params, Score: score, Err: err}
		history = append(history, t)
		if err != nil {
			continue
		}
		if !found || t.Score < best.Score {
			best = t
			found = true
		}
	}
	if len(history) == 0 {
		return Trial{}, nil, errors.New("strategy proposed no trials")
	}
	if !found {
		return Trial{}, history, fmt.Errorf("all %d trials failed; last error: %w",
			len(history), history[len(history)-1].Err)
	}
	return best, history, nil
}

// Range bounds one parameter for random search. Log-scale ranges draw
// the exponent uniformly, which suits learning rates.
type Range struct {
	Min, Max float64
	Log      bool
}

// RandomSearch draws each parameter independently from its range for a
// fixed number of trials. The same seed reproduces the same sequence.
type RandomSearch struct {
	space  map[string]Range
	trials int
	rng    *rand.Rand
}

func NewRandomSearch(space map[string]Range, trials int, seed int64) *RandomSearch {
	return &RandomSearch{space: space, trials: trials, rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSearch) Next(history []Trial) (Params, bool) {
	if len(history) >= s.trials {
		return nil, false
	}
	p := Params{}
	for _, name := range sortedNames(s.space) {
		r := s.space[name]
		u := s.rng.Float64()
		if r.Log {
			p[name] = math.Exp(math.Log(r.Min) + u*(math.Log(r.Max)-math.Log(r.Min)))
		} else {
			p[name] = r.Min + u*(r.Max-r.Min)
		}
	}
	return p, true
}

// GridSearch enumerates the full cross product of the value lists in a
// fixed order, one assignment per trial.
type GridSearch struct {
	names  []string
	values [][]float64
	total  int
}

func NewGridSearch(space map[string][]float64) *GridSearch {
	g := &GridSearch{total: 1}
	for _, name := range sortedGridNames(space) {
		g.names = append(g.names, name)
		g.values = append(g.values, space[name])
		g.total *= len(space[name])
	}
	if len(g.names) == 0 {
		g.total = 0
	}
	return g
}

func (g *GridSearch) Next(history []Trial) (Params, bool) {
	idx := len(history)
	if idx >= g.total {
		return nil, false
	}
	p := Params{}
	for i, name := range g.names {
		p[name] = g.values[i][idx%len(g.values[i])]
		idx /= len(g.values[i])
	}
	return p, true
}

func sortedNames(space map[string]Range) []string {
	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedGridNames(space map[string][]float64) []string {
	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
