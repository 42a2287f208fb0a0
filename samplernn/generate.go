package samplernn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/prism-go/samplernn/nn"
	"github.com/prism-go/samplernn/quantize"
)

// GenerateOptions controls one autoregressive synthesis run.
type GenerateOptions struct {
	// NumSamples is the number of samples to produce per batch slot,
	// excluding the warm-up prefix.
	NumSamples int
	// Temperature divides the logits before sampling: below 1 sharpens
	// the distribution, above 1 flattens it. Must be positive.
	Temperature float64
	// Seed optionally warms up the model on a quantized excerpt instead
	// of silence. SeedOffset selects where the excerpt starts; offset
	// plus one big frame must fit inside Seed.
	Seed       []float64
	SeedOffset int
	// Rand is the sampling source. Fixing its seed fixes the output.
	Rand *rand.Rand
	// Progress, when set, is called once per generated sample position.
	Progress func(done, total int)
}

// Generate synthesizes NumSamples amplitudes per batch slot, one
// sample at a time. The coarser tiers are recomputed only at their
// frame boundaries and their conditioning cached for the span in
// between. All slots share weights and state shape but draw
// independently from Rand, so a batch yields distinct variations.
func (m *Model) Generate(opts GenerateOptions) ([][]float64, error) {
	if opts.NumSamples < 1 {
		return nil, fmt.Errorf("%w: num samples %d must be positive", ErrConfig, opts.NumSamples)
	}
	if opts.Temperature <= 0 {
		return nil, fmt.Errorf("%w: temperature %v must be positive", ErrConfig, opts.Temperature)
	}
	if opts.Rand == nil {
		return nil, errors.New("generation needs an explicit random source")
	}

	bfs, fs := m.cfg.BigFrameSize(), m.cfg.FrameSize()
	warmup, err := m.warmup(opts)
	if err != nil {
		return nil, err
	}

	total := bfs + opts.NumSamples
	q := make([][]int, m.batch)
	for j := range q {
		q[j] = make([]int, total)
		copy(q[j], warmup)
	}

	m.state.Reset()
	g := nn.NewGraph(false)
	var bigCond, frameCond []*nn.Mat
	prev := make([]int, m.batch)
	for t := bfs; t < total; t++ {
		if t%bfs == 0 {
			bigCond = m.bigStep(g, m.tierInput(q, t-bfs, bfs))
		}
		if t%fs == 0 {
			frameCond = m.frameStep(g, m.tierInput(q, t-fs, fs), bigCond[(t/fs)%m.ratio])
		}
		for j := range q {
			prev[j] = q[j][t-1]
		}
		logits := m.sampleLogits(g, prev, frameCond[t%fs])
		for j := range q {
			q[j][t] = drawSample(logits, j, opts.Temperature, opts.Rand)
		}
		if opts.Progress != nil {
			opts.Progress(t-bfs+1, opts.NumSamples)
		}
	}

	out := make([][]float64, m.batch)
	for j := range q {
		out[j] = m.Dequantize(q[j][bfs:])
	}
	return out, nil
}

// warmup builds the shared big-frame prefix: the silence level, or a
// quantized slice of the seed excerpt.
func (m *Model) warmup(opts GenerateOptions) ([]int, error) {
	bfs := m.cfg.BigFrameSize()
	if opts.Seed == nil {
		w := make([]int, bfs)
		zero := quantize.Zero(m.cfg.QLevels)
		for i := range w {
			w[i] = zero
		}
		return w, nil
	}
	if opts.SeedOffset < 0 || opts.SeedOffset+bfs > len(opts.Seed) {
		return nil, fmt.Errorf("%w: seed offset %d + big frame size %d exceeds seed length %d",
			ErrConfig, opts.SeedOffset, bfs, len(opts.Seed))
	}
	return m.Quantize(opts.Seed[opts.SeedOffset : opts.SeedOffset+bfs]), nil
}

// drawSample takes one categorical draw for batch column col from
// temperature-scaled logits.
func drawSample(logits *nn.Mat, col int, temperature float64, rng *rand.Rand) int {
	n := logits.N
	max := math.Inf(-1)
	for i := 0; i < n; i++ {
		if v := logits.Get(i, col) / temperature; v > max {
			max = v
		}
	}
	sum := 0.0
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[i] = math.Exp(logits.Get(i, col)/temperature - max)
		sum += weights[i]
	}
	target := rng.Float64() * sum
	cum := 0.0
	for i := 0; i < n; i++ {
		cum += weights[i]
		if cum >= target {
			return i
		}
	}
	return n - 1
}
