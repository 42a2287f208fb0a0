// Package samplernn implements a hierarchical autoregressive model for
// raw audio. Three tiers run at different temporal resolutions: a
// big-frame GRU that reads coarse spans of the waveform, a frame GRU
// conditioned on it, and a per-sample MLP that turns the frame tier's
// conditioning plus the previous sample into a distribution over
// quantization levels. Training is teacher-forced over fixed chunks
// with recurrent state carried across chunks of the same file;
// generation is strictly sequential, recomputing the coarser tiers
// only at their frame boundaries.
package samplernn

import (
	"fmt"
	"math/rand"

	"github.com/prism-go/samplernn/nn"
	"github.com/prism-go/samplernn/quantize"
)

// RecurrentState holds the per-tier hidden state: one [dim x batch]
// matrix per GRU layer. It is owned by the model, mutated by each
// forward step, and reset explicitly at file starts and at the
// beginning of a generation run.
type RecurrentState struct {
	Big   []*nn.Mat
	Frame []*nn.Mat
}

// Reset zeroes every slot of every tier.
func (s *RecurrentState) Reset() {
	for _, m := range s.Big {
		for i := range m.W {
			m.W[i] = 0
		}
		m.ZeroGrads()
	}
	for _, m := range s.Frame {
		for i := range m.W {
			m.W[i] = 0
		}
		m.ZeroGrads()
	}
}

// ResetSlot zeroes one batch slot across both tiers, leaving the
// others' carried context intact.
func (s *RecurrentState) ResetSlot(j int) {
	for _, m := range s.Big {
		m.ZeroColumn(j)
	}
	for _, m := range s.Frame {
		m.ZeroColumn(j)
	}
}

// Detach copies the state values into fresh matrices so the next chunk
// does not backpropagate into the previous chunk's graph.
func (s *RecurrentState) Detach() {
	for l, m := range s.Big {
		s.Big[l] = m.Clone()
	}
	for l, m := range s.Frame {
		s.Frame[l] = m.Clone()
	}
}

// Model is one SampleRNN instance with a fixed batch size. The batch
// size is the number of slots trained in lockstep, or the number of
// sequences generated in one pass.
type Model struct {
	cfg    Config
	scheme quantize.Scheme
	batch  int
	ratio  int // big frame size / frame size

	params   map[string]*nn.Mat
	bigRNN   *nn.GRU
	frameRNN *nn.GRU
	state    *RecurrentState
}

// NewModel validates the config and initializes all three tiers'
// weights from rng. The same rng seed yields the same initial weights.
func NewModel(cfg Config, batch int, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if batch < 1 {
		return nil, fmt.Errorf("%w: batch size %d must be positive", ErrConfig, batch)
	}
	scheme, err := quantize.ParseScheme(cfg.QType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	m := &Model{
		cfg:    cfg,
		scheme: scheme,
		batch:  batch,
		ratio:  cfg.BigFrameSize() / cfg.FrameSize(),
		params: map[string]*nn.Mat{},
	}
	dim := cfg.Dim

	m.params["big.Wx"] = nn.NewRandMat(dim, cfg.BigFrameSize(), 0, nn.InitStddev, rng)
	m.params["big.bx"] = nn.NewMat(dim, 1)
	m.bigRNN = nn.NewGRU(m.params, "big", dim, dim, cfg.NumLayers, rng)
	m.params["big.Wup"] = nn.NewRandMat(m.ratio*dim, dim, 0, nn.InitStddev, rng)
	m.params["big.bup"] = nn.NewMat(m.ratio*dim, 1)

	m.params["frm.Wx"] = nn.NewRandMat(dim, cfg.FrameSize(), 0, nn.InitStddev, rng)
	m.params["frm.bx"] = nn.NewMat(dim, 1)
	m.frameRNN = nn.NewGRU(m.params, "frm", dim, dim, cfg.NumLayers, rng)
	m.params["frm.Wup"] = nn.NewRandMat(cfg.FrameSize()*dim, dim, 0, nn.InitStddev, rng)
	m.params["frm.bup"] = nn.NewMat(cfg.FrameSize()*dim, 1)

	m.params["smp.emb"] = nn.NewRandMat(cfg.QLevels, cfg.EmbSize, 0, nn.InitStddev, rng)
	m.params["smp.We"] = nn.NewRandMat(dim, cfg.EmbSize, 0, nn.InitStddev, rng)
	m.params["smp.Wc"] = nn.NewRandMat(dim, dim, 0, nn.InitStddev, rng)
	m.params["smp.b1"] = nn.NewMat(dim, 1)
	m.params["smp.Wo"] = nn.NewRandMat(cfg.QLevels, dim, 0, nn.InitStddev, rng)
	m.params["smp.bo"] = nn.NewMat(cfg.QLevels, 1)

	m.state = &RecurrentState{
		Big:   m.bigRNN.NewState(batch),
		Frame: m.frameRNN.NewState(batch),
	}
	return m, nil
}

// Config returns the architecture the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Scheme returns the quantization law in effect.
func (m *Model) Scheme() quantize.Scheme { return m.scheme }

// BatchSize returns the number of batch slots.
func (m *Model) BatchSize() int { return m.batch }

// Params exposes the parameter map for the optimizer and checkpoints.
func (m *Model) Params() map[string]*nn.Mat { return m.params }

// State exposes the recurrent state for lifecycle management.
func (m *Model) State() *RecurrentState { return m.state }

// Quantize encodes one slot's amplitudes with the model's codec.
func (m *Model) Quantize(samples []float64) []int {
	return quantize.Quantize(samples, m.scheme, m.cfg.QLevels)
}

// Dequantize decodes generated levels back to amplitudes.
func (m *Model) Dequantize(q []int) []float64 {
	return quantize.Dequantize(q, m.scheme, m.cfg.QLevels)
}

// tierInput builds the [size x batch] matrix of float-cast samples the
// recurrent tiers read: quantized levels rescaled to [-1, 1] so both
// codecs feed the GRUs the same range.
func (m *Model) tierInput(q [][]int, start, size int) *nn.Mat {
	x := nn.NewMat(size, len(q))
	half := float64(m.cfg.QLevels) / 2
	for j, slot := range q {
		for i := 0; i < size; i++ {
			x.Set(i, j, float64(slot[start+i])/half-1)
		}
	}
	return x
}

// bigStep advances the big-frame tier on one big frame of input and
// returns its conditioning vectors, one [dim x batch] matrix per
// enclosed frame-sized span.
func (m *Model) bigStep(g *nn.Graph, x *nn.Mat) []*nn.Mat {
	proj := g.AddBroadcastCol(g.Mul(m.params["big.Wx"], x), m.params["big.bx"])
	m.state.Big = m.bigRNN.Step(g, proj, m.state.Big)
	out := m.state.Big[len(m.state.Big)-1]
	up := g.AddBroadcastCol(g.Mul(m.params["big.Wup"], out), m.params["big.bup"])

	dim := m.cfg.Dim
	cond := make([]*nn.Mat, m.ratio)
	for k := range cond {
		cond[k] = g.SliceRows(up, k*dim, (k+1)*dim)
	}
	return cond
}

// frameStep advances the frame tier on one frame of input plus the
// enclosing big-frame conditioning, returning one conditioning vector
// per sample position in the frame.
func (m *Model) frameStep(g *nn.Graph, x, bigCond *nn.Mat) []*nn.Mat {
	proj := g.AddBroadcastCol(g.Mul(m.params["frm.Wx"], x), m.params["frm.bx"])
	m.state.Frame = m.frameRNN.Step(g, g.Add(proj, bigCond), m.state.Frame)
	out := m.state.Frame[len(m.state.Frame)-1]
	up := g.AddBroadcastCol(g.Mul(m.params["frm.Wup"], out), m.params["frm.bup"])

	dim := m.cfg.Dim
	cond := make([]*nn.Mat, m.cfg.FrameSize())
	for k := range cond {
		cond[k] = g.SliceRows(up, k*dim, (k+1)*dim)
	}
	return cond
}

// sampleLogits runs the sample tier: embed the previous quantized
// sample per slot, mix with the frame conditioning, and produce logits
// over the quantization levels.
func (m *Model) sampleLogits(g *nn.Graph, prev []int, frameCond *nn.Mat) *nn.Mat {
	emb := g.Lookup(m.params["smp.emb"], prev)
	h := g.Relu(g.AddBroadcastCol(
		g.Add(g.Mul(m.params["smp.We"], emb), g.Mul(m.params["smp.Wc"], frameCond)),
		m.params["smp.b1"]))
	return g.AddBroadcastCol(g.Mul(m.params["smp.Wo"], h), m.params["smp.bo"])
}

// forward runs the teacher-forced pass over one quantized chunk of
// overlap+seqLen samples per slot and returns the logits for each of
// the seqLen predicted positions. The first bigFrameSize positions
// only seed context and get no prediction.
func (m *Model) forward(g *nn.Graph, q [][]int) ([]*nn.Mat, error) {
	bfs, fs := m.cfg.BigFrameSize(), m.cfg.FrameSize()
	if len(q) != m.batch {
		return nil, fmt.Errorf("chunk has %d slots, model batch size is %d", len(q), m.batch)
	}
	total := len(q[0])
	if total != bfs+m.cfg.SeqLen {
		return nil, fmt.Errorf("chunk is %d samples per slot, want seq_len+overlap = %d", total, bfs+m.cfg.SeqLen)
	}

	var bigCond, frameCond []*nn.Mat
	prev := make([]int, m.batch)
	logits := make([]*nn.Mat, 0, m.cfg.SeqLen)
	for t := bfs; t < total; t++ {
		if t%bfs == 0 {
			bigCond = m.bigStep(g, m.tierInput(q, t-bfs, bfs))
		}
		if t%fs == 0 {
			frameCond = m.frameStep(g, m.tierInput(q, t-fs, fs), bigCond[(t/fs)%m.ratio])
		}
		for j, slot := range q {
			prev[j] = slot[t-1]
		}
		logits = append(logits, m.sampleLogits(g, prev, frameCond[t%fs]))
	}
	return logits, nil
}
