package samplernn

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/prism-go/samplernn/dataset"
	"github.com/prism-go/samplernn/nn"
	"github.com/prism-go/samplernn/quantize"
	"github.com/prism-go/samplernn/wav"
)

// GradClipNorm is the global-norm threshold applied to every gradient
// step. Long recurrent unrolls make exploding gradients routine; the
// clip keeps single bad chunks from destroying the weights.
const GradClipNorm = 5.0

// ErrNumericInstability reports a NaN or Inf training loss. Training
// halts on it: continuing would write corrupt checkpoints.
var ErrNumericInstability = errors.New("training loss is not finite")

// TrainStep runs one teacher-forced chunk through the model: quantize,
// forward, cross-entropy over every position past the big-frame
// warm-up, backprop, clip, optimizer update. The recurrent state is
// detached so the next chunk continues from these values without
// backpropagating into this chunk, and zeroed after the update when
// the chunk opened a new file.
func (m *Model) TrainStep(chunk dataset.Chunk, opt nn.Optimizer) (float64, error) {
	q := make([][]int, len(chunk.Samples))
	for j, slot := range chunk.Samples {
		q[j] = m.Quantize(slot)
	}

	g := nn.NewGraph(true)
	logits, err := m.forward(g, q)
	if err != nil {
		return 0, err
	}

	bfs := m.cfg.BigFrameSize()
	count := float64(len(logits) * m.batch)
	loss := 0.0
	targets := make([]int, m.batch)
	for ti, lg := range logits {
		for j := range q {
			targets[j] = q[j][bfs+ti]
		}
		hot := quantize.OneHot(targets, m.cfg.QLevels)
		p := nn.Softmax(lg)
		for j := range targets {
			loss -= math.Log(p.Get(targets[j], j))
			// Softmax cross-entropy gradient, applied analytically.
			for i := 0; i < m.cfg.QLevels; i++ {
				lg.Dw[i*m.batch+j] = (p.Get(i, j) - hot[j][i]) / count
			}
		}
	}
	loss /= count
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("%w: loss = %v", ErrNumericInstability, loss)
	}

	g.Backward()
	nn.ClipByGlobalNorm(m.params, GradClipNorm)
	opt.Step(m.params)

	m.state.Detach()
	if chunk.NewFile {
		m.state.Reset()
	}
	return loss, nil
}

// TrainOptions drives the outer training loop.
type TrainOptions struct {
	NumSteps        int
	StartStep       int // resume point from a loaded checkpoint
	CheckpointEvery int // 0 disables checkpointing
	MaxCheckpoints  int // 0 keeps everything
	GenerateEvery   int // 0 disables periodic clips
	OutputDir       string
	SampleRate      int
	OutputDur       int // seconds per periodic clip
	Rand            *rand.Rand
	OnStep          func(step int, loss float64)
}

// Train runs the training loop until NumSteps, cycling the windower
// across epochs. It checkpoints on the configured cadence and, when
// GenerateEvery is set, writes a qualitative audio clip; clip failures
// are logged, never fatal.
func Train(m *Model, w *dataset.Windower, opt nn.Optimizer, opts TrainOptions) error {
	if w.BatchSize() != m.batch {
		return fmt.Errorf("%w: windower batch size %d does not match model batch size %d",
			ErrConfig, w.BatchSize(), m.batch)
	}
	for step := opts.StartStep; step < opts.NumSteps; step++ {
		chunk, ok := w.Next()
		if !ok {
			w.Reset()
			chunk, ok = w.Next()
			if !ok {
				return errors.New("windower produced no chunks")
			}
		}
		loss, err := m.TrainStep(chunk, opt)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if opts.OnStep != nil {
			opts.OnStep(step, loss)
		}

		last := step == opts.NumSteps-1
		if opts.CheckpointEvery > 0 && ((step+1)%opts.CheckpointEvery == 0 || last) {
			if _, err := SaveCheckpoint(opts.OutputDir, m, opt, step+1); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if opts.MaxCheckpoints > 0 {
				if err := PruneCheckpoints(opts.OutputDir, opts.MaxCheckpoints); err != nil {
					log.Printf("pruning checkpoints: %v", err)
				}
			}
		}
		if opts.GenerateEvery > 0 && (step+1)%opts.GenerateEvery == 0 && !last {
			writeTrainingClip(m, opts, step+1)
		}
	}
	return nil
}

// writeTrainingClip generates a short clip from the current weights so
// training quality can be judged by ear. It borrows the model, so the
// carried TBPTT state is sacrificed and reset afterwards.
func writeTrainingClip(m *Model, opts TrainOptions, step int) {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(step)))
	}
	out, err := m.Generate(GenerateOptions{
		NumSamples:  opts.OutputDur * opts.SampleRate,
		Temperature: 0.95,
		Rand:        rng,
	})
	if err != nil {
		log.Printf("step %d: generating clip: %v", step, err)
	}
	for j, samples := range out {
		name := fmt.Sprintf("step-%08d.wav", step)
		if len(out) > 1 {
			name = fmt.Sprintf("step-%08d_%d.wav", step, j)
		}
		if err := wav.Write(filepath.Join(opts.OutputDir, name), samples, opts.SampleRate); err != nil {
			log.Printf("step %d: writing clip: %v", step, err)
		}
	}
	m.state.Reset()
}
