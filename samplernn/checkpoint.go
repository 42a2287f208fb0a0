package samplernn

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prism-go/samplernn/nn"
)

// savedMat is the checkpoint form of a parameter matrix: values only,
// no gradients.
type savedMat struct {
	N, D int
	W    []float64
}

// Checkpoint is one serialized training snapshot. Files are written
// once and never mutated; resuming or generating reads the latest one.
type Checkpoint struct {
	Config  Config
	Step    int
	Weights map[string]savedMat
	Solver  nn.SolverState
}

func checkpointName(step int) string {
	return fmt.Sprintf("ckpt-%08d.gob", step)
}

// SaveCheckpoint writes the model weights, optimizer state and step
// counter to dir and returns the file path.
func SaveCheckpoint(dir string, m *Model, opt nn.Optimizer, step int) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	ck := Checkpoint{
		Config:  m.cfg,
		Step:    step,
		Weights: make(map[string]savedMat, len(m.params)),
		Solver:  opt.State(),
	}
	for k, p := range m.params {
		w := make([]float64, len(p.W))
		copy(w, p.W)
		ck.Weights[k] = savedMat{N: p.N, D: p.D, W: w}
	}

	path := filepath.Join(dir, checkpointName(step))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads one checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	defer f.Close()
	var ck Checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return &ck, nil
}

// LoadWeights copies checkpoint weights into the model. The checkpoint
// must have been written by a model of the same configuration; any
// shape or key mismatch is an error naming the offending parameter.
func (m *Model) LoadWeights(ck *Checkpoint) error {
	if err := configsMatch(m.cfg, ck.Config); err != nil {
		return err
	}
	for k, p := range m.params {
		saved, ok := ck.Weights[k]
		if !ok {
			return fmt.Errorf("%w: checkpoint is missing parameter %q", ErrConfig, k)
		}
		if saved.N != p.N || saved.D != p.D {
			return fmt.Errorf("%w: parameter %q is %dx%d in the checkpoint, %dx%d in the model",
				ErrConfig, k, saved.N, saved.D, p.N, p.D)
		}
		copy(p.W, saved.W)
		p.ZeroGrads()
	}
	return nil
}

func configsMatch(a, b Config) error {
	switch {
	case len(a.FrameSizes) != len(b.FrameSizes),
		a.FrameSizes[0] != b.FrameSizes[0],
		a.FrameSizes[1] != b.FrameSizes[1]:
		return fmt.Errorf("%w: frame_sizes %v do not match the checkpoint's %v", ErrConfig, a.FrameSizes, b.FrameSizes)
	case a.QType != b.QType:
		return fmt.Errorf("%w: q_type %q does not match the checkpoint's %q", ErrConfig, a.QType, b.QType)
	case a.QLevels != b.QLevels:
		return fmt.Errorf("%w: q_levels %d does not match the checkpoint's %d", ErrConfig, a.QLevels, b.QLevels)
	case a.Dim != b.Dim:
		return fmt.Errorf("%w: dim %d does not match the checkpoint's %d", ErrConfig, a.Dim, b.Dim)
	case a.NumLayers != b.NumLayers:
		return fmt.Errorf("%w: num_rnn_layers %d does not match the checkpoint's %d", ErrConfig, a.NumLayers, b.NumLayers)
	case a.EmbSize != b.EmbSize:
		return fmt.Errorf("%w: emb_size %d does not match the checkpoint's %d", ErrConfig, a.EmbSize, b.EmbSize)
	}
	return nil
}

// listCheckpoints returns (path, step) pairs sorted by ascending step.
func listCheckpoints(dir string) ([]string, []int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "ckpt-*.gob"))
	if err != nil {
		return nil, nil, err
	}
	var paths []string
	var steps []int
	for _, path := range matches {
		var step int
		if _, err := fmt.Sscanf(filepath.Base(path), "ckpt-%d.gob", &step); err != nil {
			continue
		}
		paths = append(paths, path)
		steps = append(steps, step)
	}
	sort.Sort(&bySteps{paths, steps})
	return paths, steps, nil
}

type bySteps struct {
	paths []string
	steps []int
}

func (s *bySteps) Len() int           { return len(s.steps) }
func (s *bySteps) Less(i, j int) bool { return s.steps[i] < s.steps[j] }
func (s *bySteps) Swap(i, j int) {
	s.paths[i], s.paths[j] = s.paths[j], s.paths[i]
	s.steps[i], s.steps[j] = s.steps[j], s.steps[i]
}

// LatestCheckpoint finds the highest-step checkpoint in dir. It
// returns an empty path when the directory holds none.
func LatestCheckpoint(dir string) (string, int, error) {
	paths, steps, err := listCheckpoints(dir)
	if err != nil || len(paths) == 0 {
		return "", 0, err
	}
	last := len(paths) - 1
	return paths[last], steps[last], nil
}

// PruneCheckpoints deletes the oldest checkpoints beyond keep.
func PruneCheckpoints(dir string, keep int) error {
	paths, _, err := listCheckpoints(dir)
	if err != nil {
		return err
	}
	for len(paths) > keep {
		if err := os.Remove(paths[0]); err != nil {
			return err
		}
		paths = paths[1:]
	}
	return nil
}
