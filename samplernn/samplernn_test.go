package samplernn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/prism-go/samplernn/dataset"
	"github.com/prism-go/samplernn/nn"
)

// testConfig is a deliberately tiny architecture so training steps run
// in microseconds.
func testConfig() Config {
	return Config{
		FrameSizes: []int{2, 4},
		QType:      "linear",
		QLevels:    16,
		Dim:        6,
		NumLayers:  1,
		SeqLen:     8,
		EmbSize:    4,
	}
}

func testModel(t *testing.T, batch int) *Model {
	t.Helper()
	m, err := NewModel(testConfig(), batch, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// testChunk builds one chunk of seq_len+overlap constant samples.
func testChunk(value float64, newFile bool) dataset.Chunk {
	samples := make([]float64, 12) // seq_len 8 + big frame 4
	for i := range samples {
		samples[i] = value
	}
	return dataset.Chunk{Samples: [][]float64{samples}, NewFile: newFile}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"standard sizes", func(c *Config) { c.FrameSizes = []int{16, 64}; c.SeqLen = 1024 }, true},
		{"descending", func(c *Config) { c.FrameSizes = []int{64, 16} }, false},
		{"not a multiple", func(c *Config) { c.FrameSizes = []int{16, 30}; c.SeqLen = 960 }, false},
		{"seq_len not divisible", func(c *Config) { c.FrameSizes = []int{16, 64}; c.SeqLen = 1000 }, false},
		{"one frame size", func(c *Config) { c.FrameSizes = []int{16} }, false},
		{"q_levels too small", func(c *Config) { c.QLevels = 1 }, false},
		{"unknown q_type", func(c *Config) { c.QType = "a-law" }, false},
		{"zero dim", func(c *Config) { c.Dim = 0 }, false},
		{"zero layers", func(c *Config) { c.NumLayers = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("Validate() accepted an invalid config")
				}
				if !errors.Is(err, ErrConfig) {
					t.Errorf("error %v is not an ErrConfig", err)
				}
			}
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := testConfig()
	if err := want.SaveConfig(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.QType != want.QType || got.SeqLen != want.SeqLen ||
		got.FrameSizes[0] != want.FrameSizes[0] || got.FrameSizes[1] != want.FrameSizes[1] {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
}

func TestTrainingLossDecreasesOnConstantSignal(t *testing.T) {
	m := testModel(t, 1)
	opt, err := nn.NewOptimizer("adam", 0.01, 0)
	if err != nil {
		t.Fatal(err)
	}

	var losses []float64
	for step := 0; step < 5; step++ {
		loss, err := m.TrainStep(testChunk(0, step == 0), opt)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Fatalf("step %d: loss not finite: %v", step, loss)
		}
		losses = append(losses, loss)
	}
	if losses[4] >= losses[0] {
		t.Errorf("loss did not decrease: %v", losses)
	}
}

func TestStateResetsAfterNewFileStep(t *testing.T) {
	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("sgd", 0.01, 0)

	// A continuation chunk leaves carried context behind.
	if _, err := m.TrainStep(testChunk(0.3, false), opt); err != nil {
		t.Fatal(err)
	}
	carried := false
	for _, layer := range m.State().Big {
		for _, v := range layer.W {
			if v != 0 {
				carried = true
			}
		}
	}
	if !carried {
		t.Fatal("state is zero after a continuation chunk")
	}

	// The first chunk of the next file resets state after the update.
	if _, err := m.TrainStep(testChunk(0.3, true), opt); err != nil {
		t.Fatal(err)
	}
	for _, layer := range append(m.State().Big, m.State().Frame...) {
		for i, v := range layer.W {
			if v != 0 {
				t.Fatalf("state entry %d = %v after new-file step, want 0", i, v)
			}
		}
	}
}

func TestResetSlotClearsOneColumn(t *testing.T) {
	m := testModel(t, 2)
	opt, _ := nn.NewOptimizer("sgd", 0.01, 0)

	samples := make([]float64, 12)
	for i := range samples {
		samples[i] = 0.3
	}
	chunk := dataset.Chunk{Samples: [][]float64{samples, samples}, NewFile: false}
	if _, err := m.TrainStep(chunk, opt); err != nil {
		t.Fatal(err)
	}

	m.State().ResetSlot(0)
	for _, layer := range append(m.State().Big, m.State().Frame...) {
		kept := false
		for i := 0; i < layer.N; i++ {
			if layer.Get(i, 0) != 0 {
				t.Fatalf("slot 0 row %d = %v after ResetSlot, want 0", i, layer.Get(i, 0))
			}
			if layer.Get(i, 1) != 0 {
				kept = true
			}
		}
		if !kept {
			t.Error("ResetSlot(0) also cleared slot 1")
		}
	}
}

func TestTrainStepHaltsOnNonFiniteLoss(t *testing.T) {
	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("adam", 0.001, 0)
	m.Params()["smp.bo"].W[0] = math.Inf(1)

	_, err := m.TrainStep(testChunk(0, true), opt)
	if !errors.Is(err, ErrNumericInstability) {
		t.Errorf("err = %v, want ErrNumericInstability", err)
	}
}

func TestGenerateDeterministicUnderFixedSeed(t *testing.T) {
	m := testModel(t, 1)
	run := func() []float64 {
		out, err := m.Generate(GenerateOptions{
			NumSamples:  64,
			Temperature: 1.0,
			Rand:        rand.New(rand.NewSource(42)),
		})
		if err != nil {
			t.Fatal(err)
		}
		return out[0]
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outputs diverge at sample %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestGenerateOutputLength(t *testing.T) {
	m := testModel(t, 3)
	out, err := m.Generate(GenerateOptions{
		NumSamples:  100,
		Temperature: 0.95,
		Rand:        rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d sequences, want 3", len(out))
	}
	for j, seq := range out {
		if len(seq) != 100 {
			t.Errorf("sequence %d has %d samples, want exactly 100", j, len(seq))
		}
	}
}

func TestGenerateRejectsOversizedSeedOffset(t *testing.T) {
	m := testModel(t, 1)
	_, err := m.Generate(GenerateOptions{
		NumSamples:  8,
		Temperature: 1.0,
		Seed:        make([]float64, 10),
		SeedOffset:  8, // offset 8 + big frame 4 > 10
		Rand:        rand.New(rand.NewSource(1)),
	})
	if !errors.Is(err, ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestDrawSampleTemperature(t *testing.T) {
	logits := nn.NewMat(4, 1)
	for i := 0; i < 4; i++ {
		logits.Set(i, 0, float64(i)) // argmax is 3
	}

	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		if got := drawSample(logits, 0, 0.01, rng); got != 3 {
			t.Fatalf("near-zero temperature drew %d, want argmax 3", got)
		}
	}

	// High temperature flattens the distribution back out.
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		seen[drawSample(logits, 0, 100, rng)] = true
	}
	if len(seen) < 2 {
		t.Error("high temperature still collapsed to one level")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("adam", 0.001, 0)
	if _, err := m.TrainStep(testChunk(0.1, true), opt); err != nil {
		t.Fatal(err)
	}

	path, err := SaveCheckpoint(dir, m, opt, 3)
	if err != nil {
		t.Fatal(err)
	}
	ck, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	if ck.Step != 3 {
		t.Errorf("Step = %d, want 3", ck.Step)
	}

	// A fresh model with different initial weights must load them back.
	fresh, err := NewModel(testConfig(), 1, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.LoadWeights(ck); err != nil {
		t.Fatal(err)
	}
	for i, v := range fresh.Params()["smp.emb"].W {
		if v != m.Params()["smp.emb"].W[i] {
			t.Fatalf("weight %d = %v after load, want %v", i, v, m.Params()["smp.emb"].W[i])
		}
	}

	// The optimizer resumes with its moment estimates intact.
	restored, err := nn.LoadOptimizer(ck.Solver)
	if err != nil {
		t.Fatal(err)
	}
	if restored.State().T != opt.State().T {
		t.Errorf("restored optimizer T = %d, want %d", restored.State().T, opt.State().T)
	}
}

func TestLoadWeightsRejectsMismatchedConfig(t *testing.T) {
	dir := t.TempDir()
	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("adam", 0.001, 0)
	path, err := SaveCheckpoint(dir, m, opt, 1)
	if err != nil {
		t.Fatal(err)
	}
	ck, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.QLevels = 32
	other, err := NewModel(cfg, 1, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	if err := other.LoadWeights(ck); !errors.Is(err, ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestLatestCheckpointAndPruning(t *testing.T) {
	dir := t.TempDir()
	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("adam", 0.001, 0)
	for _, step := range []int{2, 10, 6} {
		if _, err := SaveCheckpoint(dir, m, opt, step); err != nil {
			t.Fatal(err)
		}
	}

	path, step, err := LatestCheckpoint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if step != 10 {
		t.Errorf("latest step = %d, want 10", step)
	}

	if err := PruneCheckpoints(dir, 1); err != nil {
		t.Fatal(err)
	}
	paths, _, err := listCheckpoints(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != path {
		t.Errorf("pruning kept %v, want only %s", paths, path)
	}
}

func TestLatestCheckpointEmptyDir(t *testing.T) {
	path, step, err := LatestCheckpoint(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path != "" || step != 0 {
		t.Errorf("empty dir reported checkpoint %q at step %d", path, step)
	}
}

func TestPeriodicClipsCoverEveryBatchSlot(t *testing.T) {
	f1 := make([]float64, 40)
	f2 := make([]float64, 40)
	for i := range f2 {
		f2[i] = 0.2
	}
	w, err := dataset.NewWindower([][]float64{f1, f2}, 2, 8, 4)
	if err != nil {
		t.Fatal(err)
	}

	m := testModel(t, 2)
	opt, _ := nn.NewOptimizer("adam", 0.005, 0)
	dir := t.TempDir()
	err = Train(m, w, opt, TrainOptions{
		NumSteps:      3,
		GenerateEvery: 2,
		OutputDir:     dir,
		SampleRate:    8,
		OutputDur:     1,
		Rand:          rand.New(rand.NewSource(5)),
	})
	if err != nil {
		t.Fatal(err)
	}

	for j := 0; j < 2; j++ {
		name := filepath.Join(dir, fmt.Sprintf("step-%08d_%d.wav", 2, j))
		if _, err := os.Stat(name); err != nil {
			t.Errorf("clip for slot %d missing: %v", j, err)
		}
	}
}

func TestTrainLoopEndToEnd(t *testing.T) {
	// Near-constant 16 kHz tone, enough for a few chunks per epoch.
	file := make([]float64, 100)
	for i := range file {
		file[i] = 0.05 * math.Sin(float64(i)/20)
	}
	w, err := dataset.NewWindower([][]float64{file}, 1, 8, 4)
	if err != nil {
		t.Fatal(err)
	}

	m := testModel(t, 1)
	opt, _ := nn.NewOptimizer("adam", 0.005, 0)
	dir := t.TempDir()

	var first, last float64
	err = Train(m, w, opt, TrainOptions{
		NumSteps:        5,
		CheckpointEvery: 5,
		OutputDir:       dir,
		OnStep: func(step int, loss float64) {
			if step == 0 {
				first = loss
			}
			last = loss
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(last) || last >= first {
		t.Errorf("loss went %v -> %v, want finite decrease", first, last)
	}

	path, step, err := LatestCheckpoint(dir)
	if err != nil || path == "" {
		t.Fatalf("no checkpoint after training: %v", err)
	}
	if step != 5 {
		t.Errorf("final checkpoint at step %d, want 5", step)
	}
}
