// samplernn-train trains a SampleRNN on a directory of audio files,
// writing checkpoints and a config.json the generator can load.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cheggaaa/pb/v3"

	"github.com/prism-go/samplernn/dataset"
	"github.com/prism-go/samplernn/nn"
	"github.com/prism-go/samplernn/samplernn"
)

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "samplernn-train: "+format+"\n", args...)
	os.Exit(1)
}

// parseFrameSizes reads the "--frame_sizes 16,64" form.
func parseFrameSizes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("frame sizes %q: %w", s, err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func main() {
	parser := argparse.NewParser("samplernn-train", "train a hierarchical autoregressive audio model")

	dataDir := parser.String("d", "data_dir", &argparse.Options{Required: true, Help: "Directory of training audio (.wav/.mp3/.flac, scanned recursively)"})
	logdirRoot := parser.String("l", "logdir_root", &argparse.Options{Default: "./logdir", Help: "Directory for checkpoints, config and sample clips"})
	batchSize := parser.Int("b", "batch_size", &argparse.Options{Default: 1, Help: "Batch slots trained in lockstep"})
	numSteps := parser.Int("n", "num_steps", &argparse.Options{Default: 100000, Help: "Total training steps"})
	learningRate := parser.Float("r", "learning_rate", &argparse.Options{Default: 0.001, Help: "Optimizer learning rate"})
	momentum := parser.Float("m", "momentum", &argparse.Options{Default: 0.9, Help: "Momentum for sgd and rmsprop"})
	optimizer := parser.Selector("o", "optimizer", nn.OptimizerKinds, &argparse.Options{Default: "adam", Help: "Optimizer kind"})
	seqLen := parser.Int("s", "seq_len", &argparse.Options{Default: 1024, Help: "Samples per training chunk"})
	frameSizes := parser.String("f", "frame_sizes", &argparse.Options{Default: "16,64", Help: "Frame and big-frame sizes, ascending"})
	dim := parser.Int("", "dim", &argparse.Options{Default: 1024, Help: "Hidden size of the recurrent tiers"})
	nRNN := parser.Int("", "n_rnn", &argparse.Options{Default: 4, Help: "GRU layers per recurrent tier"})
	embSize := parser.Int("", "emb_size", &argparse.Options{Default: 256, Help: "Sample embedding size"})
	qLevels := parser.Int("", "q_levels", &argparse.Options{Default: 256, Help: "Quantization levels"})
	qType := parser.String("", "q_type", &argparse.Options{Default: "mu-law", Help: "Quantization law: linear or mu-law"})
	checkpointEvery := parser.Int("", "checkpoint_every", &argparse.Options{Default: 200, Help: "Steps between checkpoints"})
	maxCheckpoints := parser.Int("", "max_checkpoints", &argparse.Options{Default: 5, Help: "Checkpoints kept before pruning (0 keeps all)"})
	generateEvery := parser.Int("", "generate_every", &argparse.Options{Default: 0, Help: "Steps between qualitative sample clips (0 disables)"})
	sampleRate := parser.Int("", "sample_rate", &argparse.Options{Default: 16000, Help: "Sample rate of the periodic clips"})
	outputDur := parser.Int("", "output_dur", &argparse.Options{Default: 3, Help: "Seconds per periodic clip"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	sizes, err := parseFrameSizes(*frameSizes)
	if err != nil {
		die("%v", err)
	}
	cfg := samplernn.Config{
		FrameSizes: sizes,
		QType:      *qType,
		QLevels:    *qLevels,
		Dim:        *dim,
		NumLayers:  *nRNN,
		SeqLen:     *seqLen,
		EmbSize:    *embSize,
	}
	if err := cfg.Validate(); err != nil {
		die("%v", err)
	}

	corpus, err := dataset.LoadCorpus(*dataDir)
	if err != nil {
		die("%v", err)
	}
	windower, err := dataset.NewWindower(corpus, *batchSize, cfg.SeqLen, cfg.BigFrameSize())
	if err != nil {
		die("%v", err)
	}
	log.Printf("loaded %d files, %d chunks per epoch", len(corpus), windower.Chunks())

	model, err := samplernn.NewModel(cfg, *batchSize, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		die("%v", err)
	}
	opt, err := nn.NewOptimizer(*optimizer, *learningRate, *momentum)
	if err != nil {
		die("%v", err)
	}

	if err := os.MkdirAll(*logdirRoot, 0755); err != nil {
		die("%v", err)
	}
	if err := cfg.SaveConfig(filepath.Join(*logdirRoot, "config.json")); err != nil {
		die("writing config: %v", err)
	}

	startStep := 0
	if path, step, err := samplernn.LatestCheckpoint(*logdirRoot); err != nil {
		die("%v", err)
	} else if path != "" {
		ck, err := samplernn.LoadCheckpoint(path)
		if err != nil {
			die("%v", err)
		}
		if err := model.LoadWeights(ck); err != nil {
			die("%v", err)
		}
		if opt, err = nn.LoadOptimizer(ck.Solver); err != nil {
			die("%v", err)
		}
		startStep = step
		log.Printf("resuming from %s at step %d", path, startStep)
	}

	bar := pb.StartNew(*numSteps)
	bar.SetCurrent(int64(startStep))
	err = samplernn.Train(model, windower, opt, samplernn.TrainOptions{
		NumSteps:        *numSteps,
		StartStep:       startStep,
		CheckpointEvery: *checkpointEvery,
		MaxCheckpoints:  *maxCheckpoints,
		GenerateEvery:   *generateEvery,
		OutputDir:       *logdirRoot,
		SampleRate:      *sampleRate,
		OutputDur:       *outputDur,
		OnStep: func(step int, loss float64) {
			bar.Increment()
			if (step+1)%50 == 0 {
				log.Printf("step %d: loss %.4f", step+1, loss)
			}
		},
	})
	bar.Finish()
	if err != nil {
		die("%v", err)
	}
}
