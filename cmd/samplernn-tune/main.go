// samplernn-tune searches training hyperparameters by running short
// trials and ranking them by final loss.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/akamensky/argparse"

	"github.com/prism-go/samplernn/dataset"
	"github.com/prism-go/samplernn/nn"
	"github.com/prism-go/samplernn/samplernn"
	"github.com/prism-go/samplernn/tune"
)

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "samplernn-tune: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	parser := argparse.NewParser("samplernn-tune", "hyperparameter search over short training trials")

	dataDir := parser.String("d", "data_dir", &argparse.Options{Required: true, Help: "Directory of training audio"})
	strategy := parser.Selector("s", "strategy", []string{"random", "grid"}, &argparse.Options{Default: "random", Help: "Search strategy"})
	trials := parser.Int("t", "trials", &argparse.Options{Default: 8, Help: "Trials for random search"})
	trialSteps := parser.Int("n", "trial_steps", &argparse.Options{Default: 50, Help: "Training steps per trial"})
	batchSize := parser.Int("b", "batch_size", &argparse.Options{Default: 1, Help: "Batch slots per trial"})
	seqLen := parser.Int("", "seq_len", &argparse.Options{Default: 512, Help: "Samples per training chunk"})
	rngSeed := parser.Int("", "rng_seed", &argparse.Options{Default: 0, Help: "Search RNG seed (0 picks one from the clock)"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	base := samplernn.DefaultConfig()
	base.SeqLen = *seqLen
	if err := base.Validate(); err != nil {
		die("%v", err)
	}

	corpus, err := dataset.LoadCorpus(*dataDir)
	if err != nil {
		die("%v", err)
	}
	windower, err := dataset.NewWindower(corpus, *batchSize, base.SeqLen, base.BigFrameSize())
	if err != nil {
		die("%v", err)
	}

	seed := int64(*rngSeed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var search tune.Strategy
	switch *strategy {
	case "random":
		search = tune.NewRandomSearch(map[string]tune.Range{
			"learning_rate": {Min: 1e-4, Max: 1e-2, Log: true},
			"dim":           {Min: 64, Max: 512},
		}, *trials, seed)
	case "grid":
		search = tune.NewGridSearch(map[string][]float64{
			"learning_rate": {1e-2, 1e-3, 1e-4},
			"dim":           {128, 256},
		})
	}

	trial := 0
	objective := func(p tune.Params) (float64, error) {
		trial++
		cfg := base
		cfg.Dim = int(p["dim"])
		model, err := samplernn.NewModel(cfg, *batchSize, rand.New(rand.NewSource(seed)))
		if err != nil {
			return 0, err
		}
		opt, err := nn.NewOptimizer("adam", p["learning_rate"], 0)
		if err != nil {
			return 0, err
		}

		windower.Reset()
		last := 0.0
		err = samplernn.Train(model, windower, opt, samplernn.TrainOptions{
			NumSteps: *trialSteps,
			OnStep:   func(step int, loss float64) { last = loss },
		})
		if err != nil {
			return 0, err
		}
		log.Printf("trial %d: lr=%.5f dim=%d loss=%.4f", trial, p["learning_rate"], cfg.Dim, last)
		return last, nil
	}

	best, history, err := tune.Run(search, objective)
	if err != nil {
		die("%v", err)
	}
	fmt.Printf("best of %d trials: lr=%.5f dim=%d loss=%.4f\n",
		len(history), best.Params["learning_rate"], int(best.Params["dim"]), best.Score)
}
