// samplernn-gen synthesizes audio from a training checkpoint. With
// --num_seqs above one it draws several variations in a single pass,
// sharing weights but sampling independently.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cheggaaa/pb/v3"

	"github.com/prism-go/samplernn/dataset"
	"github.com/prism-go/samplernn/samplernn"
	"github.com/prism-go/samplernn/wav"
)

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "samplernn-gen: "+format+"\n", args...)
	os.Exit(1)
}

// outputName suffixes the path with the sequence index when more than
// one sequence is generated: out.wav -> out_2.wav.
func outputName(path string, i, total int) string {
	if total == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
}

func main() {
	parser := argparse.NewParser("samplernn-gen", "generate audio from a trained model")

	outputPath := parser.String("o", "output_path", &argparse.Options{Required: true, Help: "Output WAV path"})
	checkpointPath := parser.String("c", "checkpoint_path", &argparse.Options{Required: true, Help: "Checkpoint file to load"})
	configFile := parser.String("g", "config_file", &argparse.Options{Required: true, Help: "config.json written at training time"})
	dur := parser.Int("d", "dur", &argparse.Options{Default: 3, Help: "Seconds of audio per sequence"})
	numSeqs := parser.Int("n", "num_seqs", &argparse.Options{Default: 1, Help: "Sequences generated in one pass"})
	sampleRate := parser.Int("r", "sample_rate", &argparse.Options{Default: 16000, Help: "Output sample rate"})
	temperature := parser.Float("t", "temperature", &argparse.Options{Default: 0.95, Help: "Sampling temperature (<1 sharpens, >1 flattens)"})
	seedPath := parser.String("s", "seed", &argparse.Options{Help: "Seed audio for the warm-up context"})
	seedOffset := parser.Int("", "seed_offset", &argparse.Options{Default: 0, Help: "Offset in samples into the seed audio"})
	rngSeed := parser.Int("", "rng_seed", &argparse.Options{Default: 0, Help: "Sampling RNG seed (0 picks one from the clock)"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := samplernn.LoadConfig(*configFile)
	if err != nil {
		die("%v", err)
	}
	ck, err := samplernn.LoadCheckpoint(*checkpointPath)
	if err != nil {
		die("%v", err)
	}

	seed := int64(*rngSeed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	model, err := samplernn.NewModel(cfg, *numSeqs, rng)
	if err != nil {
		die("%v", err)
	}
	if err := model.LoadWeights(ck); err != nil {
		die("%v", err)
	}

	var seedAudio []float64
	if *seedPath != "" {
		if seedAudio, _, err = dataset.LoadAudio(*seedPath); err != nil {
			die("%v", err)
		}
	}

	numSamples := *dur * *sampleRate
	bar := pb.StartNew(numSamples)
	out, err := model.Generate(samplernn.GenerateOptions{
		NumSamples:  numSamples,
		Temperature: *temperature,
		Seed:        seedAudio,
		SeedOffset:  *seedOffset,
		Rand:        rng,
		Progress:    func(done, total int) { bar.SetCurrent(int64(done)) },
	})
	bar.Finish()
	if err != nil {
		die("%v", err)
	}

	for i, samples := range out {
		path := outputName(*outputPath, i, len(out))
		if err := wav.Write(path, samples, *sampleRate); err != nil {
			die("writing %s: %v", path, err)
		}
		fmt.Println(path)
	}
}
