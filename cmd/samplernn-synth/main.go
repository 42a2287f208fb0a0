// samplernn-synth renders a wavegen signal description to a mono
// training WAV, handy for producing small synthetic corpora.
package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/herclab/wavegen/pkg/wavegen"

	"github.com/prism-go/samplernn/wav"
)

func main() {
	parser := argparse.NewParser("samplernn-synth", "render a wavegen JSON signal to WAV")

	input := parser.String("i", "input", &argparse.Options{Required: true, Help: "Input wavegen JSON file"})
	output := parser.String("o", "output", &argparse.Options{Required: true, Help: "Output WAV path"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	wf, err := wavegen.ReadJSON(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "samplernn-synth: %v\n", err)
		os.Exit(1)
	}
	sig := wf.Signal
	if err := wav.Write(*output, sig.S, int(sig.SampleRate)); err != nil {
		fmt.Fprintf(os.Stderr, "samplernn-synth: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d samples at %d Hz to %s\n", len(sig.S), int(sig.SampleRate), *output)
}
