package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/prism-go/samplernn/wav"
)

// LoadAudio decodes one audio file to mono float64 samples in [-1, 1]
// and its sample rate. The container is picked by file extension.
func LoadAudio(path string) ([]float64, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wav.Read(path)
	case ".mp3":
		return loadMP3(path)
	case ".flac":
		return loadFLAC(path)
	}
	return nil, 0, fmt.Errorf("%s: unsupported audio format", path)
}

// loadMP3 decodes via go-mp3, which always emits 16-bit stereo frames.
func loadMP3(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: decoding mp3: %w", path, err)
	}

	frames := len(raw) / 4 // 2 channels x 2 bytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		r := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		samples[i] = (float64(l) + float64(r)) / 2 / 32768.0
	}
	return samples, dec.SampleRate(), nil
}

func loadFLAC(path string) ([]float64, int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	defer stream.Close()

	nch := int(stream.Info.NChannels)
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))
	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("%s: decoding flac: %w", path, err)
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, sub := range frame.Subframes {
				sum += float64(sub.Samples[i])
			}
			samples = append(samples, sum/float64(nch)/scale)
		}
	}
	return samples, int(stream.Info.SampleRate), nil
}
