package samplernn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/prism-go/samplernn/quantize"
)

// ErrConfig marks configuration errors: invalid frame hierarchy,
// unknown quantization type, non-positive dimensions. All of them are
// fatal before any training or generation starts.
var ErrConfig = errors.New("invalid configuration")

// Config fixes the model architecture. It is written next to the
// checkpoints at training time and must be loaded unchanged to
// generate from them.
type Config struct {
	// FrameSizes is [frame_size, big_frame_size], ascending. The big
	// frame size must be a multiple of the frame size, and SeqLen a
	// multiple of the big frame size.
	FrameSizes []int  `json:"frame_sizes"`
	QType      string `json:"q_type"`
	QLevels    int    `json:"q_levels"`
	Dim        int    `json:"dim"`
	NumLayers  int    `json:"num_rnn_layers"`
	SeqLen     int    `json:"seq_len"`
	EmbSize    int    `json:"emb_size"`
}

// DefaultConfig mirrors the training defaults: two-tier hierarchy of
// 16 and 64 samples over 1024-sample chunks, mu-law at 256 levels.
func DefaultConfig() Config {
	return Config{
		FrameSizes: []int{16, 64},
		QType:      "mu-law",
		QLevels:    256,
		Dim:        1024,
		NumLayers:  4,
		SeqLen:     1024,
		EmbSize:    256,
	}
}

// FrameSize returns the lower tier's span in samples.
func (c Config) FrameSize() int { return c.FrameSizes[0] }

// BigFrameSize returns the upper tier's span in samples.
func (c Config) BigFrameSize() int { return c.FrameSizes[1] }

// Validate checks every architectural invariant and names the violated
// one in the returned error.
func (c Config) Validate() error {
	if len(c.FrameSizes) != 2 {
		return fmt.Errorf("%w: frame_sizes must hold exactly 2 entries, got %d", ErrConfig, len(c.FrameSizes))
	}
	fs, bfs := c.FrameSizes[0], c.FrameSizes[1]
	if fs < 1 {
		return fmt.Errorf("%w: frame_sizes[0] = %d must be positive", ErrConfig, fs)
	}
	if fs >= bfs {
		return fmt.Errorf("%w: frame_sizes must ascend, got [%d, %d]", ErrConfig, fs, bfs)
	}
	if bfs%fs != 0 {
		return fmt.Errorf("%w: frame_sizes[1] = %d is not a multiple of frame_sizes[0] = %d", ErrConfig, bfs, fs)
	}
	if c.SeqLen < 1 {
		return fmt.Errorf("%w: seq_len = %d must be positive", ErrConfig, c.SeqLen)
	}
	if c.SeqLen%bfs != 0 {
		return fmt.Errorf("%w: seq_len = %d is not divisible by the big frame size %d", ErrConfig, c.SeqLen, bfs)
	}
	if c.QLevels < 2 {
		return fmt.Errorf("%w: q_levels = %d must be >= 2", ErrConfig, c.QLevels)
	}
	if _, err := quantize.ParseScheme(c.QType); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.Dim < 1 {
		return fmt.Errorf("%w: dim = %d must be positive", ErrConfig, c.Dim)
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("%w: num_rnn_layers = %d must be positive", ErrConfig, c.NumLayers)
	}
	if c.EmbSize < 1 {
		return fmt.Errorf("%w: emb_size = %d must be positive", ErrConfig, c.EmbSize)
	}
	return nil
}

// LoadConfig reads and validates a JSON config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrConfig, path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// SaveConfig writes the config as indented JSON, the format LoadConfig
// reads back.
func (c Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
