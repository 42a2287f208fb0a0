// Package dataset turns a directory of audio files into the chunk
// stream the training loop consumes: fixed-length overlapping windows
// grouped into batches, with a flag marking where a new file begins so
// the model knows to reset its recurrent state.
package dataset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoFiles is returned when a corpus scan finds no audio files.
var ErrNoFiles = errors.New("no audio files found")

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
}

// FindFiles walks dir recursively and returns the sorted paths of all
// .wav, .mp3 and .flac files.
func FindFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s: not a directory", dir)
	}

	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	sort.Strings(files)
	return files, nil
}

// LoadCorpus scans dir and decodes every audio file to mono float64
// samples. Files that fail to decode are logged and skipped; a corpus
// that yields nothing is an error.
func LoadCorpus(dir string) ([][]float64, error) {
	paths, err := FindFiles(dir)
	if err != nil {
		return nil, err
	}
	var corpus [][]float64
	for _, path := range paths {
		samples, _, err := LoadAudio(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		corpus = append(corpus, samples)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("%w: every file in %s failed to decode", ErrNoFiles, dir)
	}
	return corpus, nil
}

// Chunk is one training window: Samples[slot] holds seqLen+overlap
// amplitudes for each batch slot, and NewFile is true exactly when the
// chunk is the first drawn from its slot's file.
type Chunk struct {
	Samples [][]float64
	NewFile bool
}

// Windower slices a corpus into the overlapping chunk sequence used
// for truncated backpropagation through time. Files are assigned to
// batch slots in groups of batchSize; a group advances in lockstep and
// is truncated to its shortest member, and any trailing span shorter
// than seqLen is dropped (never padded). Consecutive chunks for the
// same file share the last `overlap` samples, so the big-frame tier
// always warms up on real audio.
type Windower struct {
	groups   [][][]float64
	seqLen   int
	overlap  int
	nChunks  []int // chunks per group
	group    int
	chunk    int
}

// NewWindower validates the corpus against the window geometry. Every
// file must hold at least seqLen+overlap samples (one full chunk).
func NewWindower(files [][]float64, batchSize, seqLen, overlap int) (*Windower, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	if seqLen < 1 || overlap < 0 {
		return nil, fmt.Errorf("invalid window geometry: seq_len=%d overlap=%d", seqLen, overlap)
	}
	if len(files) < batchSize {
		return nil, fmt.Errorf("corpus has %d usable files but batch size is %d", len(files), batchSize)
	}
	minLen := seqLen + overlap
	for i, f := range files {
		if len(f) < minLen {
			return nil, fmt.Errorf("audio file %d is %d samples long; need at least seq_len+overlap = %d",
				i, len(f), minLen)
		}
	}

	w := &Windower{seqLen: seqLen, overlap: overlap}
	for start := 0; start+batchSize <= len(files); start += batchSize {
		group := files[start : start+batchSize]
		shortest := len(group[0])
		for _, f := range group[1:] {
			if len(f) < shortest {
				shortest = len(f)
			}
		}
		n := (shortest - overlap) / seqLen
		if n == 0 {
			continue
		}
		w.groups = append(w.groups, group)
		w.nChunks = append(w.nChunks, n)
	}
	if len(w.groups) == 0 {
		return nil, errors.New("corpus yields no complete batch group")
	}
	return w, nil
}

// Next returns the following chunk, or ok=false when the sequence is
// exhausted. The returned slices alias the corpus buffers; callers
// must not mutate them.
func (w *Windower) Next() (Chunk, bool) {
	if w.group >= len(w.groups) {
		return Chunk{}, false
	}
	group := w.groups[w.group]
	start := w.chunk * w.seqLen
	samples := make([][]float64, len(group))
	for i, f := range group {
		samples[i] = f[start : start+w.seqLen+w.overlap]
	}
	c := Chunk{Samples: samples, NewFile: w.chunk == 0}

	w.chunk++
	if w.chunk >= w.nChunks[w.group] {
		w.chunk = 0
		w.group++
	}
	return c, true
}

// Reset restarts the sequence from the first chunk of the first group.
func (w *Windower) Reset() {
	w.group = 0
	w.chunk = 0
}

// BatchSize reports the number of batch slots per chunk.
func (w *Windower) BatchSize() int {
	return len(w.groups[0])
}

// Chunks reports the total number of chunks in one full pass.
func (w *Windower) Chunks() int {
	total := 0
	for _, n := range w.nChunks {
		total += n
	}
	return total
}
