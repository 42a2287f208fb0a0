package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prism-go/samplernn/wav"
)

func writeTone(t *testing.T, path string, n int, freq float64) []float64 {
	t.Helper()
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.4 * math.Sin(2*math.Pi*freq*float64(i)/16000)
	}
	if err := wav.Write(path, samples, 16000); err != nil {
		t.Fatal(err)
	}
	return samples
}

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeTone(t, filepath.Join(dir, "b.wav"), 100, 440)
	writeTone(t, filepath.Join(sub, "a.wav"), 100, 220)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := FindFiles(dir)
	if err != nil {
		t.Fatalf("FindFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("found %d files, want 2 (got %v)", len(files), files)
	}
	if files[0] > files[1] {
		t.Error("files not sorted")
	}
}

func TestFindFilesEmptyDir(t *testing.T) {
	_, err := FindFiles(t.TempDir())
	if !errors.Is(err, ErrNoFiles) {
		t.Errorf("err = %v, want ErrNoFiles", err)
	}
}

func TestFindFilesMissingDir(t *testing.T) {
	if _, err := FindFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("FindFiles accepted a missing directory")
	}
}

func TestLoadCorpusSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "good.wav"), 200, 440)
	if err := os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("not a wav"), 0644); err != nil {
		t.Fatal(err)
	}

	corpus, err := LoadCorpus(dir)
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	if len(corpus) != 1 {
		t.Errorf("corpus has %d files, want 1 (bad file skipped)", len(corpus))
	}
}

func TestWindowerChunkGeometry(t *testing.T) {
	// One file of 3 chunks plus overlap: 3*8 + 4 = 28 samples.
	file := make([]float64, 28)
	for i := range file {
		file[i] = float64(i)
	}

	w, err := NewWindower([][]float64{file}, 1, 8, 4)
	if err != nil {
		t.Fatalf("NewWindower: %v", err)
	}
	if w.Chunks() != 3 {
		t.Fatalf("Chunks() = %d, want 3", w.Chunks())
	}

	var prev Chunk
	for k := 0; k < 3; k++ {
		c, ok := w.Next()
		if !ok {
			t.Fatalf("Next() exhausted at chunk %d", k)
		}
		if len(c.Samples) != 1 || len(c.Samples[0]) != 12 {
			t.Fatalf("chunk %d shape %dx%d, want 1x12", k, len(c.Samples), len(c.Samples[0]))
		}
		if c.NewFile != (k == 0) {
			t.Errorf("chunk %d NewFile = %v", k, c.NewFile)
		}
		if c.Samples[0][0] != float64(k*8) {
			t.Errorf("chunk %d starts at %v, want %v (stride = seq_len)", k, c.Samples[0][0], k*8)
		}
		if k > 0 {
			// The first `overlap` samples repeat the previous chunk's tail.
			for i := 0; i < 4; i++ {
				if c.Samples[0][i] != prev.Samples[0][8+i] {
					t.Errorf("chunk %d overlap sample %d = %v, want %v", k, i, c.Samples[0][i], prev.Samples[0][8+i])
				}
			}
		}
		prev = c
	}
	if _, ok := w.Next(); ok {
		t.Error("Next() produced a fourth chunk")
	}
}

func TestWindowerRestartsAfterReset(t *testing.T) {
	file := make([]float64, 20) // one chunk with seqLen=16, overlap=4
	w, err := NewWindower([][]float64{file}, 1, 16, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Next(); !ok {
		t.Fatal("first pass empty")
	}
	if _, ok := w.Next(); ok {
		t.Fatal("expected exhaustion")
	}
	w.Reset()
	c, ok := w.Next()
	if !ok || !c.NewFile {
		t.Error("Reset did not restart the sequence at a NewFile chunk")
	}
}

func TestWindowerTwoFilesSignalNewFile(t *testing.T) {
	f1 := make([]float64, 36) // 2 chunks at seqLen=16, overlap=4
	f2 := make([]float64, 36)
	for i := range f2 {
		f2[i] = 0.5
	}

	w, err := NewWindower([][]float64{f1, f2}, 1, 16, 4)
	if err != nil {
		t.Fatal(err)
	}
	var flags []bool
	for {
		c, ok := w.Next()
		if !ok {
			break
		}
		flags = append(flags, c.NewFile)
	}
	want := []bool{true, false, true, false}
	if len(flags) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(flags), len(want))
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("chunk %d NewFile = %v, want %v", i, flags[i], want[i])
		}
	}
}

func TestWindowerGroupTruncatesToShortest(t *testing.T) {
	long := make([]float64, 100)
	short := make([]float64, 36) // 2 chunks at seqLen=16, overlap=4
	w, err := NewWindower([][]float64{long, short}, 2, 16, 4)
	if err != nil {
		t.Fatal(err)
	}
	if w.Chunks() != 2 {
		t.Errorf("Chunks() = %d, want 2 (group cut to shortest member)", w.Chunks())
	}
}

func TestWindowerRejectsShortFile(t *testing.T) {
	_, err := NewWindower([][]float64{make([]float64, 10)}, 1, 16, 4)
	if err == nil {
		t.Error("NewWindower accepted a file shorter than one chunk")
	}
}

func TestWindowerRejectsEmptyCorpus(t *testing.T) {
	if _, err := NewWindower(nil, 1, 16, 4); err == nil {
		t.Error("NewWindower accepted an empty corpus")
	}
}
