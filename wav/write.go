package wav

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Write encodes mono float64 samples in [-1, 1] as a 16-bit PCM WAVE
// file. Out-of-range amplitudes are clipped.
func Write(path string, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := encode(w, samples, sampleRate); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func encode(w io.Writer, samples []float64, sampleRate int) error {
	hdr := header{
		Format:        formatPCM,
		NChannels:     1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
	}
	dataSize := uint32(len(samples) * 2)

	if err := binary.Write(w, binary.BigEndian, uint32(riffHeader)); err != nil {
		return err
	}
	// RIFF size: "WAVE" + fmt chunk header and body + data chunk header + data.
	if err := binary.Write(w, binary.LittleEndian, 4+8+16+8+dataSize); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(waveFormat)); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(formatHeader)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(dataHeader)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}
