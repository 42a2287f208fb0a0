package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Read decodes a WAVE file into mono float64 samples in [-1, 1] and
// reports the file's sample rate. Multi-channel audio is averaged down
// to one channel. Only 16-bit PCM is supported.
func Read(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return decode(f, path)
}

func decode(r io.ReadSeeker, path string) ([]float64, int, error) {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, 0, fmt.Errorf("%s: reading RIFF header: %w", path, err)
	}
	if magic != riffHeader {
		return nil, 0, fmt.Errorf("%s: not a RIFF file", path)
	}

	var riffSize uint32
	if err := binary.Read(r, binary.LittleEndian, &riffSize); err != nil {
		return nil, 0, fmt.Errorf("%s: reading RIFF size: %w", path, err)
	}
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, 0, fmt.Errorf("%s: reading WAVE tag: %w", path, err)
	}
	if magic != waveFormat {
		return nil, 0, fmt.Errorf("%s: not a WAVE file", path)
	}

	var hdr header
	var data []byte
	hasHeader, hasData := false, false

	for !hasHeader || !hasData {
		var chunkSize uint32
		if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
			return nil, 0, fmt.Errorf("%s: truncated WAVE file: %w", path, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, 0, fmt.Errorf("%s: truncated chunk header: %w", path, err)
		}

		start, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, err
		}

		switch magic {
		case formatHeader:
			if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
				return nil, 0, fmt.Errorf("%s: reading format chunk: %w", path, err)
			}
			hasHeader = true
		case dataHeader:
			data = make([]byte, chunkSize)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, fmt.Errorf("%s: reading data chunk: %w", path, err)
			}
			hasData = true
		}

		if _, err := r.Seek(start+int64(chunkSize), io.SeekStart); err != nil {
			return nil, 0, err
		}
	}

	if hdr.Format != formatPCM {
		return nil, 0, fmt.Errorf("%s: unsupported WAVE format %d (want PCM)", path, hdr.Format)
	}
	if hdr.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("%s: unsupported bit depth %d (want 16)", path, hdr.BitsPerSample)
	}
	if hdr.NChannels == 0 {
		return nil, 0, fmt.Errorf("%s: zero channel count", path)
	}

	nch := int(hdr.NChannels)
	frames := len(data) / (2 * nch)
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < nch; c++ {
			off := (i*nch + c) * 2
			// 32767 matches the write-side scale, so a round trip is
			// within half an LSB. Foreign files may hold -32768.
			v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			s := float64(v) / 32767.0
			if s < -1 {
				s = -1
			}
			sum += s
		}
		samples[i] = sum / float64(nch)
	}
	return samples, int(hdr.SampleRate), nil
}
