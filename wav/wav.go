// Package wav reads and writes RIFF/WAVE files carrying 16-bit PCM.
// Samples are exposed as float64 amplitudes in [-1, 1]; multi-channel
// input is mixed down to mono on read, and writes are always mono.
package wav

const formatPCM = 1

const (
	riffHeader   = 0x52494646 // "RIFF"
	waveFormat   = 0x57415645 // "WAVE"
	formatHeader = 0x666d7420 // "fmt "
	dataHeader   = 0x64617461 // "data"
)

type header struct {
	Format        uint16
	NChannels     uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}
