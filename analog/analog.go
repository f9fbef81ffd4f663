package analog

import "sort"

// Source is a single analog input channel.
type Source interface {
	// Read returns one raw sample from the channel.
	Read() (int, error)

	// Close releases any resources held by the source.
	Close() error
}

// SourceFunc adapts a plain function to the Source interface.
// Used by tests and by in-process fakes.
type SourceFunc func() (int, error)

// Read implements Source.Read.
func (f SourceFunc) Read() (int, error) { return f() }

// Close implements Source.Close.
func (f SourceFunc) Close() error { return nil }

// Samples is the number of raw readings taken per stable read.
// Must stay odd so there is a well-defined middle after trimming.
const Samples = 5

// Stable reads Samples raw values, drops the lowest and highest, and
// returns the mean of the rest. The feedback line occasionally spikes to
// physically impossible values; trimming isolated spikes avoids the lag a
// moving-average filter would add.
func Stable(src Source) (int, error) {
	v := make([]int, Samples)
	for i := range v {
		r, err := src.Read()
		if err != nil {
			return 0, err
		}
		v[i] = r
	}
	sort.Ints(v)

	sum := 0
	for _, r := range v[1 : Samples-1] {
		sum += r
	}
	return sum / (Samples - 2), nil
}

// Config holds configuration for analog source implementations.
type Config struct {
	Device string `yaml:"device"` // e.g. "/dev/serial0"
	Baud   int    `yaml:"baud"`   // baud rate, default 115200
}

// New creates a Source based on the provided configuration.
func New(cfg Config) (Source, error) {
	return NewSerial(cfg.Device, cfg.Baud)
}
