package analog

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Serial implements Source for an external ADC board that streams readings
// over a serial line. The Pi has no onboard ADC, so the servo's feedback
// voltage is sampled by a small helper board.
// Frame format: [0x02][hi][lo][checksum][0x03], checksum = hi XOR lo.
type Serial struct {
	port    io.ReadCloser
	device  string
	timeout time.Duration
}

const (
	frameSTX = 0x02
	frameETX = 0x03
	frameLen = 5
)

// errReadTimeout marks a read that expired with the line idle, as opposed
// to a port failure.
var errReadTimeout = errors.New("serial read timeout")

// NewSerial opens an ADC bridge on the given serial device.
func NewSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 115200
	}

	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	s := &Serial{port: port, device: device, timeout: 3 * time.Second}
	s.flush()
	return s, nil
}

// Read implements Source.Read. It waits for the next valid frame from the
// bridge, skipping garbage until a frame boundary is found. A quiet line
// times out; a failing port surfaces its own error.
func (s *Serial) Read() (int, error) {
	deadline := time.Now().Add(s.timeout)

	for time.Now().Before(deadline) {
		v, ok, err := s.readFrame()
		if err != nil {
			return 0, err
		}
		if ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no frame from ADC bridge on %s", s.device)
}

func (s *Serial) readFrame() (int, bool, error) {
	b, err := s.readByte()
	if err != nil {
		return 0, false, ignoreTimeout(err)
	}
	if b != frameSTX {
		return 0, false, nil // resync on next byte
	}

	var rest [frameLen - 1]byte
	for i := range rest {
		rest[i], err = s.readByte()
		if err != nil {
			return 0, false, ignoreTimeout(err)
		}
	}

	hi, lo, sum, etx := rest[0], rest[1], rest[2], rest[3]
	if etx != frameETX || sum != hi^lo {
		return 0, false, nil
	}
	return int(hi)<<8 | int(lo), true, nil
}

// ignoreTimeout keeps the Read loop polling through quiet periods while
// letting real port failures through.
func ignoreTimeout(err error) error {
	if errors.Is(err, errReadTimeout) {
		return nil
	}
	return err
}

func (s *Serial) readByte() (byte, error) {
	var buf [1]byte
	n, err := s.port.Read(buf[:])
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		// The port's ReadTimeout expired with nothing on the line.
		return 0, errReadTimeout
	}
	if err != nil {
		return 0, fmt.Errorf("serial read: %w", err)
	}
	return buf[0], nil
}

// flush drains any stale bytes sitting in the port buffer.
func (s *Serial) flush() {
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

// Close implements Source.Close.
func (s *Serial) Close() error {
	return s.port.Close()
}
