// Package serialio wraps a character-device serial port with the
// length-delimited, timed reads and exclusive-write semantics that the Grid+
// wire protocol needs on top of it.
package serialio

import "go.bug.st/serial"

// Parity mirrors the framing options a serial line can be configured with.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// StopBits mirrors the stop-bit counts a serial line can be configured with.
type StopBits int

const (
	OneStopBit StopBits = iota
	OnePointFiveStopBits
	TwoStopBits
)

// Config is an immutable serial line configuration.
type Config struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// New8N1 returns the canonical 8 data bits, no parity, 1 stop bit
// configuration at the given baud rate.
func New8N1(baudRate int) Config {
	return Config{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   ParityNone,
		StopBits: OneStopBit,
	}
}

func (c Config) mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	switch c.Parity {
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityMark:
		mode.Parity = serial.MarkParity
	case ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}
	switch c.StopBits {
	case OnePointFiveStopBits:
		mode.StopBits = serial.OnePointFiveStopBits
	case TwoStopBits:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	return mode
}
