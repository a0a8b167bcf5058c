// Package gpio provides a single bidirectional GPIO line with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// Level is the electrical state of a line. Low and High pack directly into a bit.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// Mode is the direction a line is configured for.
type Mode uint8

const (
	Output Mode = iota
	Input
)

func (m Mode) String() string {
	switch m {
	case Output:
		return "OUTPUT"
	case Input:
		return "INPUT"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Line drives and samples one single-wire data pin.
// Every call reflects the instantaneous electrical state; nothing is buffered.
type Line interface {
	// SetMode switches the line direction.
	SetMode(m Mode) error

	// SetLow drives the line low. Only valid in Output mode.
	SetLow() error

	// SetHigh drives the line high. Only valid in Output mode.
	SetHigh() error

	// Read samples the line. Only valid in Input mode.
	Read() (Level, error)

	// Close releases GPIO resources.
	Close() error
}

// ModeError reports a caller contract violation, such as driving a line
// configured as input. Implementations panic with it: it is a programming
// error, not a runtime condition to recover from.
type ModeError struct {
	Op   string
	Mode Mode
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("gpio: %s not allowed in %s mode", e.Op, e.Mode)
}

// checkMode panics with a ModeError if current is not want.
func checkMode(op string, current, want Mode) {
	if current != want {
		panic(&ModeError{Op: op, Mode: current})
	}
}

// Default line location (BCM numbering on a Raspberry Pi).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 4
)
