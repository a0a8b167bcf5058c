package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphLine drives a pin through periph.io. It works on hosts where the
// character device is unavailable and periph has a memory-mapped driver.
type PeriphLine struct {
	pin  pgpio.PinIO
	mode Mode
}

// NewPeriphLine initialises the periph host drivers and looks up the pin by
// name, e.g. "GPIO4".
func NewPeriphLine(name string) (*PeriphLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periph pin %q not found", name)
	}
	return WrapPeriphPin(p)
}

// WrapPeriphPin adapts an already resolved periph pin. The pin is put in
// input mode with pull-up.
func WrapPeriphPin(p pgpio.PinIO) (*PeriphLine, error) {
	l := &PeriphLine{pin: p}
	if err := l.SetMode(Input); err != nil {
		return nil, err
	}
	return l, nil
}

// SetMode reconfigures the pin direction. Output starts high.
func (l *PeriphLine) SetMode(m Mode) error {
	var err error
	switch m {
	case Output:
		err = l.pin.Out(pgpio.High)
	case Input:
		err = l.pin.In(pgpio.PullUp, pgpio.NoEdge)
	default:
		return fmt.Errorf("set mode: unknown %s", m)
	}
	if err != nil {
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	l.mode = m
	return nil
}

// SetLow drives the pin low.
func (l *PeriphLine) SetLow() error {
	checkMode("SetLow", l.mode, Output)
	if err := l.pin.Out(pgpio.Low); err != nil {
		return fmt.Errorf("set low: %w", err)
	}
	return nil
}

// SetHigh drives the pin high.
func (l *PeriphLine) SetHigh() error {
	checkMode("SetHigh", l.mode, Output)
	if err := l.pin.Out(pgpio.High); err != nil {
		return fmt.Errorf("set high: %w", err)
	}
	return nil
}

// Read samples the pin.
func (l *PeriphLine) Read() (Level, error) {
	checkMode("Read", l.mode, Input)
	if l.pin.Read() == pgpio.High {
		return High, nil
	}
	return Low, nil
}

// Close leaves the pin as an input with pull-up.
func (l *PeriphLine) Close() error {
	if err := l.pin.In(pgpio.PullUp, pgpio.NoEdge); err != nil {
		return fmt.Errorf("release pin: %w", err)
	}
	return nil
}
