//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine drives a pin through the Linux GPIO character device.
type RealLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	mode Mode
}

// NewRealLine requests the given line offset on chip for exclusive use.
// The line starts as an input with pull-up, which is the idle state of the bus.
func NewRealLine(chipName string, pin int) (*RealLine, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("am2120-sensor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}

	return &RealLine{
		chip: chip,
		line: line,
		mode: Input,
	}, nil
}

// SetMode reconfigures the line direction. Switching to output drives high
// so the bus does not glitch low before the caller writes.
func (r *RealLine) SetMode(m Mode) error {
	var err error
	switch m {
	case Output:
		err = r.line.Reconfigure(gpiocdev.AsOutput(1))
	case Input:
		err = r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
	default:
		return fmt.Errorf("set mode: unknown %s", m)
	}
	if err != nil {
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	r.mode = m
	return nil
}

// SetLow drives the line low.
func (r *RealLine) SetLow() error {
	checkMode("SetLow", r.mode, Output)
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("set low: %w", err)
	}
	return nil
}

// SetHigh drives the line high.
func (r *RealLine) SetHigh() error {
	checkMode("SetHigh", r.mode, Output)
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("set high: %w", err)
	}
	return nil
}

// Read samples the line.
func (r *RealLine) Read() (Level, error) {
	checkMode("Read", r.mode, Input)
	v, err := r.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin: %w", err)
	}
	if v == 0 {
		return Low, nil
	}
	return High, nil
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-up before closing so the bus is
// left idle for the sensor.
func (r *RealLine) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
