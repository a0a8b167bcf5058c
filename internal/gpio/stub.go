//go:build !linux

package gpio

import "errors"

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// NewRealLine returns an error on non-Linux platforms.
func NewRealLine(chipName string, pin int) (*RealLine, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetMode is not implemented on non-Linux platforms.
func (r *RealLine) SetMode(m Mode) error {
	return errors.New("gpio: not supported")
}

// SetLow is not implemented on non-Linux platforms.
func (r *RealLine) SetLow() error {
	return errors.New("gpio: not supported")
}

// SetHigh is not implemented on non-Linux platforms.
func (r *RealLine) SetHigh() error {
	return errors.New("gpio: not supported")
}

// Read is not implemented on non-Linux platforms.
func (r *RealLine) Read() (Level, error) {
	return Low, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealLine) Close() error {
	return nil
}
