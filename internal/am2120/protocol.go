// Package am2120 decodes the single-wire protocol of AM2120-class
// temperature/humidity sensors over a gpio.Line.
//
// A read is host initiated: the host holds the line low for at least 1 ms,
// releases it high for ~40 µs and switches to input. The sensor acknowledges
// with a low then a high pulse, then sends 40 bits. Each bit is a ~50 µs low
// followed by a high whose length encodes the value: ~26 µs for 0, ~70 µs
// for 1. The decoder waits for the low to end, samples the line once at a
// fixed delay into the high and takes the sampled level as the bit value.
// Pulse widths are not measured.
package am2120

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/am2120-sensor/internal/gpio"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// Protocol timing.
const (
	// StartPulse is how long the host holds the line low to wake the sensor.
	StartPulse = 2 * time.Millisecond
	// MinStartPulse is the shortest wake pulse the sensor honours.
	MinStartPulse = time.Millisecond
	// Release is how long the host drives high before handing over the line.
	Release = 40 * time.Microsecond
	// BitSettle is the pause before waiting for each bit.
	BitSettle = time.Microsecond
	// SampleDelay is the fixed offset from the end of a bit's low period to
	// the sample point.
	SampleDelay = 30 * time.Microsecond
	// DefaultMaxPolls bounds every busy-wait for a falling edge.
	DefaultMaxPolls = 1000
)

// FrameBits is the number of bits sampled per read.
const FrameBits = 8 * logic.FrameLen

var (
	// ErrAckTimeout means the sensor never pulled the line low after the
	// start sequence: it is absent, unpowered or unresponsive.
	ErrAckTimeout = errors.New("am2120: no acknowledgement from sensor")
	// ErrBitTimeout means the sensor stopped transmitting mid-frame.
	ErrBitTimeout = errors.New("am2120: timed out waiting for bit")

	errPollLimit = errors.New("poll limit reached")
)

// Timing holds the delays and wait bound used by a Decoder.
type Timing struct {
	StartPulse  time.Duration
	Release     time.Duration
	BitSettle   time.Duration
	SampleDelay time.Duration
	// MaxPolls is the maximum number of reads spent waiting for the line to
	// go low, for the acknowledgement and for each bit.
	MaxPolls int
}

// DefaultTiming returns the reference values.
func DefaultTiming() Timing {
	return Timing{
		StartPulse:  StartPulse,
		Release:     Release,
		BitSettle:   BitSettle,
		SampleDelay: SampleDelay,
		MaxPolls:    DefaultMaxPolls,
	}
}

// Validate rejects timings the sensor cannot work with.
func (t Timing) Validate() error {
	if t.StartPulse < MinStartPulse {
		return fmt.Errorf("am2120: start pulse %v shorter than %v", t.StartPulse, MinStartPulse)
	}
	if t.Release < 0 || t.BitSettle < 0 || t.SampleDelay < 0 {
		return errors.New("am2120: negative delay")
	}
	if t.MaxPolls <= 0 {
		return fmt.Errorf("am2120: max polls must be positive, got %d", t.MaxPolls)
	}
	return nil
}

// State is a step of the read sequence.
type State int

const (
	StateIdle State = iota
	StateStartPulse
	StateReleaseLine
	StateWaitSensorAck
	StateSampleBits
	StateDone
	StateTimedOut
	StateFailed
)

var stateNames = [...]string{
	StateIdle:          "IDLE",
	StateStartPulse:    "START_PULSE",
	StateReleaseLine:   "RELEASE_LINE",
	StateWaitSensorAck: "WAIT_SENSOR_ACK",
	StateSampleBits:    "SAMPLE_BITS",
	StateDone:          "DONE",
	StateTimedOut:      "TIMED_OUT",
	StateFailed:        "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Decoder runs the read sequence on a line. It is not safe for concurrent
// use; Sensor serialises access.
type Decoder struct {
	Timing Timing

	// Delay blocks for d. Nil spins on the monotonic clock, since sleeping
	// is far too coarse for microsecond delays.
	Delay func(d time.Duration)

	state State
	polls int
}

// State returns the last state the decoder reached.
func (d *Decoder) State() State {
	return d.state
}

// Polls returns the number of wait reads spent during the last Decode.
func (d *Decoder) Polls() int {
	return d.polls
}

// Decode issues the start sequence and samples one 40-bit frame, most
// significant bit first. The line is left driven high on return.
func (d *Decoder) Decode(ctx context.Context, line gpio.Line) (logic.RawFrame, error) {
	var frame logic.RawFrame
	d.polls = 0

	d.state = StateStartPulse
	if err := line.SetMode(gpio.Output); err != nil {
		return frame, d.fail(line, fmt.Errorf("start pulse: %w", err))
	}
	if err := line.SetLow(); err != nil {
		return frame, d.fail(line, fmt.Errorf("start pulse: %w", err))
	}
	d.delay(d.Timing.StartPulse)

	d.state = StateReleaseLine
	if err := line.SetHigh(); err != nil {
		return frame, d.fail(line, fmt.Errorf("release line: %w", err))
	}
	d.delay(d.Timing.Release)
	if err := line.SetMode(gpio.Input); err != nil {
		return frame, d.fail(line, fmt.Errorf("release line: %w", err))
	}

	d.state = StateWaitSensorAck
	if err := d.waitPulse(ctx, line); err != nil {
		if errors.Is(err, errPollLimit) {
			err = ErrAckTimeout
		}
		return frame, d.fail(line, err)
	}

	d.state = StateSampleBits
	for i := 0; i < FrameBits; i++ {
		d.delay(d.Timing.BitSettle)
		if err := d.waitPulse(ctx, line); err != nil {
			if errors.Is(err, errPollLimit) {
				err = ErrBitTimeout
			}
			return frame, d.fail(line, fmt.Errorf("bit %d: %w", i, err))
		}
		d.delay(d.Timing.SampleDelay)
		level, err := line.Read()
		if err != nil {
			return frame, d.fail(line, fmt.Errorf("sample bit %d: %w", i, err))
		}
		frame[i/8] = frame[i/8]<<1 | byte(level)
	}

	if err := release(line); err != nil {
		d.state = StateFailed
		return frame, fmt.Errorf("release after frame: %w", err)
	}
	d.state = StateDone
	return frame, nil
}

// waitPulse waits for a low pulse to start and then to end, leaving the
// line at the start of the following high.
func (d *Decoder) waitPulse(ctx context.Context, line gpio.Line) error {
	if err := d.waitFor(ctx, line, gpio.Low); err != nil {
		return err
	}
	return d.waitFor(ctx, line, gpio.High)
}

// waitFor polls until the line reads want, at most MaxPolls times.
func (d *Decoder) waitFor(ctx context.Context, line gpio.Line, want gpio.Level) error {
	for n := 0; n < d.Timing.MaxPolls; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.polls++
		level, err := line.Read()
		if err != nil {
			return fmt.Errorf("wait for %s: %w", want, err)
		}
		if level == want {
			return nil
		}
	}
	return errPollLimit
}

// fail records the terminal state and returns the bus to idle.
// The first error wins over a release error, which is only logged.
func (d *Decoder) fail(line gpio.Line, err error) error {
	if errors.Is(err, ErrAckTimeout) || errors.Is(err, ErrBitTimeout) {
		d.state = StateTimedOut
	} else {
		d.state = StateFailed
	}
	if rerr := release(line); rerr != nil {
		log.Printf("am2120: release line after %s: %v", d.state, rerr)
	}
	return err
}

// release drives the line high for idle.
func release(line gpio.Line) error {
	if err := line.SetMode(gpio.Output); err != nil {
		return err
	}
	return line.SetHigh()
}

func (d *Decoder) delay(dur time.Duration) {
	if dur <= 0 {
		return
	}
	if d.Delay != nil {
		d.Delay(dur)
		return
	}
	spin(dur)
}

func spin(dur time.Duration) {
	start := time.Now()
	for time.Since(start) < dur {
	}
}
