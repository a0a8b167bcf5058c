package am2120

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sweeney/am2120-sensor/internal/gpio"
	"github.com/sweeney/am2120-sensor/internal/logic"
	"periph.io/x/conn/v3/physic"
)

// Opts configures a Sensor.
type Opts struct {
	Timing Timing
	Units  logic.Units
	// PauseGC disables the garbage collector and pins the goroutine to its
	// OS thread for the duration of a read.
	PauseGC bool
	// Delay overrides the busy-wait used between line operations.
	Delay func(d time.Duration)
}

// DefaultOpts returns the recommended configuration.
func DefaultOpts() Opts {
	return Opts{
		Timing:  DefaultTiming(),
		Units:   logic.UnitsTenths,
		PauseGC: true,
	}
}

// Sensor is the exclusive owner of one line with an AM2120 attached.
// Reads are serialised; the protocol is not reentrant.
type Sensor struct {
	mu      sync.Mutex
	line    gpio.Line
	dec     Decoder
	units   logic.Units
	pauseGC bool
}

// NewSensor takes ownership of line. A nil opts uses DefaultOpts.
func NewSensor(line gpio.Line, opts *Opts) (*Sensor, error) {
	if line == nil {
		return nil, errors.New("am2120: nil line")
	}
	if opts == nil {
		o := DefaultOpts()
		opts = &o
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, err
	}
	units := opts.Units
	if units == "" {
		units = logic.UnitsTenths
	}
	return &Sensor{
		line:    line,
		dec:     Decoder{Timing: opts.Timing, Delay: opts.Delay},
		units:   units,
		pauseGC: opts.PauseGC,
	}, nil
}

func (s *Sensor) String() string {
	return "AM2120"
}

// Units returns the scaling applied to readings.
func (s *Sensor) Units() logic.Units {
	return s.units
}

// ReadFrame performs one full read and returns the raw bytes.
func (s *Sensor) ReadFrame(ctx context.Context) (logic.RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pauseGC {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		gcPercent := debug.SetGCPercent(-1)
		defer debug.SetGCPercent(gcPercent)
	}

	return s.dec.Decode(ctx, s.line)
}

// Read performs one full read and interprets it. A checksum mismatch is not
// an error; check Reading.ChecksumValid. On failure the Reading is zero.
func (s *Sensor) Read(ctx context.Context) (logic.Reading, error) {
	frame, err := s.ReadFrame(ctx)
	if err != nil {
		return logic.Reading{}, err
	}
	return logic.Interpret(frame, s.units), nil
}

// Sense reads the sensor into env the way periph environment sensors do.
// Unlike Read, a checksum mismatch is returned as logic.ErrChecksum.
func (s *Sensor) Sense(env *physic.Env) error {
	r, err := s.Read(context.Background())
	if err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	*env = Env(r)
	return nil
}

// Precision reports the resolution of one count in the configured units.
func (s *Sensor) Precision(env *physic.Env) {
	*env = Env(logic.Reading{Humidity: 1, Temperature: 1, Units: s.units})
	env.Temperature -= physic.ZeroCelsius
}

// Halt releases the line.
func (s *Sensor) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line.Close()
}

// Env converts a reading into periph physical units.
func Env(r logic.Reading) physic.Env {
	tempStep := 100 * physic.MilliKelvin
	humStep := physic.MilliRH
	if r.Units == logic.UnitsWhole {
		tempStep = physic.Kelvin
		humStep = physic.PercentRH
	}
	return physic.Env{
		Temperature: physic.ZeroCelsius + physic.Temperature(r.Temperature)*tempStep,
		Humidity:    physic.RelativeHumidity(r.Humidity) * humStep,
	}
}

// Classify maps the result of Read to an outcome.
func Classify(r logic.Reading, err error) logic.Outcome {
	switch {
	case err == nil && r.ChecksumValid:
		return logic.OutcomeOK
	case err == nil:
		return logic.OutcomeChecksumMismatch
	case errors.Is(err, ErrAckTimeout):
		return logic.OutcomeAckTimeout
	case errors.Is(err, ErrBitTimeout):
		return logic.OutcomeBitTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return logic.OutcomeCanceled
	default:
		return logic.OutcomeLineFault
	}
}
