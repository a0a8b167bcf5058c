package am2120

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sweeney/am2120-sensor/internal/gpio"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// delayRecorder replaces the busy-wait and records every requested delay.
type delayRecorder struct {
	delays []time.Duration
}

func (r *delayRecorder) delay(d time.Duration) {
	r.delays = append(r.delays, d)
}

func newDecoder(maxPolls int) (*Decoder, *delayRecorder) {
	rec := &delayRecorder{}
	timing := DefaultTiming()
	timing.MaxPolls = maxPolls
	return &Decoder{Timing: timing, Delay: rec.delay}, rec
}

func TestDecodeKnownFrame(t *testing.T) {
	want := logic.RawFrame{0x02, 0x58, 0x00, 0x96, 0xF0}
	line := gpio.NewFakeLine(SimulateFrame(want, 3))
	d, _ := newDecoder(DefaultMaxPolls)

	got, err := d.Decode(context.Background(), line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("frame: got %s, want %s", got, want)
	}
	if d.State() != StateDone {
		t.Errorf("state: got %s, want DONE", d.State())
	}
}

func TestDecodeBitPacking(t *testing.T) {
	tests := []struct {
		name  string
		frame logic.RawFrame
	}{
		{"alternating", logic.RawFrame{0xAA, 0x55, 0xAA, 0x55, 0xFF}},
		{"msb first", logic.RawFrame{0x80, 0x01, 0x80, 0x01, 0x02}},
		{"all ones", logic.RawFrame{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"all zeros", logic.RawFrame{}},
		{"mixed", logic.RawFrame{0xA5, 0x3C, 0x0F, 0xF0, 0x81}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := gpio.NewFakeLine(SimulateFrame(tt.frame, 0))
			d, _ := newDecoder(DefaultMaxPolls)

			got, err := d.Decode(context.Background(), line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.frame {
				t.Errorf("got %s, want %s", got, tt.frame)
			}
		})
	}
}

func TestDecodeManualBitStream(t *testing.T) {
	// 40 bits written out by hand: 0x12 0x34 0x56 0x78 0x14.
	stream := "00010010" + "00110100" + "01010110" + "01111000" + "00010100"
	levels := []gpio.Level{gpio.Low, gpio.High} // acknowledgement
	for _, c := range stream {
		levels = append(levels, gpio.Low, gpio.High)
		if c == '1' {
			levels = append(levels, gpio.High)
		} else {
			levels = append(levels, gpio.Low)
		}
	}

	d, _ := newDecoder(10)
	got, err := d.Decode(context.Background(), gpio.NewFakeLine(levels))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := logic.RawFrame{0x12, 0x34, 0x56, 0x78, 0x14}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDecodeLineSequence(t *testing.T) {
	line := gpio.NewFakeLine(SimulateFrame(logic.RawFrame{0x01, 0x02, 0x03, 0x04, 0x0A}, 1))
	d, rec := newDecoder(DefaultMaxPolls)

	if _, err := d.Decode(context.Background(), line); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]gpio.Mode{gpio.Output, gpio.Input, gpio.Output}, line.Modes); diff != "" {
		t.Errorf("modes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]gpio.Level{gpio.Low, gpio.High, gpio.High}, line.Writes); diff != "" {
		t.Errorf("writes (-want +got):\n%s", diff)
	}

	wantDelays := []time.Duration{StartPulse, Release}
	for i := 0; i < FrameBits; i++ {
		wantDelays = append(wantDelays, BitSettle, SampleDelay)
	}
	if diff := cmp.Diff(wantDelays, rec.delays); diff != "" {
		t.Errorf("delays (-want +got):\n%s", diff)
	}

	// 4 wait reads per pulse for the ack and each bit, plus one sample per bit.
	if want := 4*(FrameBits+1) + FrameBits; line.Reads != want {
		t.Errorf("reads: got %d, want %d", line.Reads, want)
	}
	if d.Polls() != 4*(FrameBits+1) {
		t.Errorf("polls: got %d, want %d", d.Polls(), 4*(FrameBits+1))
	}
}

// clockedLine plays a waveform against a virtual microsecond clock. Time
// advances through the decoder's delays and by readCost per Read. The
// waveform starts when the host switches the line to input.
type clockedLine struct {
	segments []segment
	readCost time.Duration
	now      time.Duration
	start    time.Duration
	mode     gpio.Mode
}

type segment struct {
	level gpio.Level
	width time.Duration
}

func (c *clockedLine) delay(d time.Duration) { c.now += d }

func (c *clockedLine) SetMode(m gpio.Mode) error {
	c.mode = m
	if m == gpio.Input {
		c.start = c.now
	}
	return nil
}

func (c *clockedLine) SetLow() error  { return nil }
func (c *clockedLine) SetHigh() error { return nil }
func (c *clockedLine) Close() error   { return nil }

func (c *clockedLine) Read() (gpio.Level, error) {
	at := c.now - c.start
	c.now += c.readCost
	for _, s := range c.segments {
		if at < s.width {
			return s.level, nil
		}
		at -= s.width
	}
	return gpio.High, nil
}

// sensorWaveform renders frame with datasheet pulse widths.
func sensorWaveform(frame logic.RawFrame) []segment {
	us := time.Microsecond
	w := []segment{
		{gpio.High, 20 * us},
		{gpio.Low, 80 * us},
		{gpio.High, 80 * us},
	}
	for i := 0; i < FrameBits; i++ {
		high := 26 * us
		if frame[i/8]>>(7-uint(i%8))&1 == 1 {
			high = 70 * us
		}
		w = append(w, segment{gpio.Low, 50 * us}, segment{gpio.High, high})
	}
	return append(w, segment{gpio.Low, 50 * us})
}

func TestDecodeTimedWaveform(t *testing.T) {
	tests := []struct {
		name  string
		frame logic.RawFrame
	}{
		{"reading", logic.RawFrame{0x02, 0x58, 0x00, 0x96, 0xF0}},
		{"alternating", logic.RawFrame{0xAA, 0x55, 0xAA, 0x55, 0xFF}},
		{"all ones", logic.RawFrame{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"all zeros", logic.RawFrame{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := &clockedLine{segments: sensorWaveform(tt.frame), readCost: time.Microsecond}
			d := &Decoder{Timing: DefaultTiming(), Delay: line.delay}

			got, err := d.Decode(context.Background(), line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.frame {
				t.Errorf("got %s, want %s", got, tt.frame)
			}
		})
	}
}

// failingRelease accepts the start sequence and then rejects every write.
type failingRelease struct {
	*gpio.FakeLine
	err error
}

func (f *failingRelease) SetHigh() error {
	if f.Reads > 0 {
		return f.err
	}
	return f.FakeLine.SetHigh()
}

func TestDecodeLogsReleaseError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	line := &failingRelease{FakeLine: gpio.NewFakeLine([]gpio.Level{gpio.High}), err: errors.New("line busy")}
	d, _ := newDecoder(5)

	_, err := d.Decode(context.Background(), line)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if !strings.Contains(buf.String(), "line busy") {
		t.Errorf("release error not logged: %q", buf.String())
	}
}

func TestDecodeAckTimeout(t *testing.T) {
	const maxPolls = 50
	line := gpio.NewFakeLine([]gpio.Level{gpio.High})
	d, _ := newDecoder(maxPolls)

	_, err := d.Decode(context.Background(), line)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if line.Reads > maxPolls {
		t.Errorf("reads %d exceed max polls %d", line.Reads, maxPolls)
	}
	if line.Reads != maxPolls {
		t.Errorf("reads: got %d, want %d", line.Reads, maxPolls)
	}
	if d.State() != StateTimedOut {
		t.Errorf("state: got %s, want TIMED_OUT", d.State())
	}

	// Line is returned to the idle high state.
	if line.Mode != gpio.Output {
		t.Errorf("mode after timeout: got %s, want OUTPUT", line.Mode)
	}
	if last := line.Writes[len(line.Writes)-1]; last != gpio.High {
		t.Errorf("last write: got %s, want HIGH", last)
	}
}

func TestDecodeBitTimeout(t *testing.T) {
	// Ack, bit 0 = 1, then the sensor goes quiet with the line high.
	line := gpio.NewFakeLine([]gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.High})
	d, _ := newDecoder(20)

	_, err := d.Decode(context.Background(), line)
	if !errors.Is(err, ErrBitTimeout) {
		t.Fatalf("expected ErrBitTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "bit 1") {
		t.Errorf("error should name the bit: %v", err)
	}
	if d.State() != StateTimedOut {
		t.Errorf("state: got %s, want TIMED_OUT", d.State())
	}
}

func TestDecodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line := gpio.NewFakeLine(nil)
	d, _ := newDecoder(DefaultMaxPolls)

	_, err := d.Decode(ctx, line)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if line.Reads != 0 {
		t.Errorf("expected no reads after cancel, got %d", line.Reads)
	}
	if d.State() != StateFailed {
		t.Errorf("state: got %s, want FAILED", d.State())
	}
}

func TestDecodeReadError(t *testing.T) {
	line := gpio.NewFakeLine(nil)
	line.ReadError = errors.New("ioctl failed")
	d, _ := newDecoder(DefaultMaxPolls)

	_, err := d.Decode(context.Background(), line)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAckTimeout) {
		t.Error("read error must not be reported as a timeout")
	}
	if !errors.Is(err, line.ReadError) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestDecodeWriteError(t *testing.T) {
	line := gpio.NewFakeLine(nil)
	line.WriteError = errors.New("busy")
	d, _ := newDecoder(DefaultMaxPolls)

	_, err := d.Decode(context.Background(), line)
	if !errors.Is(err, line.WriteError) {
		t.Fatalf("expected write error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "start pulse") {
		t.Errorf("error should name the step: %v", err)
	}
	if line.Reads != 0 {
		t.Errorf("expected no reads, got %d", line.Reads)
	}
}

func TestDecodeResetsPollCount(t *testing.T) {
	frame := logic.RawFrame{0x01, 0x01, 0x01, 0x01, 0x04}
	d, _ := newDecoder(DefaultMaxPolls)

	d.Decode(context.Background(), gpio.NewFakeLine(SimulateFrame(frame, 2)))
	first := d.Polls()
	d.Decode(context.Background(), gpio.NewFakeLine(SimulateFrame(frame, 2)))

	if d.Polls() != first {
		t.Errorf("polls: got %d on second decode, want %d", d.Polls(), first)
	}
}

func TestTimingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Timing)
		wantErr bool
	}{
		{"default", func(*Timing) {}, false},
		{"minimum start pulse", func(t *Timing) { t.StartPulse = MinStartPulse }, false},
		{"short start pulse", func(t *Timing) { t.StartPulse = 500 * time.Microsecond }, true},
		{"zero polls", func(t *Timing) { t.MaxPolls = 0 }, true},
		{"negative sample delay", func(t *Timing) { t.SampleDelay = -time.Microsecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timing := DefaultTiming()
			tt.mutate(&timing)
			err := timing.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReferenceTiming(t *testing.T) {
	if StartPulse != 2*time.Millisecond {
		t.Errorf("StartPulse: got %v", StartPulse)
	}
	if Release != 40*time.Microsecond {
		t.Errorf("Release: got %v", Release)
	}
	if SampleDelay != 30*time.Microsecond {
		t.Errorf("SampleDelay: got %v", SampleDelay)
	}
}

func TestStateString(t *testing.T) {
	if got := StateWaitSensorAck.String(); got != "WAIT_SENSOR_ACK" {
		t.Errorf("got %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("got %q", got)
	}
}

func TestSimulateFrameLength(t *testing.T) {
	levels := SimulateFrame(logic.RawFrame{}, 2)
	// 6 levels per pulse for the ack and each bit, plus the sample.
	if want := 6*(FrameBits+1) + FrameBits; len(levels) != want {
		t.Errorf("got %d levels, want %d", len(levels), want)
	}
}
