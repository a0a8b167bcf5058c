package am2120

import (
	"github.com/sweeney/am2120-sensor/internal/gpio"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// SimulateFrame returns the levels a Decoder reads from a sensor sending
// frame. The acknowledgement and every bit are a pulse: polls high reads,
// the falling edge, polls low reads, the rising edge. Each bit pulse is
// followed by its sample. Feed it to gpio.NewFakeLine.
func SimulateFrame(frame logic.RawFrame, polls int) []gpio.Level {
	levels := make([]gpio.Level, 0, (FrameBits+1)*(2*polls+2)+FrameBits)
	repeat := func(l gpio.Level, n int) {
		for i := 0; i < n; i++ {
			levels = append(levels, l)
		}
	}
	pulse := func() {
		repeat(gpio.High, polls)
		levels = append(levels, gpio.Low)
		repeat(gpio.Low, polls)
		levels = append(levels, gpio.High)
	}

	pulse()
	for i := 0; i < FrameBits; i++ {
		pulse()
		bit := frame[i/8]>>(7-uint(i%8))&1
		levels = append(levels, gpio.Level(bit))
	}
	return levels
}
