package gpio

// FakeLine is a test double that replays scripted levels.
// It enforces the mode contract the same way the real lines do.
type FakeLine struct {
	// Levels contains scripted values to return.
	// Each call to Read() consumes the next level.
	Levels []Level

	// index tracks current position in Levels
	index int

	// Mode is the current direction. A new FakeLine starts as Input.
	Mode Mode

	// Modes records every SetMode call in order.
	Modes []Mode

	// Writes records every level driven by SetLow/SetHigh in order.
	Writes []Level

	// Reads counts calls to Read().
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// WriteError, if set, will be returned by SetLow/SetHigh
	WriteError error
}

// NewFakeLine creates a FakeLine with the given levels.
func NewFakeLine(levels []Level) *FakeLine {
	return &FakeLine{Levels: levels, Mode: Input}
}

// SetMode records the direction change.
func (f *FakeLine) SetMode(m Mode) error {
	f.Mode = m
	f.Modes = append(f.Modes, m)
	return nil
}

// SetLow records a low write.
func (f *FakeLine) SetLow() error {
	return f.write("SetLow", Low)
}

// SetHigh records a high write.
func (f *FakeLine) SetHigh() error {
	return f.write("SetHigh", High)
}

func (f *FakeLine) write(op string, l Level) error {
	checkMode(op, f.Mode, Output)
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, l)
	return nil
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
// With no levels configured the line floats high, as a pulled-up bus does.
func (f *FakeLine) Read() (Level, error) {
	checkMode("Read", f.Mode, Input)
	f.Reads++
	if f.ReadError != nil {
		return Low, f.ReadError
	}

	if len(f.Levels) == 0 {
		return High, nil
	}

	l := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return l, nil
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script and clears recorded activity.
func (f *FakeLine) Reset() {
	f.index = 0
	f.Mode = Input
	f.Modes = nil
	f.Writes = nil
	f.Reads = 0
	f.Closed = false
}
