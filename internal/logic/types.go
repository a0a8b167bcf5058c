// Package logic contains pure logic for turning AM2120 frames into readings.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// FrameLen is the number of bytes the sensor transmits per read (40 bits).
const FrameLen = 5

// RawFrame is the undecoded payload sampled from the line: humidity high/low,
// temperature high/low, checksum.
type RawFrame [FrameLen]byte

func (f RawFrame) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X %02X", f[0], f[1], f[2], f[3], f[4])
}

// Units selects how raw half-words are scaled into a Reading.
type Units string

const (
	// UnitsTenths passes raw values through: 0.1 %RH and 0.1 °C per count.
	UnitsTenths Units = "tenths"
	// UnitsWhole divides by 10 with truncation: whole %RH and whole °C.
	UnitsWhole Units = "whole"
)

// ErrUnknownUnits is returned by ParseUnits for an unrecognised name.
var ErrUnknownUnits = errors.New("unknown units")

// ParseUnits converts a flag value into Units.
func ParseUnits(s string) (Units, error) {
	switch Units(s) {
	case UnitsTenths:
		return UnitsTenths, nil
	case UnitsWhole:
		return UnitsWhole, nil
	}
	return "", fmt.Errorf("%w %q (want %q or %q)", ErrUnknownUnits, s, UnitsTenths, UnitsWhole)
}

// ErrChecksum is reported by Reading.Err when the checksum byte did not match.
var ErrChecksum = errors.New("checksum mismatch")

// Reading is a decoded sensor sample.
type Reading struct {
	// Humidity in Units (0.1 %RH for UnitsTenths).
	Humidity uint16
	// Temperature in Units (0.1 °C for UnitsTenths). Negative below zero.
	Temperature int16
	// ChecksumValid is advisory; a reading with a bad checksum is still returned.
	ChecksumValid bool
	Units         Units
}

// Outcome classifies the result of one read attempt.
type Outcome string

const (
	OutcomeOK               Outcome = "OK"
	OutcomeChecksumMismatch Outcome = "CHECKSUM_MISMATCH"
	OutcomeAckTimeout       Outcome = "ACK_TIMEOUT"
	OutcomeBitTimeout       Outcome = "BIT_TIMEOUT"
	OutcomeLineFault        Outcome = "LINE_FAULT"
	OutcomeCanceled         Outcome = "CANCELED"
)

// Outcomes lists every outcome in display order.
var Outcomes = []Outcome{
	OutcomeOK,
	OutcomeChecksumMismatch,
	OutcomeAckTimeout,
	OutcomeBitTimeout,
	OutcomeLineFault,
	OutcomeCanceled,
}

// Event is one read attempt to be reported.
type Event struct {
	Timestamp time.Time
	Outcome   Outcome
	// Reading is only meaningful for OutcomeOK and OutcomeChecksumMismatch.
	Reading Reading
}

// HasReading reports whether the event carries decoded data.
func (e Event) HasReading() bool {
	return e.Outcome == OutcomeOK || e.Outcome == OutcomeChecksumMismatch
}

// OutcomeCounts tracks the number of read attempts per outcome since startup.
type OutcomeCounts struct {
	OK               int
	ChecksumMismatch int
	AckTimeout       int
	BitTimeout       int
	LineFault        int
	Canceled         int
}

// Total returns the number of attempts counted.
func (c OutcomeCounts) Total() int {
	return c.OK + c.ChecksumMismatch + c.AckTimeout + c.BitTimeout + c.LineFault + c.Canceled
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    OutcomeCounts
}
