package logic

import "time"

// Stats tracks read outcomes and schedules heartbeats.
type Stats struct {
	startTime     time.Time
	counts        OutcomeCounts
	last          *Event
	lastReading   *Event
	consecutive   int
	lastHeartbeat time.Time
}

// NewStats creates an outcome tracker.
// The startTime is used for calculating uptime in heartbeat events.
func NewStats(startTime time.Time) *Stats {
	return &Stats{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Record counts the event and remembers it as the latest attempt.
func (s *Stats) Record(e Event) {
	switch e.Outcome {
	case OutcomeOK:
		s.counts.OK++
	case OutcomeChecksumMismatch:
		s.counts.ChecksumMismatch++
	case OutcomeAckTimeout:
		s.counts.AckTimeout++
	case OutcomeBitTimeout:
		s.counts.BitTimeout++
	case OutcomeLineFault:
		s.counts.LineFault++
	case OutcomeCanceled:
		s.counts.Canceled++
	}

	s.last = &e
	if e.HasReading() {
		s.lastReading = &e
	}

	if e.Outcome == OutcomeOK {
		s.consecutive = 0
	} else {
		s.consecutive++
	}
}

// Counts returns a copy of the outcome counters.
func (s *Stats) Counts() OutcomeCounts {
	return s.counts
}

// Last returns the most recent attempt, or nil before the first one.
func (s *Stats) Last() *Event {
	if s.last == nil {
		return nil
	}
	e := *s.last
	return &e
}

// LastReading returns the most recent attempt that decoded data, or nil.
func (s *Stats) LastReading() *Event {
	if s.lastReading == nil {
		return nil
	}
	e := *s.lastReading
	return &e
}

// HasReading returns whether any attempt has decoded data yet.
func (s *Stats) HasReading() bool {
	return s.lastReading != nil
}

// ConsecutiveFailures returns the number of attempts since the last OK one.
func (s *Stats) ConsecutiveFailures() int {
	return s.consecutive
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (s *Stats) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}

	s.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Counts:    s.counts,
	}
}
