package logic

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func okEvent(at time.Time, r Reading) Event {
	return Event{Timestamp: at, Outcome: OutcomeOK, Reading: r}
}

func TestNewStats(t *testing.T) {
	s := NewStats(t0)

	if s.HasReading() {
		t.Error("new stats should have no reading")
	}
	if s.Last() != nil || s.LastReading() != nil {
		t.Error("new stats should have no events")
	}
	if s.Counts().Total() != 0 {
		t.Errorf("expected zero counts, got %+v", s.Counts())
	}
}

func TestRecordCountsEveryOutcome(t *testing.T) {
	s := NewStats(t0)
	for _, o := range Outcomes {
		s.Record(Event{Timestamp: t0, Outcome: o})
	}
	s.Record(Event{Timestamp: t0, Outcome: OutcomeAckTimeout})

	want := OutcomeCounts{
		OK:               1,
		ChecksumMismatch: 1,
		AckTimeout:       2,
		BitTimeout:       1,
		LineFault:        1,
		Canceled:         1,
	}
	if diff := cmp.Diff(want, s.Counts()); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
	if s.Counts().Total() != 7 {
		t.Errorf("total: got %d, want 7", s.Counts().Total())
	}
}

func TestLastReadingSkipsFailures(t *testing.T) {
	s := NewStats(t0)
	r := Reading{Humidity: 600, Temperature: 150, ChecksumValid: true, Units: UnitsTenths}

	s.Record(okEvent(t0, r))
	s.Record(Event{Timestamp: t0.Add(2 * time.Second), Outcome: OutcomeAckTimeout})

	if got := s.Last(); got == nil || got.Outcome != OutcomeAckTimeout {
		t.Errorf("last: got %+v, want ACK_TIMEOUT", got)
	}
	got := s.LastReading()
	if got == nil {
		t.Fatal("expected last reading")
	}
	if got.Reading != r {
		t.Errorf("last reading: got %+v, want %+v", got.Reading, r)
	}
}

func TestChecksumMismatchKeepsReading(t *testing.T) {
	s := NewStats(t0)
	s.Record(Event{Timestamp: t0, Outcome: OutcomeChecksumMismatch, Reading: Reading{Humidity: 1}})

	if !s.HasReading() {
		t.Error("checksum mismatch should still count as a decoded reading")
	}
	if s.ConsecutiveFailures() != 1 {
		t.Errorf("consecutive failures: got %d, want 1", s.ConsecutiveFailures())
	}
}

func TestConsecutiveFailuresResetOnOK(t *testing.T) {
	s := NewStats(t0)
	s.Record(Event{Outcome: OutcomeAckTimeout})
	s.Record(Event{Outcome: OutcomeBitTimeout})
	if s.ConsecutiveFailures() != 2 {
		t.Errorf("got %d, want 2", s.ConsecutiveFailures())
	}

	s.Record(okEvent(t0, Reading{}))
	if s.ConsecutiveFailures() != 0 {
		t.Errorf("got %d, want 0 after OK", s.ConsecutiveFailures())
	}
}

func TestLastReturnsCopy(t *testing.T) {
	s := NewStats(t0)
	s.Record(okEvent(t0, Reading{Humidity: 10}))

	got := s.Last()
	got.Reading.Humidity = 99

	if s.Last().Reading.Humidity != 10 {
		t.Error("mutating returned event changed stats")
	}
}

func TestCheckHeartbeatDisabledWithZeroInterval(t *testing.T) {
	s := NewStats(t0)

	if hb := s.CheckHeartbeat(t0.Add(time.Hour), 0); hb != nil {
		t.Error("expected nil heartbeat with zero interval")
	}
	if hb := s.CheckHeartbeat(t0.Add(time.Hour), -time.Second); hb != nil {
		t.Error("expected nil heartbeat with negative interval")
	}
}

func TestCheckHeartbeatBeforeInterval(t *testing.T) {
	s := NewStats(t0)

	if hb := s.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected nil heartbeat before interval elapsed")
	}
}

func TestCheckHeartbeatAtInterval(t *testing.T) {
	s := NewStats(t0)

	hb := s.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if !hb.Timestamp.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("timestamp: got %v", hb.Timestamp)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("uptime: got %v, want 15m", hb.Uptime)
	}
}

func TestCheckHeartbeatUpdatesLastTime(t *testing.T) {
	s := NewStats(t0)
	interval := 15 * time.Minute

	if hb := s.CheckHeartbeat(t0.Add(interval), interval); hb == nil {
		t.Fatal("expected first heartbeat")
	}
	if hb := s.CheckHeartbeat(t0.Add(interval+time.Minute), interval); hb != nil {
		t.Error("expected no heartbeat one minute after the last")
	}
	hb := s.CheckHeartbeat(t0.Add(2*interval), interval)
	if hb == nil {
		t.Fatal("expected second heartbeat")
	}
	if hb.Uptime != 2*interval {
		t.Errorf("uptime: got %v, want %v", hb.Uptime, 2*interval)
	}
}

func TestHeartbeatContainsCounts(t *testing.T) {
	s := NewStats(t0)
	s.Record(okEvent(t0, Reading{}))
	s.Record(okEvent(t0, Reading{}))
	s.Record(Event{Outcome: OutcomeAckTimeout})

	hb := s.CheckHeartbeat(t0.Add(time.Minute), time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat")
	}
	want := OutcomeCounts{OK: 2, AckTimeout: 1}
	if hb.Counts != want {
		t.Errorf("counts: got %+v, want %+v", hb.Counts, want)
	}
}

func TestEventHasReading(t *testing.T) {
	for _, o := range Outcomes {
		want := o == OutcomeOK || o == OutcomeChecksumMismatch
		if got := (Event{Outcome: o}).HasReading(); got != want {
			t.Errorf("%s: HasReading=%v, want %v", o, got, want)
		}
	}
}
