// Package status provides a thread-safe status tracker for the am2120-sensor daemon.
// It is read by the HTTP handlers and by the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/am2120-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs  int64
	HeartbeatMs int64
	Backend     string
	Chip        string
	Pin         string
	Units       logic.Units
	MaxPolls    int
	Broker      string
	HTTPAddr    string
	Firestore   string // Firestore project (empty = disabled)
	KafkaTopic  string // empty = disabled
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Last                *logic.Event
	LastReading         *logic.Event
	Counts              logic.OutcomeCounts
	ConsecutiveFailures int
	StartTime           time.Time
	Now                 time.Time
	MQTTConnected       bool
	Network             *NetworkInfo
	Config              Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one frame has been decoded.
func (s Snapshot) Ready() bool {
	return s.LastReading != nil
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update copies the read statistics. Called from the read loop after
// every attempt.
func (t *Tracker) Update(stats *logic.Stats) {
	last := stats.Last()
	lastReading := stats.LastReading()
	counts := stats.Counts()
	consecutive := stats.ConsecutiveFailures()

	t.mu.Lock()
	t.snap.Last = last
	t.snap.LastReading = lastReading
	t.snap.Counts = counts
	t.snap.ConsecutiveFailures = consecutive
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
