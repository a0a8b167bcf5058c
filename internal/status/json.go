package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/am2120-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event               string       `json:"event,omitempty"`
	Reason              string       `json:"reason,omitempty"`
	Ready               bool         `json:"ready"`
	LastOutcome         string       `json:"last_outcome"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Reading             *ReadingJSON `json:"reading,omitempty"`
	UptimeSeconds       int64        `json:"uptime_seconds"`
	StartTime           string       `json:"start_time"`
	Timestamp           string       `json:"timestamp"`
	MQTT                MQTTStatus   `json:"mqtt"`
	Counts              CountsJSON   `json:"read_counts"`
	Network             *NetworkJSON `json:"network,omitempty"`
	Config              ConfigJSON   `json:"config"`
}

// ReadingJSON is the last decoded reading.
type ReadingJSON struct {
	Timestamp     string  `json:"timestamp"`
	Humidity      float64 `json:"humidity"`
	Temperature   float64 `json:"temperature"`
	ChecksumValid bool    `json:"checksum_valid"`
	Units         string  `json:"units"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of outcome counts.
type CountsJSON struct {
	OK               int `json:"ok"`
	ChecksumMismatch int `json:"checksum_mismatch"`
	AckTimeout       int `json:"ack_timeout"`
	BitTimeout       int `json:"bit_timeout"`
	LineFault        int `json:"line_fault"`
	Canceled         int `json:"canceled"`
	Total            int `json:"total"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs  int64  `json:"interval_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Backend     string `json:"backend"`
	Chip        string `json:"chip,omitempty"`
	Pin         string `json:"pin"`
	Units       string `json:"units"`
	MaxPolls    int    `json:"max_polls"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Firestore   string `json:"firestore_project,omitempty"`
	KafkaTopic  string `json:"kafka_topic,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	lastOutcome := "NONE"
	if snap.Last != nil {
		lastOutcome = string(snap.Last.Outcome)
	}

	inner := StatusInner{
		Ready:               snap.Ready(),
		LastOutcome:         lastOutcome,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		UptimeSeconds:       int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:           snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:           snap.Now.UTC().Format(time.RFC3339),
		MQTT:                MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			OK:               snap.Counts.OK,
			ChecksumMismatch: snap.Counts.ChecksumMismatch,
			AckTimeout:       snap.Counts.AckTimeout,
			BitTimeout:       snap.Counts.BitTimeout,
			LineFault:        snap.Counts.LineFault,
			Canceled:         snap.Counts.Canceled,
			Total:            snap.Counts.Total(),
		},
		Config: ConfigJSON{
			IntervalMs:  snap.Config.IntervalMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Backend:     snap.Config.Backend,
			Chip:        snap.Config.Chip,
			Pin:         snap.Config.Pin,
			Units:       string(snap.Config.Units),
			MaxPolls:    snap.Config.MaxPolls,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Firestore:   snap.Config.Firestore,
			KafkaTopic:  snap.Config.KafkaTopic,
		},
	}

	if snap.LastReading != nil {
		inner.Reading = buildReading(*snap.LastReading)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func buildReading(e logic.Event) *ReadingJSON {
	return &ReadingJSON{
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
		Humidity:      e.Reading.HumidityPercent(),
		Temperature:   e.Reading.TemperatureCelsius(),
		ChecksumValid: e.Reading.ChecksumValid,
		Units:         string(e.Reading.Units),
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
