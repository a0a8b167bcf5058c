// Package report formats readings for the outbound collaborators: the console
// line, the document-store field map and the event payload shared by the
// message transports.
package report

import (
	"encoding/json"
	"time"

	"github.com/sweeney/am2120-sensor/internal/logic"
)

// ConsoleLine is the one-line JSON object printed per reading.
type ConsoleLine struct {
	Humidity    int `json:"humidity"`
	Temperature int `json:"temperature"`
}

// FormatConsole returns {"humidity": h, "temperature": t} with values in the
// reading's units.
func FormatConsole(r logic.Reading) []byte {
	data, _ := json.Marshal(ConsoleLine{
		Humidity:    int(r.Humidity),
		Temperature: int(r.Temperature),
	})
	return data
}

// Document is a document-store write body.
type Document struct {
	Fields map[string]Value `json:"fields"`
}

// Value is a typed document-store field.
type Value struct {
	DoubleValue float64 `json:"doubleValue"`
}

// FormatDocument returns the field map for a reading in percent and °C.
func FormatDocument(r logic.Reading) ([]byte, error) {
	return json.Marshal(Document{
		Fields: map[string]Value{
			"humidity":    {DoubleValue: r.HumidityPercent()},
			"temperature": {DoubleValue: r.TemperatureCelsius()},
		},
	})
}

// EventPayload is the message body published for each reading.
type EventPayload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains the reading details.
type ReadingPayload struct {
	Timestamp     string  `json:"timestamp"`
	Outcome       string  `json:"outcome"`
	Humidity      float64 `json:"humidity"`
	Temperature   float64 `json:"temperature"`
	ChecksumValid bool    `json:"checksum_valid"`
	Units         string  `json:"units"`
}

// FormatEvent creates the JSON payload for a reading event.
func FormatEvent(e logic.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Reading: ReadingPayload{
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
			Outcome:       string(e.Outcome),
			Humidity:      e.Reading.HumidityPercent(),
			Temperature:   e.Reading.TemperatureCelsius(),
			ChecksumValid: e.Reading.ChecksumValid,
			Units:         string(e.Reading.Units),
		},
	})
}
