package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sweeney/am2120-sensor/internal/logic"
	"github.com/sweeney/am2120-sensor/internal/report"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSinkPublish(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, DefaultTopic, "greenhouse-1")
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	err := s.Publish(context.Background(), logic.Event{
		Timestamp: ts,
		Outcome:   logic.OutcomeOK,
		Reading:   logic.Reading{Humidity: 512, Temperature: 187, ChecksumValid: true},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "greenhouse-1" {
		t.Errorf("key: got %q", msg.Key)
	}
	if !msg.Time.Equal(ts) {
		t.Errorf("time: got %v", msg.Time)
	}

	var payload report.EventPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Reading.Humidity != 51.2 || payload.Reading.Temperature != 18.7 {
		t.Errorf("payload: got %+v", payload.Reading)
	}
}

func TestSinkPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	s := newSink(w, "t", "")

	err := s.Publish(context.Background(), logic.Event{Outcome: logic.OutcomeOK})
	if !errors.Is(err, w.err) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestSinkUnkeyed(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, "t", "")
	s.Publish(context.Background(), logic.Event{Outcome: logic.OutcomeOK})

	if w.msgs[0].Key != nil {
		t.Errorf("expected nil key, got %q", w.msgs[0].Key)
	}
}

func TestSinkClose(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, "t", "")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer should be closed")
	}
}

func TestNewSink(t *testing.T) {
	if _, err := NewSink(Config{Brokers: []string{" ", ""}}); err == nil {
		t.Error("expected error without brokers")
	}

	s, err := NewSink(Config{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer s.Close()
	if s.Topic() != DefaultTopic {
		t.Errorf("topic: got %q, want %q", s.Topic(), DefaultTopic)
	}
}
