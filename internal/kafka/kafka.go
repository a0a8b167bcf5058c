// Package kafka publishes reading events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sweeney/am2120-sensor/internal/logic"
	"github.com/sweeney/am2120-sensor/internal/report"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "sensors.am2120.readings"

// Config holds the writer settings.
type Config struct {
	Brokers []string
	Topic   string
	// Key is the message key, typically the sensor id. Keyed messages from
	// one sensor land on one partition and stay ordered.
	Key string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per reading event.
type Sink struct {
	writer messageWriter
	topic  string
	key    []byte
}

// NewSink creates a Sink backed by a kafka-go writer.
func NewSink(cfg Config) (*Sink, error) {
	var brokers []string
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return newSink(w, topic, cfg.Key), nil
}

func newSink(w messageWriter, topic, key string) *Sink {
	s := &Sink{writer: w, topic: topic}
	if key != "" {
		s.key = []byte(key)
	}
	return s
}

// Topic returns the destination topic.
func (s *Sink) Topic() string {
	return s.topic
}

// Publish writes the event. It blocks until the broker acknowledges or ctx ends.
func (s *Sink) Publish(ctx context.Context, event logic.Event) error {
	payload, err := report.FormatEvent(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	msg := kafka.Message{
		Key:   s.key,
		Value: payload,
		Time:  event.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
