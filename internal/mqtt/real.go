package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// bufferCapacity bounds the messages held while the broker is unreachable.
const bufferCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// not reachable within the connect timeout the publisher is still returned;
// paho keeps retrying in the background and messages are buffered meanwhile.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{
		topic: Topic,
		buf:   newRingBuffer(bufferCapacity),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
	} else if err := token.Error(); err != nil {
		log.Printf("mqtt: connect to broker: %v", err)
	}

	return p
}

// Publish sends a reading event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: p.topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	// flush drains under the same lock, so a message pushed here is either
	// drained by it or left for the next connect.
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages after (re)connecting.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	for _, m := range msgs {
		// Async: this runs on paho's connect callback and must not block it.
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
