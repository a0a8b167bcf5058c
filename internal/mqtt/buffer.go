package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

// push appends msg, overwriting the oldest message when full.
func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
		return
	}
	if r.dropped == 0 {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
	}
	r.dropped++
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while disconnected", r.dropped)
	}

	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := range result {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
