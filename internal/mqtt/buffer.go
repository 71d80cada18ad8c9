package mqtt

import xlog "github.com/sweeney/tempo-deck/internal/log"

// bufferedMsg is an encoded message waiting for the broker to come back.
// Messages sharing a non-empty key supersede each other: only the latest
// visual of a surface is worth replaying.
type bufferedMsg struct {
	topic    string
	key      string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO used while disconnected.
// Not safe for concurrent use; RealBus guards it with its mutex.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // a message was dropped since the last drain
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

func (r *ringBuffer) index(i int) int {
	return (r.head - r.count + i + r.capacity) % r.capacity
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.key != "" {
		for i := 0; i < r.count; i++ {
			j := r.index(i)
			if r.buf[j].key == msg.key {
				r.buf[j] = msg
				return
			}
		}
	}

	if r.count == r.capacity {
		if !r.overflow {
			logger := xlog.WithComponent("mqtt")
			logger.Warn().Int("capacity", r.capacity).Msg("offline buffer full, dropping oldest")
			r.overflow = true
		}
		// head points at the oldest entry when full
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = r.buf[r.index(i)]
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
