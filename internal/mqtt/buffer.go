package mqtt

import "github.com/rs/zerolog"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that holds readings and lifecycle
// events while the broker is unreachable. When full, the oldest message is
// overwritten. Not safe for concurrent use; the caller synchronizes.
type ringBuffer struct {
	log   zerolog.Logger
	slots []bufferedMsg
	next  int // slot for the next push
	count int

	dropped int  // messages overwritten since creation
	warned  bool // overflow already logged for this outage
}

func newRingBuffer(size int, log zerolog.Logger) *ringBuffer {
	return &ringBuffer{
		log:   log,
		slots: make([]bufferedMsg, size),
	}
}

// push appends msg and reports whether an older message was lost to make room.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	size := len(r.slots)
	full := r.count == size

	r.slots[r.next] = msg
	r.next = (r.next + 1) % size
	if !full {
		r.count++
		return false
	}

	r.dropped++
	if !r.warned {
		r.log.Warn().Int("capacity", size).Str("topic", msg.topic).Msg("mqtt buffer full, dropping oldest")
		r.warned = true
	}
	return true
}

// drainAll removes and returns every message, oldest first.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	size := len(r.slots)
	oldest := (r.next - r.count + size) % size
	out := make([]bufferedMsg, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(oldest+i)%size])
	}

	r.count = 0
	r.next = 0
	r.warned = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
