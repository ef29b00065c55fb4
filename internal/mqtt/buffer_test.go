package mqtt

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func reading(n int) bufferedMsg {
	return bufferedMsg{topic: Topic, payload: []byte(fmt.Sprintf(`{"count":%d}`, n))}
}

func payloads(msgs []bufferedMsg) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.payload)
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10, zerolog.Nop())
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferKeepsNewest(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		pushed  int
		first   int // count in the oldest surviving message
		dropped int
	}{
		{"partial", 10, 5, 1, 0},
		{"exactly full", 5, 5, 1, 0},
		{"overflow by one", 5, 6, 2, 1},
		{"overflow wraps twice", 3, 10, 8, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.size, zerolog.Nop())
			lost := 0
			for i := 1; i <= tt.pushed; i++ {
				if rb.push(reading(i)) {
					lost++
				}
			}
			if lost != tt.dropped || rb.dropped != tt.dropped {
				t.Errorf("dropped: push reported %d, counter %d, want %d", lost, rb.dropped, tt.dropped)
			}

			got := payloads(rb.drainAll())
			want := tt.pushed - tt.first + 1
			if len(got) != want {
				t.Fatalf("expected %d messages, got %d", want, len(got))
			}
			for i, p := range got {
				if exp := fmt.Sprintf(`{"count":%d}`, tt.first+i); p != exp {
					t.Errorf("message %d: got %s, want %s", i, p, exp)
				}
			}
			if rb.len() != 0 {
				t.Errorf("expected empty after drain, got %d", rb.len())
			}
		})
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	rb := newRingBuffer(4, zerolog.Nop())

	for i := 1; i <= 3; i++ {
		rb.push(reading(i))
	}
	rb.drainAll()

	for i := 10; i <= 15; i++ {
		rb.push(reading(i))
	}
	got := payloads(rb.drainAll())
	want := []string{`{"count":12}`, `{"count":13}`, `{"count":14}`, `{"count":15}`}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if rb.dropped != 2 {
		t.Errorf("dropped: got %d, want 2", rb.dropped)
	}
}

func TestRingBufferDroppedSurvivesDrain(t *testing.T) {
	rb := newRingBuffer(1, zerolog.Nop())
	rb.push(reading(1))
	rb.push(reading(2))
	rb.drainAll()
	rb.push(reading(3))
	rb.push(reading(4))

	if rb.dropped != 2 {
		t.Errorf("dropped is a running total, got %d want 2", rb.dropped)
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10, zerolog.Nop())
	rb.push(bufferedMsg{
		topic:    TopicSystem,
		payload:  []byte(`{"status":{"event":"STARTUP"}}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != TopicSystem {
		t.Errorf("topic: got %s, want %s", got[0].topic, TopicSystem)
	}
	if string(got[0].payload) != `{"status":{"event":"STARTUP"}}` {
		t.Errorf("payload: got %s", got[0].payload)
	}
	if got[0].qos != 1 || !got[0].retained {
		t.Errorf("qos/retained: got %d/%v, want 1/true", got[0].qos, got[0].retained)
	}
}
