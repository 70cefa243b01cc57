package playback

import (
	"github.com/smallnest/ringbuffer"
)

// micBuffer accumulates captured PCM16 bytes in a bounded ring. When
// the ring fills, the oldest audio is discarded so a long recording
// degrades gracefully instead of failing.
type micBuffer struct {
	rb *ringbuffer.RingBuffer
}

func newMicBuffer(size int) *micBuffer {
	return &micBuffer{
		rb: ringbuffer.New(size).SetBlocking(false),
	}
}

// Write appends one captured frame, evicting the oldest bytes when
// space runs short. Eviction stays sample-aligned (2-byte).
func (m *micBuffer) Write(frame []byte) {
	need := len(frame)
	if need > m.rb.Capacity() {
		// Keep only the tail that fits.
		frame = frame[need-m.rb.Capacity():]
		need = len(frame)
	}
	if free := m.rb.Free(); free < need {
		evict := need - free
		if evict%2 != 0 {
			evict++
		}
		skip := make([]byte, evict)
		m.rb.Read(skip)
	}
	m.rb.Write(frame)
}

// Drain returns everything captured so far and resets the ring.
func (m *micBuffer) Drain() []byte {
	n := m.rb.Length()
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	m.rb.Read(out)
	m.rb.Reset()
	return out
}

func (m *micBuffer) Len() int {
	return m.rb.Length()
}
