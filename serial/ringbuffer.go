package serial

import "sync/atomic"

// RingBuffer is a single-producer single-consumer byte queue. The producer
// writes the slot before it publishes head and the consumer reads the slot
// before it publishes tail, so one side may run in interrupt context without
// a lock.
type RingBuffer struct {
	buf  []byte
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32
}

// NewRingBuffer returns a buffer holding at least size bytes. The capacity is
// rounded up to a power of two for cheap wrap-around.
func NewRingBuffer(size int) *RingBuffer {
	n := 2
	for n < size {
		n <<= 1
	}
	return &RingBuffer{buf: make([]byte, n), mask: uint32(n - 1)}
}

// Size returns the total capacity of the buffer in bytes.
func (rb *RingBuffer) Size() int { return len(rb.buf) }

// Used returns how many bytes are queued.
func (rb *RingBuffer) Used() int { return int(rb.head.Load() - rb.tail.Load()) }

// Free returns how many bytes can still be queued.
func (rb *RingBuffer) Free() int { return rb.Size() - rb.Used() }

// Put stores a byte in the buffer. If the buffer is already full, it returns false.
func (rb *RingBuffer) Put(val byte) bool {
	h := rb.head.Load()
	if int(h-rb.tail.Load()) == len(rb.buf) {
		return false
	}
	rb.buf[h&rb.mask] = val // 1) write data
	rb.head.Store(h + 1)    // 2) publish
	return true
}

// Get returns a byte from the buffer. If the buffer is empty, it returns (0, false).
func (rb *RingBuffer) Get() (byte, bool) {
	t := rb.tail.Load()
	if rb.head.Load() == t {
		return 0, false
	}
	v := rb.buf[t&rb.mask] // 1) read current element
	rb.tail.Store(t + 1)   // 2) publish consumption
	return v, true
}

// Clear drops the contents. Neither side may be active.
func (rb *RingBuffer) Clear() {
	rb.tail.Store(rb.head.Load())
}
