package uart

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// DefaultBufferSize is the receive ring capacity of the reference board.
const DefaultBufferSize = 128

// OverflowPolicy selects what happens when a byte arrives into a full ring.
type OverflowPolicy uint8

const (
	// DropNewest discards the incoming byte; unread data is preserved.
	DropNewest OverflowPolicy = iota
	// OverwriteOldest discards the oldest unread byte to make room.
	OverwriteOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case OverwriteOldest:
		return "overwrite-oldest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", uint8(p))
	}
}

// RingBuffer is a fixed-capacity byte FIFO shared between a single producer
// (the receive handler) and a single consumer.
//
// Cursors and slots are only touched inside mu. The pending count and the
// overflow state are atomics so they can be sampled without taking mu.
type RingBuffer struct {
	mu     sync.Mutex
	buf    []byte
	head   int // write cursor
	tail   int // read cursor
	policy OverflowPolicy

	pending  atomic.Uint32
	overflow atomic.Bool
	dropped  atomic.Uint64
}

// NewRingBuffer returns a ring holding up to size bytes. A size <= 0 selects
// DefaultBufferSize.
func NewRingBuffer(size int, policy OverflowPolicy) *RingBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RingBuffer{buf: make([]byte, size), policy: policy}
}

// Size returns the capacity in bytes.
func (rb *RingBuffer) Size() int { return len(rb.buf) }

// Used returns how many bytes are stored and not yet read.
func (rb *RingBuffer) Used() int { return int(rb.pending.Load()) }

// Policy returns the overflow policy.
func (rb *RingBuffer) Policy() OverflowPolicy { return rb.policy }

// Put stores val. It returns false if a byte was lost to overflow: val itself
// under DropNewest, the oldest unread byte under OverwriteOldest.
func (rb *RingBuffer) Put(val byte) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	lost := false
	if int(rb.pending.Load()) == len(rb.buf) {
		lost = true
		rb.overflow.Store(true)
		rb.dropped.Inc()
		if rb.policy == DropNewest {
			return false
		}
		rb.tail = rb.advance(rb.tail)
		rb.pending.Dec()
	}
	rb.buf[rb.head] = val
	rb.pending.Inc()
	rb.head = rb.advance(rb.head)
	return !lost
}

// Get removes and returns the oldest byte. It returns (0, false) when empty.
func (rb *RingBuffer) Get() (byte, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.pending.Load() == 0 {
		return 0, false
	}
	v := rb.buf[rb.tail]
	rb.tail = rb.advance(rb.tail)
	rb.pending.Dec()
	return v, true
}

// Clear discards all pending bytes. Overflow state is kept.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head, rb.tail = 0, 0
	rb.pending.Store(0)
}

// Overflowed reports whether any byte has been lost since the last ClearOverflow.
func (rb *RingBuffer) Overflowed() bool { return rb.overflow.Load() }

// Dropped returns the number of bytes lost since the last ClearOverflow.
func (rb *RingBuffer) Dropped() uint64 { return rb.dropped.Load() }

// ClearOverflow resets the sticky overflow flag and returns the dropped count.
func (rb *RingBuffer) ClearOverflow() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.overflow.Store(false)
	return rb.dropped.Swap(0)
}

func (rb *RingBuffer) advance(i int) int {
	i++
	if i >= len(rb.buf) {
		i = 0
	}
	return i
}
