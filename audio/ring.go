package audio

import "sync/atomic"

// frameRing is a bounded single-producer single-consumer queue of frames.
// The producer is the device callback; the consumer is the drain goroutine.
// Slots are pre-allocated, so push and pop copy and never allocate.
type frameRing struct {
	slots [][FrameSamples]int16
	mask  uint64
	head  atomic.Uint64 // next slot to read, written by the consumer
	tail  atomic.Uint64 // next slot to write, written by the producer
}

// newFrameRing returns a ring holding at least size frames, rounded up to a power of two.
func newFrameRing(size int) *frameRing {
	n := 1
	for n < size {
		n <<= 1
	}
	return &frameRing{
		slots: make([][FrameSamples]int16, n),
		mask:  uint64(n - 1),
	}
}

// push copies frame into the ring. It returns false when the ring is full.
func (r *frameRing) push(frame *[FrameSamples]int16) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.slots)) {
		return false
	}
	r.slots[tail&r.mask] = *frame
	r.tail.Store(tail + 1)
	return true
}

// pop copies the oldest frame into dst. It returns false when the ring is empty.
func (r *frameRing) pop(dst *[FrameSamples]int16) bool {
	head := r.head.Load()
	if head == r.tail.Load() {
		return false
	}
	*dst = r.slots[head&r.mask]
	r.head.Store(head + 1)
	return true
}

// len returns the number of frames waiting.
func (r *frameRing) len() int {
	return int(r.tail.Load() - r.head.Load())
}
