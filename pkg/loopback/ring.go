package loopback

import "sync"

// ringItem is one unit handed from the native thread to the consumer: either
// a frame or the fault that ended the stream.
type ringItem struct {
	buf []byte
	err error
}

// frameRing is a bounded single-producer/single-consumer queue. The producer
// is the backend's audio thread and never blocks: when the ring is full the
// oldest item is overwritten. Slot buffers are recycled between producer and
// consumer, so steady-state capture does not allocate.
type frameRing struct {
	mu      sync.Mutex
	slots   []ringItem
	head    int
	count   int
	closed  bool
	dropped uint64

	// ready carries at most one wakeup for the consumer.
	ready chan struct{}
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &frameRing{
		slots: make([]ringItem, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push copies frame into the next slot. Safe to call after close, in which
// case the frame is discarded.
func (r *frameRing) push(frame []byte) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	slot := r.reserve()
	slot.buf = append(slot.buf[:0], frame...)
	slot.err = nil
	r.mu.Unlock()

	r.notify()
}

// pushErr enqueues a terminal error behind every frame already queued.
func (r *frameRing) pushErr(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	slot := r.reserve()
	slot.buf = slot.buf[:0]
	slot.err = err
	r.mu.Unlock()

	r.notify()
}

// reserve returns the tail slot, evicting the head when full. Caller holds mu.
func (r *frameRing) reserve() *ringItem {
	if r.count == len(r.slots) {
		r.head = (r.head + 1) % len(r.slots)
		r.count--
		r.dropped++
	}
	slot := &r.slots[(r.head+r.count)%len(r.slots)]
	r.count++
	return slot
}

// pop removes the head item. spare is a buffer the consumer is done with; it
// replaces the slot's buffer so the two sides keep trading the same memory.
func (r *frameRing) pop(spare []byte) (ringItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return ringItem{}, false
	}
	slot := &r.slots[r.head]
	item := *slot
	slot.buf = spare[:0]
	slot.err = nil
	r.head = (r.head + 1) % len(r.slots)
	r.count--
	return item, true
}

func (r *frameRing) notify() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// close stops accepting items and wakes the consumer. Queued items can still
// be popped.
func (r *frameRing) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.notify()
}

func (r *frameRing) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *frameRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *frameRing) droppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
