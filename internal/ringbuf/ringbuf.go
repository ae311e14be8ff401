// Package ringbuf is a lock-free single-producer single-consumer queue of
// bars. The WebSocket reader goroutine pushes; the robot loop drains it once
// per cycle.
package ringbuf

import (
	"sync/atomic"

	"trading-robot/internal/model"
)

const cacheLine = 64

// Ring holds up to Cap() bars. Capacity is a power of two so the index wraps
// with a mask.
type Ring struct {
	buf  []model.Bar
	mask uint64

	_pad0 [cacheLine]byte
	head  atomic.Uint64 // producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // consumer
	_pad2 [cacheLine]byte

	dropped atomic.Uint64
}

// New creates a ring with capacity rounded up to a power of two (minimum 2).
func New(capacity int) *Ring {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring{buf: make([]model.Bar, n), mask: uint64(n - 1)}
}

// Push enqueues b. It returns false and counts a drop when the ring is full.
func (r *Ring) Push(b model.Bar) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[head&r.mask] = b
	r.head.Store(head + 1)
	return true
}

// Pop dequeues the oldest bar.
func (r *Ring) Pop() (model.Bar, bool) {
	tail := r.tail.Load()
	if tail >= r.head.Load() {
		return model.Bar{}, false
	}
	b := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return b, true
}

// Drain appends every queued bar to dst and returns it. Consumer side only.
func (r *Ring) Drain(dst []model.Bar) []model.Bar {
	tail := r.tail.Load()
	head := r.head.Load()
	for i := tail; i < head; i++ {
		dst = append(dst, r.buf[i&r.mask])
	}
	r.tail.Store(head)
	return dst
}

// Len returns the number of queued bars.
func (r *Ring) Len() int { return int(r.head.Load() - r.tail.Load()) }

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Dropped returns the number of pushes rejected because the ring was full.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
