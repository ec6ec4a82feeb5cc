// Package ring implements the bounded lock-free buffer that hands
// finished spans from the threads that produce them to the reporter
// that drains them.
package ring

import "sync/atomic"

// Buffer is a bounded multi-producer multi-consumer ring using the
// Vyukov sequence-cell scheme. Offer never blocks: when the buffer is
// full it reports failure and the caller decides what to drop.
type Buffer[T any] struct {
	head  atomic.Uint64
	_     [56]byte // keep head and tail on separate cache lines
	tail  atomic.Uint64
	_     [56]byte
	mask  uint64
	cells []cell[T]
}

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// New allocates a buffer holding at least capacity items, rounded up to
// a power of two.
func New[T any](capacity int) *Buffer[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	b := &Buffer[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range b.cells {
		b.cells[i].sequence.Store(uint64(i))
	}
	return b
}

// Offer appends item; it returns false when the buffer is full.
func (b *Buffer[T]) Offer(item T) bool {
	for {
		tail := b.tail.Load()
		c := &b.cells[tail&b.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		switch {
		case dif == 0:
			if b.tail.CompareAndSwap(tail, tail+1) {
				c.data = item
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false // full
		}
		// tail moved, retry
	}
}

// Poll removes and returns the oldest item; ok is false when empty.
func (b *Buffer[T]) Poll() (item T, ok bool) {
	for {
		head := b.head.Load()
		c := &b.cells[head&b.mask]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)

		switch {
		case dif == 0:
			if b.head.CompareAndSwap(head, head+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(head + b.mask + 1)
				return item, true
			}
		case dif < 0:
			var zero T
			return zero, false // empty
		}
		// head moved, retry
	}
}

// Drain removes and returns every item currently buffered.
func (b *Buffer[T]) Drain() []T {
	n := b.Len()
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for {
		item, ok := b.Poll()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	head := b.head.Load()
	tail := b.tail.Load()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.cells)
}
