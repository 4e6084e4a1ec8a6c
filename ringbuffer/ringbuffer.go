package ringbuffer

import (
	"sync"
	"sync/atomic"
)

type buffer[T any] struct {
	items           []T
	head, tail, mod int64
}

// RingBuffer is a thread-safe ring buffer that doubles in size when full.
type RingBuffer[T any] struct {
	len     int64
	content *buffer[T]
	mu      sync.Mutex
}

func New[T any](size int64) *RingBuffer[T] {
	return &RingBuffer[T]{
		content: &buffer[T]{
			items: make([]T, size),
			mod:   size,
		},
	}
}

func (rb *RingBuffer[T]) Push(item T) {
	rb.mu.Lock()
	rb.content.tail = (rb.content.tail + 1) % rb.content.mod
	if rb.content.tail == rb.content.head {
		rb.grow()
	}
	atomic.AddInt64(&rb.len, 1)
	rb.content.items[rb.content.tail] = item
	rb.mu.Unlock()
}

// grow doubles the buffer, relinking the live window starting at head.
// Callers must hold rb.mu.
func (rb *RingBuffer[T]) grow() {
	size := rb.content.mod * 2
	items := make([]T, size)
	for i := int64(0); i < rb.content.mod; i++ {
		items[i] = rb.content.items[(rb.content.tail+i)%rb.content.mod]
	}
	rb.content = &buffer[T]{
		items: items,
		tail:  rb.content.mod,
		mod:   size,
	}
}

func (rb *RingBuffer[T]) Len() int64 {
	return atomic.LoadInt64(&rb.len)
}

// Pop removes and returns the oldest item, reporting false when empty.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.Len() == 0 {
		return zero, false
	}
	rb.mu.Lock()
	rb.content.head = (rb.content.head + 1) % rb.content.mod
	item := rb.content.items[rb.content.head]
	rb.content.items[rb.content.head] = zero
	atomic.AddInt64(&rb.len, -1)
	rb.mu.Unlock()
	return item, true
}
