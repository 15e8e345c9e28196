package container

const (
	minSize      = 8 // Must be a power of 2
	growthFactor = 2
	shrinkFactor = 4
)

// RingBuffer is a FIFO buffer that grows as needed when new items are added.
// It is not goroutine-safe.
type RingBuffer[T any] struct {
	buf  []T
	len  int // how many items in the buffer
	head int // read index
	tail int // write index
}

func NewRingBuffer[T any]() *RingBuffer[T] {
	return &RingBuffer[T]{
		buf: make([]T, minSize),
	}
}

// Pushes an item into the buffer, growing it if necessary.
func (rb *RingBuffer[T]) Push(v T) {
	if rb.len == len(rb.buf) {
		rb.resize()
	}

	rb.buf[rb.tail] = v
	rb.tail = rb.next(rb.tail)
	rb.len++
}

// Removes and returns the oldest item in the buffer.
// The second value indicates whether the buffer was empty and a zero-value item was returned instead.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.len == 0 {
		return zero, false
	}

	v := rb.buf[rb.head]
	rb.buf[rb.head] = zero
	rb.head = rb.next(rb.head)
	rb.len--

	bufSize := len(rb.buf)
	if rb.len <= bufSize/shrinkFactor && rb.len*growthFactor >= minSize {
		rb.resize()
	}

	return v, true
}

func (rb *RingBuffer[T]) Peek() (T, bool) {
	var zero T
	if rb.len == 0 {
		return zero, false
	}
	return rb.buf[rb.head], true
}

func (rb *RingBuffer[T]) Len() int {
	return rb.len
}

func (rb *RingBuffer[T]) Empty() bool {
	return rb.len == 0
}

func (rb *RingBuffer[T]) next(i int) int {
	return (i + 1) % len(rb.buf)
}

func (rb *RingBuffer[T]) resize() {
	newSize := rb.len * growthFactor
	if newSize < minSize {
		newSize = minSize
	}
	newBuf := make([]T, newSize)
	if rb.tail > rb.head {
		copy(newBuf, rb.buf[rb.head:rb.tail])
	} else {
		n := copy(newBuf, rb.buf[rb.head:])
		copy(newBuf[n:], rb.buf[:rb.tail])
	}
	rb.head = 0
	rb.tail = rb.len
	rb.buf = newBuf
}
