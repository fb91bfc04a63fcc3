package avsync

import "sync"

// Item is a payload tagged with its sender timestamp
type Item struct {
	Timestamp int64
	Payload   []byte
}

// Queue is a bounded FIFO of items kept in arrival order.
// Pushing into a full queue evicts the oldest items. Timestamps are not assumed monotonic.
type Queue struct {
	mu   sync.Mutex
	buf  []Item
	head int
	size int
}

// NewQueue creates a queue holding at most capacity items
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]Item, capacity)}
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Len returns the number of queued items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Push appends an item, evicting the oldest ones while over capacity.
// It returns the number of evicted items.
func (q *Queue) Push(item Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := 0
	if q.size == len(q.buf) {
		q.popLocked()
		evicted++
	}
	q.buf[(q.head+q.size)%len(q.buf)] = item
	q.size++
	return evicted
}

// Peek returns the oldest item without removing it
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return Item{}, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest item
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return Item{}, false
	}
	return q.popLocked(), true
}

func (q *Queue) popLocked() Item {
	item := q.buf[q.head]
	q.buf[q.head] = Item{}
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return item
}

// TrimTo evicts the oldest items until at most n remain and returns how many were evicted
func (q *Queue) TrimTo(n int) int {
	if n < 0 {
		n = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := 0
	for q.size > n {
		q.popLocked()
		evicted++
	}
	return evicted
}

// Clear drops every queued item
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buf {
		q.buf[i] = Item{}
	}
	q.head = 0
	q.size = 0
}

// Timestamps returns the queued timestamps, oldest first
func (q *Queue) Timestamps() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int64, q.size)
	for i := range out {
		out[i] = q.buf[(q.head+i)%len(q.buf)].Timestamp
	}
	return out
}
