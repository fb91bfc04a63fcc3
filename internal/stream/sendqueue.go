package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
)

// DefaultSendQueueCapacity bounds enhanced windows waiting for the socket
const DefaultSendQueueCapacity = 64

// ErrQueueClosed is returned by Enqueue after the queue has been closed
var ErrQueueClosed = errors.New("stream: send queue closed")

// SendItem is one enhanced audio window to transmit
type SendItem struct {
	Timestamp int64
	Payload   []byte
}

// SendQueue is a bounded FIFO between inference and the transmit loop.
// Enqueue blocks while the queue is full. Items still queued at Close are discarded.
type SendQueue struct {
	items     chan SendItem
	done      chan struct{}
	closeOnce sync.Once
	metrics   *metrics.Metrics
}

// NewSendQueue creates a queue holding at most capacity items
func NewSendQueue(capacity int, m *metrics.Metrics) *SendQueue {
	if capacity < 1 {
		capacity = DefaultSendQueueCapacity
	}
	return &SendQueue{
		items:   make(chan SendItem, capacity),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// Enqueue adds an item, blocking until there is room, the queue closes or ctx ends
func (q *SendQueue) Enqueue(ctx context.Context, item SendItem) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		q.metrics.SetSendQueueDepth(len(q.items))
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the oldest item. ok is false once the queue is closed or ctx ends.
func (q *SendQueue) Next(ctx context.Context) (item SendItem, ok bool) {
	select {
	case <-q.done:
		return SendItem{}, false
	default:
	}

	select {
	case item = <-q.items:
		q.metrics.SetSendQueueDepth(len(q.items))
		return item, true
	case <-q.done:
		return SendItem{}, false
	case <-ctx.Done():
		return SendItem{}, false
	}
}

// Close stops the queue. It is safe to call more than once.
func (q *SendQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.metrics.SetSendQueueDepth(0)
	})
}

// Closed reports whether Close has been called
func (q *SendQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of queued items
func (q *SendQueue) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity
func (q *SendQueue) Cap() int {
	return cap(q.items)
}
