package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueueFIFO(t *testing.T) {
	q := NewSendQueue(4, nil)
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, SendItem{Timestamp: i}))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 4, q.Cap())

	for i := int64(0); i < 3; i++ {
		item, ok := q.Next(ctx)
		require.True(t, ok)
		assert.Equal(t, i, item.Timestamp)
	}
}

func TestSendQueueBackpressure(t *testing.T) {
	q := NewSendQueue(1, nil)
	require.NoError(t, q.Enqueue(context.Background(), SendItem{Timestamp: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, SendItem{Timestamp: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a blocked producer resumes once the consumer makes room
	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), SendItem{Timestamp: 3})
	}()

	item, ok := q.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, int64(1), item.Timestamp)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked")
	}
}

func TestSendQueueClose(t *testing.T) {
	q := NewSendQueue(1, nil)
	require.NoError(t, q.Enqueue(context.Background(), SendItem{Timestamp: 1}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(context.Background(), SendItem{Timestamp: 2})
	}()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Close()
		}()
	}
	wg.Wait()
	assert.True(t, q.Closed())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked producer not released by Close")
	}

	assert.ErrorIs(t, q.Enqueue(context.Background(), SendItem{}), ErrQueueClosed)

	_, ok := q.Next(context.Background())
	assert.False(t, ok, "closed queue ends the consumer")
}

func TestSendQueueNextHonorsContext(t *testing.T) {
	q := NewSendQueue(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Next(ctx)
	assert.False(t, ok)
}
