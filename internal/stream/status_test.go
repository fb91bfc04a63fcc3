package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLogBounded(t *testing.T) {
	l := NewStatusLog(3)
	for i := 0; i < 5; i++ {
		l.Infof("message %d", i)
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "message 2", entries[0].Message)
	assert.Equal(t, "message 4", entries[2].Message)
	assert.Equal(t, "info", entries[0].Level)
}

func TestStatusLogSubscribe(t *testing.T) {
	l := NewStatusLog(10)
	ch, unsubscribe := l.Subscribe(4)

	l.Errorf("Connection failed: %v", fmt.Errorf("refused"))

	select {
	case entry := <-ch:
		assert.Equal(t, "error", entry.Level)
		assert.Equal(t, "Connection failed: refused", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// writers never block on departed or slow subscribers
	slow, _ := l.Subscribe(1)
	for i := 0; i < 10; i++ {
		l.Infof("burst %d", i)
	}
	assert.Len(t, slow, 1)
}

func TestStatusLogBacklogAndLiveDoNotOverlap(t *testing.T) {
	l := NewStatusLog(1000)

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				l.Infof("entry %d", i)
			}
		}
	}()

	time.Sleep(time.Millisecond)
	backlog, ch, unsubscribe := l.SubscribeWithBacklog(1000)
	time.Sleep(time.Millisecond)
	close(stop)
	<-writerDone
	unsubscribe()

	seen := make(map[string]int)
	for _, e := range backlog {
		seen[e.Message]++
	}
	for e := range ch {
		seen[e.Message]++
	}
	for msg, n := range seen {
		assert.Equal(t, 1, n, "entry %q delivered more than once", msg)
	}
}
