package avsync

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSynchronizer(t *testing.T) (*Synchronizer, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewSynchronizer(DefaultConfig(), testLogger(), m), m
}

func ms(n int64) int64 { return n * 1_000_000 }

func TestQueueEvictsOldest(t *testing.T) {
	q := NewQueue(3)

	for i := int64(1); i <= 3; i++ {
		assert.Equal(t, 0, q.Push(Item{Timestamp: i}))
	}
	assert.Equal(t, 1, q.Push(Item{Timestamp: 4}))
	assert.Equal(t, []int64{2, 3, 4}, q.Timestamps())
	assert.Equal(t, 3, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, int64(2), item.Timestamp)

	assert.Equal(t, 1, q.TrimTo(1))
	assert.Equal(t, []int64{4}, q.Timestamps())

	q.Clear()
	_, ok = q.Peek()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueKeepsArrivalOrder(t *testing.T) {
	q := NewQueue(5)
	for _, ts := range []int64{50, 10, 30} {
		q.Push(Item{Timestamp: ts})
	}
	assert.Equal(t, []int64{50, 10, 30}, q.Timestamps())
}

func TestMatchTolerance(t *testing.T) {
	tests := []struct {
		name      string
		video     int64
		audio     int64
		wantMatch bool
		videoLeft int
		audioLeft int
	}{
		{name: "exact", video: ms(1000), audio: ms(1000), wantMatch: true},
		{name: "boundary inclusive", video: ms(1000), audio: ms(1000) + 40_000_000, wantMatch: true},
		{name: "boundary inclusive reversed", video: ms(1040), audio: ms(1000), wantMatch: true},
		{name: "one past tolerance drops video", video: 0, audio: 40_000_001, videoLeft: 0, audioLeft: 1},
		{name: "one past tolerance drops audio", video: 40_000_001, audio: 0, videoLeft: 1, audioLeft: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSynchronizer(t)
			s.PushVideo(Item{Timestamp: tt.video, Payload: []byte("v")})
			s.PushAudio(Item{Timestamp: tt.audio, Payload: []byte("a")})

			pair, ok := s.Match()
			assert.Equal(t, tt.wantMatch, ok)
			if ok {
				assert.Equal(t, tt.video, pair.VideoTimestamp)
				assert.Equal(t, tt.audio, pair.AudioTimestamp)
				assert.Equal(t, []byte("v"), pair.Video)
				assert.Equal(t, []byte("a"), pair.Audio)
			}
			assert.Equal(t, tt.videoLeft, s.VideoQueue().Len())
			assert.Equal(t, tt.audioLeft, s.AudioQueue().Len())
		})
	}
}

func TestMatchDiscardsStaleUntilAligned(t *testing.T) {
	s, m := newTestSynchronizer(t)

	s.PushVideo(Item{Timestamp: ms(1000)})
	s.PushVideo(Item{Timestamp: ms(1040)})
	s.PushVideo(Item{Timestamp: ms(1080)})
	s.PushAudio(Item{Timestamp: ms(1100)})

	pair, ok := s.Match()
	require.True(t, ok)
	assert.Equal(t, ms(1080), pair.VideoTimestamp)
	assert.Equal(t, ms(1100), pair.AudioTimestamp)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Matches)
	// 1000 is 100ms away and gets dropped; 1040 is 60ms away and gets dropped
	assert.Equal(t, uint64(2), stats.VideoDropped)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evictions.WithLabelValues("video", ReasonStale)))
}

func TestMatchReturnsOnlyOnePairPerPass(t *testing.T) {
	s, _ := newTestSynchronizer(t)

	s.PushVideo(Item{Timestamp: ms(0)})
	s.PushVideo(Item{Timestamp: ms(40)})
	s.PushAudio(Item{Timestamp: ms(0)})
	s.PushAudio(Item{Timestamp: ms(40)})

	_, ok := s.Match()
	require.True(t, ok)
	assert.Equal(t, 1, s.VideoQueue().Len())
	assert.Equal(t, 1, s.AudioQueue().Len())

	_, ok = s.Match()
	require.True(t, ok)
	assert.Equal(t, 0, s.VideoQueue().Len())
}

func TestVideoQueueBoundedByDemuxCap(t *testing.T) {
	s, m := newTestSynchronizer(t)

	for i := int64(0); i < 5; i++ {
		s.PushVideo(Item{Timestamp: ms(i * 40)})
	}
	assert.Equal(t, []int64{ms(80), ms(120), ms(160)}, s.VideoQueue().Timestamps())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evictions.WithLabelValues("video", ReasonDemuxCap)))
}

func TestAudioQueueTrimmedBeforeMatch(t *testing.T) {
	s, _ := newTestSynchronizer(t)

	// audio arrives with no video: every pass trims to the sync capacity
	for i := int64(0); i < 8; i++ {
		s.PushAudio(Item{Timestamp: ms(i * 40)})
		_, ok := s.Match()
		assert.False(t, ok)
		assert.LessOrEqual(t, s.AudioQueue().Len(), DefaultSyncCapacity)
	}
	assert.Equal(t, []int64{ms(120), ms(160), ms(200), ms(240), ms(280)}, s.AudioQueue().Timestamps())
	assert.Equal(t, uint64(3), s.Stats().AudioDropped)
}

func TestEmptyQueuesDoNotMatch(t *testing.T) {
	s, _ := newTestSynchronizer(t)

	_, ok := s.Match()
	assert.False(t, ok)

	s.PushAudio(Item{Timestamp: 1})
	_, ok = s.Match()
	assert.False(t, ok)
	assert.Equal(t, 1, s.AudioQueue().Len(), "lone audio chunk waits for video")
}

func TestClear(t *testing.T) {
	s, _ := newTestSynchronizer(t)
	s.PushVideo(Item{Timestamp: 1})
	s.PushAudio(Item{Timestamp: 999_999_999})

	s.Clear()
	stats := s.Stats()
	assert.Zero(t, stats.VideoQueueDepth)
	assert.Zero(t, stats.AudioQueueDepth)
}
