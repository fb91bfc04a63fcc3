package avsync

import (
	"log/slog"
	"sync/atomic"

	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
)

// Defaults mirror the sender's 25 fps video and 40 ms audio cadence
const (
	DefaultTolerance     int64 = 40_000_000 // 40 ms in nanoseconds
	DefaultVideoCapacity       = 3
	DefaultSyncCapacity        = 5
)

// Eviction reasons reported to metrics
const (
	ReasonDemuxCap = "demux_cap"
	ReasonSyncCap  = "sync_cap"
	ReasonStale    = "stale"
)

// Pair is a video item and an audio item whose timestamps lie within tolerance
type Pair struct {
	Video          []byte
	Audio          []byte
	VideoTimestamp int64
	AudioTimestamp int64
}

// Config controls queue bounds and matching tolerance
type Config struct {
	Tolerance     int64 // nanoseconds, inclusive
	VideoCapacity int   // enforced on every video push
	SyncCapacity  int   // both queues are trimmed to this before matching
}

// DefaultConfig returns the standard synchronizer settings
func DefaultConfig() Config {
	return Config{
		Tolerance:     DefaultTolerance,
		VideoCapacity: DefaultVideoCapacity,
		SyncCapacity:  DefaultSyncCapacity,
	}
}

// Stats is a snapshot of synchronizer counters
type Stats struct {
	Matches         uint64 `json:"matches"`
	VideoDropped    uint64 `json:"video_dropped"`
	AudioDropped    uint64 `json:"audio_dropped"`
	VideoQueueDepth int    `json:"video_queue_depth"`
	AudioQueueDepth int    `json:"audio_queue_depth"`
}

// Synchronizer owns the video and audio queues and pairs their items
type Synchronizer struct {
	cfg     Config
	video   *Queue
	audio   *Queue
	logger  *slog.Logger
	metrics *metrics.Metrics

	matches      atomic.Uint64
	videoDropped atomic.Uint64
	audioDropped atomic.Uint64
}

// NewSynchronizer creates a synchronizer. Zero config fields fall back to defaults.
func NewSynchronizer(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.VideoCapacity <= 0 {
		cfg.VideoCapacity = def.VideoCapacity
	}
	if cfg.SyncCapacity <= 0 {
		cfg.SyncCapacity = def.SyncCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Synchronizer{
		cfg:   cfg,
		video: NewQueue(cfg.VideoCapacity),
		// one slot of headroom so the newest chunk is queued before the trim runs
		audio:   NewQueue(cfg.SyncCapacity + 1),
		logger:  logger.With("component", "avsync"),
		metrics: m,
	}
}

// PushVideo queues a video item, evicting the oldest beyond the video capacity
func (s *Synchronizer) PushVideo(item Item) {
	if n := s.video.Push(item); n > 0 {
		s.dropVideo(n, ReasonDemuxCap)
	}
}

// PushAudio queues an audio item
func (s *Synchronizer) PushAudio(item Item) {
	if n := s.audio.Push(item); n > 0 {
		s.dropAudio(n, ReasonSyncCap)
	}
}

// Match runs one synchronization pass and returns the first aligned pair, if any.
//
// Both queues are first trimmed to the sync capacity. Then the oldest video and audio
// items are compared: within tolerance both are consumed as a pair; otherwise the item
// with the smaller timestamp is discarded (audio on a tie) and the comparison repeats.
func (s *Synchronizer) Match() (Pair, bool) {
	if n := s.video.TrimTo(s.cfg.SyncCapacity); n > 0 {
		s.dropVideo(n, ReasonSyncCap)
	}
	if n := s.audio.TrimTo(s.cfg.SyncCapacity); n > 0 {
		s.dropAudio(n, ReasonSyncCap)
	}

	for {
		v, ok := s.video.Peek()
		if !ok {
			return Pair{}, false
		}
		a, ok := s.audio.Peek()
		if !ok {
			return Pair{}, false
		}

		if absDiff(v.Timestamp, a.Timestamp) <= uint64(s.cfg.Tolerance) {
			s.video.Pop()
			s.audio.Pop()
			s.matches.Add(1)
			s.metrics.RecordSyncMatch()
			return Pair{
				Video:          v.Payload,
				Audio:          a.Payload,
				VideoTimestamp: v.Timestamp,
				AudioTimestamp: a.Timestamp,
			}, true
		}

		if v.Timestamp < a.Timestamp {
			s.video.Pop()
			s.dropVideo(1, ReasonStale)
		} else {
			s.audio.Pop()
			s.dropAudio(1, ReasonStale)
		}
	}
}

// Clear empties both queues
func (s *Synchronizer) Clear() {
	s.video.Clear()
	s.audio.Clear()
}

// Stats returns current counters and queue depths
func (s *Synchronizer) Stats() Stats {
	return Stats{
		Matches:         s.matches.Load(),
		VideoDropped:    s.videoDropped.Load(),
		AudioDropped:    s.audioDropped.Load(),
		VideoQueueDepth: s.video.Len(),
		AudioQueueDepth: s.audio.Len(),
	}
}

// VideoQueue exposes the video queue for inspection
func (s *Synchronizer) VideoQueue() *Queue { return s.video }

// AudioQueue exposes the audio queue for inspection
func (s *Synchronizer) AudioQueue() *Queue { return s.audio }

func (s *Synchronizer) dropVideo(n int, reason string) {
	s.videoDropped.Add(uint64(n))
	s.metrics.RecordEviction("video", reason, n)
	s.logger.Debug("Dropped video frames", slog.Int("count", n), slog.String("reason", reason))
}

func (s *Synchronizer) dropAudio(n int, reason string) {
	s.audioDropped.Add(uint64(n))
	s.metrics.RecordEviction("audio", reason, n)
	s.logger.Debug("Dropped audio chunks", slog.Int("count", n), slog.String("reason", reason))
}

// absDiff is computed in uint64 so extreme timestamps cannot overflow
func absDiff(a, b int64) uint64 {
	if a > b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
