package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
	"github.com/Sound-Bartender/MJPEGApp/internal/tensor"
)

// ErrSkipped is returned when a window arrives while another inference is running
var ErrSkipped = errors.New("inference: busy, window skipped")

// Enhancer produces an enhanced waveform from a window's video and audio
type Enhancer interface {
	Enhance(video, audio []float32) ([]float32, error)
}

// Gateway serializes access to an Enhancer without queueing: a call made while
// another is in flight returns ErrSkipped immediately.
type Gateway struct {
	enhancer      Enhancer
	windowSamples int
	busy          atomic.Bool
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewGateway creates a gateway producing windowSamples PCM16 samples per run
func NewGateway(e Enhancer, windowSamples int, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		enhancer:      e,
		windowSamples: windowSamples,
		logger:        logger.With("component", "gateway"),
		metrics:       m,
	}
}

// Busy reports whether an inference is in flight
func (g *Gateway) Busy() bool {
	return g.busy.Load()
}

// Run enhances one window and returns little-endian PCM16 bytes.
// The busy guard is released on every path, including a panicking backend.
func (g *Gateway) Run(ctx context.Context, w *tensor.Window) (pcm []byte, err error) {
	if !g.busy.CompareAndSwap(false, true) {
		g.metrics.RecordInferenceSkipped()
		return nil, ErrSkipped
	}
	defer g.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			pcm, err = nil, fmt.Errorf("inference: backend panic: %v", r)
			g.metrics.RecordInference(0, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	samples, err := g.enhancer.Enhance(w.Video, w.Audio)
	elapsed := time.Since(start)
	g.metrics.RecordInference(elapsed.Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("inference window %d: %w", w.Seq, err)
	}
	if len(samples) != g.windowSamples {
		return nil, fmt.Errorf("inference window %d: got %d samples, want %d", w.Seq, len(samples), g.windowSamples)
	}

	g.logger.Debug("Window enhanced",
		slog.Uint64("seq", w.Seq),
		slog.Int64("timestamp", w.Timestamp),
		slog.Duration("duration", elapsed))

	return audio.EncodePCM16(samples), nil
}
