package stream

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Sound-Bartender/MJPEGApp/internal/avsync"
	"github.com/Sound-Bartender/MJPEGApp/internal/inference"
	"github.com/Sound-Bartender/MJPEGApp/internal/tensor"
)

// processPair crops the frame, accumulates the pair and dispatches a completed window.
// A pair whose frame cannot be cropped is dropped whole.
func (s *Session) processPair(ctx context.Context, pair avsync.Pair) {
	img, err := s.cropper.Crop(pair.Video)
	if err != nil {
		s.cropErrors.Add(1)
		s.metrics.RecordCropError()
		s.logger.Debug("Dropping pair, frame preprocessing failed",
			slog.Int64("video_ts", pair.VideoTimestamp),
			slog.String("error", err.Error()))
		return
	}

	if err := s.acc.AddPair(img, pair.Audio, pair.AudioTimestamp); err != nil {
		var verr *tensor.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordValidationError(verr.Media)
		}
		s.logger.Warn("Dropping pair",
			slog.Int64("audio_ts", pair.AudioTimestamp),
			slog.String("error", err.Error()))
		return
	}

	if !s.acc.Ready() {
		return
	}

	w, err := s.acc.Drain()
	if err != nil {
		s.logger.Warn("Window drain failed", slog.String("error", err.Error()))
		return
	}
	s.windowsCompleted.Add(1)
	s.metrics.RecordWindowCompleted()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.enhance(ctx, w)
	}()
}

// enhance runs inference for one window and queues the result for sending
func (s *Session) enhance(ctx context.Context, w *tensor.Window) {
	pcm, err := s.runner.Run(ctx, w)
	switch {
	case errors.Is(err, inference.ErrSkipped):
		s.windowsSkipped.Add(1)
		s.logger.Warn("Inference busy, window dropped", slog.Uint64("seq", w.Seq))
		return
	case err != nil:
		if s.running.Load() {
			s.logger.Error("Inference failed",
				slog.Uint64("seq", w.Seq),
				slog.String("error", err.Error()))
		}
		return
	}
	s.windowsEnhanced.Add(1)

	err = s.queue.Enqueue(ctx, SendItem{Timestamp: w.Timestamp, Payload: pcm})
	if err != nil {
		s.logger.Debug("Enhanced window not queued",
			slog.Uint64("seq", w.Seq),
			slog.String("error", err.Error()))
	}
}
