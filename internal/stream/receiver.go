package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sound-Bartender/MJPEGApp/internal/avsync"
	"github.com/Sound-Bartender/MJPEGApp/internal/protocol"
)

// receiveLoop reads packets until teardown. Fatal read errors tear the session down;
// anything else is logged and retried after the retry delay.
func (s *Session) receiveLoop(ctx context.Context) {
	s.logger.Debug("Receive loop started")
	defer s.logger.Debug("Receive loop stopped")

	for s.running.Load() {
		pkt, err := s.reader.ReadPacket()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if protocol.IsFatal(err) {
				var perr *protocol.ProtocolError
				if errors.As(err, &perr) {
					s.metrics.RecordProtocolError()
				}
				s.Teardown(fmt.Errorf("receive: %w", err))
				return
			}

			s.transientErrors.Add(1)
			s.metrics.RecordTransientError()
			s.logger.Warn("Transient read error, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_delay", s.cfg.RetryDelay))

			select {
			case <-s.done:
				return
			case <-time.After(s.cfg.RetryDelay):
			}
			continue
		}

		s.handlePacket(ctx, pkt)
	}
}

// handlePacket routes one packet. It is the only writer of the sync queues.
func (s *Session) handlePacket(ctx context.Context, pkt *protocol.Packet) {
	if pkt.IsHeartbeat() {
		s.heartbeats.Add(1)
		s.logger.Debug("Empty packet ignored", slog.String("kind", pkt.Kind.String()))
		return
	}

	s.metrics.RecordPacketReceived(pkt.Kind.String(), len(pkt.Payload))
	item := avsync.Item{Timestamp: pkt.Timestamp, Payload: pkt.Payload}

	switch pkt.Kind {
	case protocol.KindVideo:
		s.videoReceived.Add(1)
		s.aligner.PushVideo(item)

	case protocol.KindAudio:
		s.audioReceived.Add(1)
		s.aligner.PushAudio(item)

	default:
		s.ignored.Add(1)
		s.logger.Warn("Ignoring unexpected packet",
			slog.String("kind", pkt.Kind.String()),
			slog.Int64("timestamp", pkt.Timestamp),
			slog.Int("payload_len", len(pkt.Payload)))
		return
	}

	// Either kind may complete a pair, whichever arrives second
	if pair, ok := s.aligner.Match(); ok {
		s.processPair(ctx, pair)
	}
}
