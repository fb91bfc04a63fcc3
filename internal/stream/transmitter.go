package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sound-Bartender/MJPEGApp/internal/protocol"
)

var errSend = errors.New("send failed")

// transmitLoop writes queued enhanced windows until the queue closes.
// A write failure tears the session down.
func (s *Session) transmitLoop(ctx context.Context) {
	s.logger.Debug("Transmit loop started")
	defer s.logger.Debug("Transmit loop stopped")

	for {
		item, ok := s.queue.Next(ctx)
		if !ok {
			return
		}

		if err := s.writePacket(protocol.KindEnhancedAudio, item.Timestamp, item.Payload); err != nil {
			s.Teardown(fmt.Errorf("%w: %w", errSend, err))
			return
		}
		s.packetsSent.Add(1)
		s.metrics.RecordPacketSent(len(item.Payload))

		if s.recorder != nil {
			if _, err := s.recorder.Write(item.Payload); err != nil {
				s.logger.Warn("Recording write failed, recording stopped", slog.String("error", err.Error()))
				s.recorder = nil
			}
		}
	}
}

// writePacket serializes all writers of the socket
func (s *Session) writePacket(kind protocol.Kind, timestamp int64, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writer.WritePacket(kind, timestamp, payload)
}
