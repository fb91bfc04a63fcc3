// Package stream runs the bidirectional session with the media sender.
//
// A Session owns one TCP connection. Its receive loop demultiplexes video and audio
// packets into the synchronizer, feeds aligned pairs through the face cropper into the
// tensor accumulator and hands completed windows to the inference gateway. Enhanced
// audio is queued on a bounded SendQueue and written back by the transmit loop.
// Any fatal condition tears the whole session down exactly once.
//
// The Manager keeps at most one session and exposes connect/disconnect control, the
// overlap toggle and a status log for the control API.
package stream
