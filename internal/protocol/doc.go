// Package protocol implements the framed media protocol spoken with the stream sender.
// Every packet is a fixed 13-byte big-endian header (kind, timestamp, payload length)
// followed by the payload. The package provides header parsing, a resumable packet
// reader and a flushing packet writer.
package protocol
