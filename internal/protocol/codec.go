package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
)

const readBufferSize = 64 * 1024

// Reader reads framed packets from a byte stream.
//
// A read error other than end-of-stream leaves the reader's partial progress intact,
// so calling ReadPacket again resumes the same packet instead of losing framing.
// Reader is not safe for concurrent use.
type Reader struct {
	r          *bufio.Reader
	maxPayload int

	hdr       [HeaderSize]byte
	hdrN      int
	header    Header
	payload   []byte
	payN      int
	inPayload bool
}

// NewReader creates a packet reader with the default payload limit
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:          bufio.NewReaderSize(r, readBufferSize),
		maxPayload: DefaultMaxPayloadSize,
	}
}

// SetMaxPayloadSize changes the payload limit. Zero or negative disables the limit.
func (r *Reader) SetMaxPayloadSize(n int) {
	r.maxPayload = n
}

// ReadPacket reads the next packet.
// It returns a *ProtocolError for malformed headers (without reading the payload),
// ErrConnectionClosed at end of stream, and any other read error unchanged.
func (r *Reader) ReadPacket() (*Packet, error) {
	if !r.inPayload {
		for r.hdrN < HeaderSize {
			n, err := r.r.Read(r.hdr[r.hdrN:])
			r.hdrN += n
			if err != nil && r.hdrN < HeaderSize {
				return nil, r.wrapReadErr(err, "header", r.hdrN, HeaderSize)
			}
		}

		h, err := ParseHeader(r.hdr[:])
		r.hdrN = 0
		if err != nil {
			return nil, err
		}
		if r.maxPayload > 0 && int(h.Length) > r.maxPayload {
			return nil, &ProtocolError{Header: h, Err: ErrPayloadTooLarge}
		}

		r.header = h
		r.payload = make([]byte, h.Length)
		r.payN = 0
		r.inPayload = true
	}

	for r.payN < len(r.payload) {
		n, err := r.r.Read(r.payload[r.payN:])
		r.payN += n
		if err != nil && r.payN < len(r.payload) {
			return nil, r.wrapReadErr(err, "payload", r.payN, len(r.payload))
		}
	}

	packet := &Packet{
		Kind:      r.header.Kind,
		Timestamp: r.header.Timestamp,
		Payload:   r.payload,
	}
	r.payload = nil
	r.inPayload = false

	return packet, nil
}

// wrapReadErr maps end-of-stream to ErrConnectionClosed
func (r *Reader) wrapReadErr(err error, part string, got, want int) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if got == 0 && part == "header" {
			return ErrConnectionClosed
		}
		return fmt.Errorf("%w: stream ended after %d of %d %s bytes", ErrConnectionClosed, got, want, part)
	}
	return fmt.Errorf("read %s: %w", part, err)
}

// Writer encodes packets onto a byte stream, flushing after every packet.
// Writer is not safe for concurrent use; callers serialize access.
type Writer struct {
	w   *bufio.Writer
	hdr [HeaderSize]byte
}

// NewWriter creates a packet writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WritePacket writes the header and payload, then flushes so the packet
// is observable by the peer without delay.
func (w *Writer) WritePacket(kind Kind, timestamp int64, payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return fmt.Errorf("payload too large: %d bytes", len(payload))
	}

	h := Header{Kind: kind, Timestamp: timestamp, Length: int32(len(payload))}
	if _, err := w.w.Write(h.AppendTo(w.hdr[:0])); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}
