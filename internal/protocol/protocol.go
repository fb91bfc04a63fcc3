package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// HeaderSize is the fixed header size: Kind(1) + Timestamp(8) + Length(4)
	HeaderSize = 13

	// DefaultMaxPayloadSize bounds a single payload allocation (16 MiB)
	DefaultMaxPayloadSize = 16 << 20
)

// Kind tags the payload carried by a packet
type Kind uint8

const (
	KindVideo         Kind = 0 // JPEG still image
	KindAudio         Kind = 1 // raw PCM16 samples, fixed chunk size
	KindEnhancedAudio Kind = 2 // raw PCM16 samples, fixed window size (client -> server)
)

// Valid reports whether k is a kind defined by the protocol
func (k Kind) Valid() bool {
	return k <= KindEnhancedAudio
}

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindEnhancedAudio:
		return "enhanced_audio"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}

// Header represents the 13-byte packet header
// Layout: [Kind:1][Timestamp:8][Length:4], big-endian
type Header struct {
	Kind      Kind
	Timestamp int64 // monotonic nanoseconds on the sender clock
	Length    int32 // payload length, must be >= 0
}

// Packet is a fully read packet. Payload is owned by the packet and never reused.
type Packet struct {
	Kind      Kind
	Timestamp int64
	Payload   []byte
}

// ParseHeader parses the 13-byte packet header.
// A negative length is reported as a *ProtocolError.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	h := Header{
		Kind:      Kind(data[0]),
		Timestamp: int64(binary.BigEndian.Uint64(data[1:9])),
		Length:    int32(binary.BigEndian.Uint32(data[9:13])),
	}

	if h.Length < 0 {
		return h, &ProtocolError{Header: h, Err: ErrNegativeLength}
	}

	return h, nil
}

// AppendTo appends the encoded header to dst and returns the extended slice
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(h.Kind))
	dst = binary.BigEndian.AppendUint64(dst, uint64(h.Timestamp))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.Length))
	return dst
}

// String returns a human-readable representation of the header
func (h Header) String() string {
	return fmt.Sprintf("Header{Kind:%s, Timestamp:%d, Length:%d}", h.Kind, h.Timestamp, h.Length)
}

// String returns a human-readable representation of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{Kind:%s, Timestamp:%d, PayloadLen:%d}", p.Kind, p.Timestamp, len(p.Payload))
}

// IsHeartbeat reports whether the packet carries no payload
func (p *Packet) IsHeartbeat() bool {
	return len(p.Payload) == 0
}
