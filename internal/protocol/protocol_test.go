package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    Header
		expectError bool
		protocolErr bool
	}{
		{
			name: "valid video header",
			data: []byte{
				0x00,                                           // Kind: video
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xF2, // Timestamp: 1010
				0x00, 0x00, 0x10, 0x00, // Length: 4096
			},
			expected: Header{Kind: KindVideo, Timestamp: 1010, Length: 4096},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xE8, // 1000
				0x00, 0x00, 0x05, 0x00, // 1280
			},
			expected: Header{Kind: KindAudio, Timestamp: 1000, Length: 1280},
		},
		{
			name: "negative timestamp is preserved",
			data: []byte{
				0x02,
				0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // -1
				0x00, 0x00, 0x00, 0x00,
			},
			expected: Header{Kind: KindEnhancedAudio, Timestamp: -1, Length: 0},
		},
		{
			name: "negative length",
			data: []byte{
				0x01,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
				0xFF, 0xFF, 0xFF, 0xFF, // -1
			},
			expectError: true,
			protocolErr: true,
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHeader(tt.data)
			if tt.expectError {
				require.Error(t, err)
				var perr *ProtocolError
				assert.Equal(t, tt.protocolErr, errors.As(err, &perr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h)
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	headers := []Header{
		{Kind: KindVideo, Timestamp: 0, Length: 0},
		{Kind: KindAudio, Timestamp: 1000, Length: 1280},
		{Kind: KindEnhancedAudio, Timestamp: math.MaxInt64, Length: math.MaxInt32},
		{Kind: KindVideo, Timestamp: math.MinInt64, Length: 1},
	}

	for _, h := range headers {
		t.Run(h.String(), func(t *testing.T) {
			encoded := h.AppendTo(nil)
			require.Len(t, encoded, HeaderSize)

			decoded, err := ParseHeader(encoded)
			require.NoError(t, err)
			assert.Equal(t, h, decoded)
		})
	}
}

func TestPacketRoundTrip(t *testing.T) {
	packets := []Packet{
		{Kind: KindAudio, Timestamp: 1000, Payload: make([]byte, 1280)},
		{Kind: KindVideo, Timestamp: 1010, Payload: []byte{0xFF, 0xD8, 0xFF, 0xD9}},
		{Kind: KindEnhancedAudio, Timestamp: -42, Payload: bytes.Repeat([]byte{0x7F}, 32000)},
		{Kind: KindAudio, Timestamp: 7, Payload: []byte{}},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, p := range packets {
		require.NoError(t, w.WritePacket(p.Kind, p.Timestamp, p.Payload))
	}

	r := NewReader(&buf)
	for _, want := range packets {
		got, err := r.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Timestamp, got.Timestamp)
		assert.Equal(t, len(want.Payload), len(got.Payload))
		assert.True(t, bytes.Equal(want.Payload, got.Payload))
	}

	_, err := r.ReadPacket()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWriterFlushesEachPacket(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WritePacket(KindEnhancedAudio, 5, []byte{1, 2, 3}))
	assert.Equal(t, HeaderSize+3, buf.Len(), "packet must be visible right after WritePacket")

	require.NoError(t, w.WritePacket(KindEnhancedAudio, 6, nil))
	assert.Equal(t, 2*HeaderSize+3, buf.Len())
}

func TestReadPacketNegativeLength(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	hdr[0] = byte(KindAudio)
	binary.BigEndian.PutUint64(hdr[1:9], 1000)
	binary.BigEndian.PutUint32(hdr[9:13], uint32(0x80000000)) // math.MinInt32

	// Only the header is available: any payload read would surface as ErrConnectionClosed.
	r := NewReader(iotest.OneByteReader(bytes.NewReader(hdr)))
	_, err := r.ReadPacket()

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrNegativeLength)
	assert.Equal(t, int32(math.MinInt32), perr.Header.Length)
	assert.True(t, IsFatal(err))
}

func TestReadPacketPayloadTooLarge(t *testing.T) {
	h := Header{Kind: KindVideo, Timestamp: 1, Length: 1024}
	r := NewReader(bytes.NewReader(h.AppendTo(nil)))
	r.SetMaxPayloadSize(512)

	_, err := r.ReadPacket()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.True(t, IsFatal(err))
}

func TestReadPacketEndOfStream(t *testing.T) {
	full := Header{Kind: KindAudio, Timestamp: 1, Length: 8}.AppendTo(nil)
	full = append(full, 1, 2, 3, 4, 5, 6, 7, 8)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty stream", data: nil},
		{name: "mid header", data: full[:5]},
		{name: "mid payload", data: full[:HeaderSize+3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tt.data))
			_, err := r.ReadPacket()
			assert.ErrorIs(t, err, ErrConnectionClosed)
			assert.True(t, IsFatal(err))
		})
	}
}

// flakyReader fails once after failAfter bytes, then keeps serving data
type flakyReader struct {
	data      []byte
	pos       int
	failAfter int
	failed    bool
}

var errFlaky = errors.New("resource temporarily unavailable")

func (f *flakyReader) Read(p []byte) (int, error) {
	if !f.failed && f.pos >= f.failAfter {
		f.failed = true
		return 0, errFlaky
	}
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	end := len(f.data)
	if !f.failed && f.failAfter < end {
		end = f.failAfter
	}
	n := copy(p, f.data[f.pos:end])
	f.pos += n
	return n, nil
}

func TestReadPacketResumesAfterTransientError(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	data := Header{Kind: KindAudio, Timestamp: 99, Length: int32(len(payload))}.AppendTo(nil)
	data = append(data, payload...)

	for _, failAfter := range []int{4, HeaderSize, HeaderSize + 40} {
		r := NewReader(&flakyReader{data: data, failAfter: failAfter})

		_, err := r.ReadPacket()
		require.ErrorIs(t, err, errFlaky)
		assert.False(t, IsFatal(err))

		p, err := r.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, int64(99), p.Timestamp)
		assert.Equal(t, payload, p.Payload)
	}
}

func TestZeroLengthPacketIsHeartbeat(t *testing.T) {
	r := NewReader(bytes.NewReader(Header{Kind: KindVideo, Timestamp: 3}.AppendTo(nil)))
	p, err := r.ReadPacket()
	require.NoError(t, err)
	assert.True(t, p.IsHeartbeat())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "audio", KindAudio.String())
	assert.Equal(t, "enhanced_audio", KindEnhancedAudio.String())
	assert.Equal(t, "unknown(0x07)", Kind(7).String())
	assert.False(t, Kind(3).Valid())
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errFlaky))
	assert.True(t, IsFatal(io.EOF))
	assert.True(t, IsFatal(io.ErrClosedPipe))
	assert.True(t, IsFatal(&ProtocolError{Err: ErrNegativeLength}))
}
