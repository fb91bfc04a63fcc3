package audio

import (
	"encoding/binary"
	"math"
)

// SampleRate is the PCM rate used on the wire
const SampleRate = 16000

// NormalizeSample maps an int16 sample into [-1, 1)
func NormalizeSample(s int16) float32 {
	return float32(s) / 32768
}

// DecodePCM16 converts little-endian PCM16 bytes into normalized floats.
// It writes min(len(dst), len(src)/2) samples and returns that count.
func DecodePCM16(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		dst[i] = NormalizeSample(int16(binary.LittleEndian.Uint16(src[i*2:])))
	}
	return n
}

// EncodePCM16 converts float samples to little-endian PCM16.
// Samples are clamped to [-1, 1] and scaled by 32767; NaN encodes as silence.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToSample(s)))
	}
	return out
}

// FloatToSample clamps x to [-1, 1] and scales it to int16
func FloatToSample(x float32) int16 {
	if math.IsNaN(float64(x)) {
		return 0
	}
	x = max(-1, min(1, x))
	return int16(x * 32767)
}

// BytesToSamples reinterprets little-endian PCM16 bytes as int16 samples
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes int16 samples as little-endian PCM16 bytes
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
