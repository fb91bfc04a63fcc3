// Package audio converts between PCM16 byte streams and normalized float samples,
// and reads and writes mono 16-bit WAV files for capture and test input.
package audio
