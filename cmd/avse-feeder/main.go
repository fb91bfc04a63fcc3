// avse-feeder is a synthetic MJPEG+PCM sender for exercising avse-client.
//
// It listens for one client at a time and streams a generated JPEG frame and
// one PCM chunk every 40 ms, both stamped with the same monotonic timestamp.
// Audio comes from a 16 kHz mono WAV file (looped) or a generated tone.
// Enhanced audio sent back by the client is counted and optionally saved.
//
// Usage:
//
//	avse-feeder --listen :9000
//	avse-feeder --listen :9000 --wav speech.wav --save enhanced.wav
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
