// avse-client connects to an MJPEG+PCM sender, runs audio-visual speech
// enhancement over one-second windows and streams the enhanced audio back.
//
// Usage:
//
//	avse-client run                       # HTTP control API, connect via POST /connect
//	avse-client run --connect             # same, connecting at startup
//	avse-client connect 10.0.0.5:9000     # headless single session
//
// Configuration is read from configs/config.yaml unless --config is given.
package main

import (
	"os"

	"github.com/Sound-Bartender/MJPEGApp/cmd/avse-client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
