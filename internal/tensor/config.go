package tensor

import "fmt"

// Default window geometry: one second of 16 kHz audio against 25 frames of 88x88 video
const (
	DefaultFrames          = 25
	DefaultFrameSize       = 88
	DefaultSamplesPerChunk = 640
	DefaultWindowSamples   = 16000
	DefaultOverlapFrames   = 10
)

// Config describes the window geometry
type Config struct {
	Frames          int  // video frames (and audio chunks) per window
	FrameSize       int  // square frame edge in pixels
	SamplesPerChunk int  // PCM16 samples carried by one audio packet
	WindowSamples   int  // audio samples per window
	KeepFrames      int  // frames carried into the next window, 0 disables overlap
	CarryTail       bool // carry the last KeepFrames instead of the first
	Rotate          bool // read frames rotated a quarter turn, see Luma
}

// DefaultConfig returns the standard window geometry without overlap
func DefaultConfig() Config {
	return Config{
		Frames:          DefaultFrames,
		FrameSize:       DefaultFrameSize,
		SamplesPerChunk: DefaultSamplesPerChunk,
		WindowSamples:   DefaultWindowSamples,
	}
}

// Validate checks that the geometry is consistent
func (c Config) Validate() error {
	if c.Frames < 1 {
		return fmt.Errorf("frames must be at least 1, got %d", c.Frames)
	}
	if c.FrameSize < 1 {
		return fmt.Errorf("frame_size must be at least 1, got %d", c.FrameSize)
	}
	if c.WindowSamples < c.Frames || c.WindowSamples%c.Frames != 0 {
		return fmt.Errorf("window_samples (%d) must be a positive multiple of frames (%d)", c.WindowSamples, c.Frames)
	}
	if c.SamplesPerChunk < c.SamplesPerFrame() {
		return fmt.Errorf("samples_per_chunk (%d) must be at least window_samples/frames (%d)",
			c.SamplesPerChunk, c.SamplesPerFrame())
	}
	if c.KeepFrames < 0 || c.KeepFrames >= c.Frames {
		return fmt.Errorf("keep_frames must be between 0 and %d, got %d", c.Frames-1, c.KeepFrames)
	}
	return nil
}

// SamplesPerFrame returns the audio samples stored per video frame
func (c Config) SamplesPerFrame() int {
	return c.WindowSamples / c.Frames
}

// ChunkBytes returns the expected audio packet payload size
func (c Config) ChunkBytes() int {
	return c.SamplesPerChunk * 2
}

// FramePixels returns the number of luma values per frame
func (c Config) FramePixels() int {
	return c.FrameSize * c.FrameSize
}

// VideoLen returns the length of a window's video buffer
func (c Config) VideoLen() int {
	return c.Frames * c.FramePixels()
}
