package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Sync      SyncConfig      `yaml:"sync"`
	Window    WindowConfig    `yaml:"window"`
	Inference InferenceConfig `yaml:"inference"`
	Vision    VisionConfig    `yaml:"vision"`
	SendQueue SendQueueConfig `yaml:"send_queue"`
	HTTP      HTTPConfig      `yaml:"http"`
	Recording RecordingConfig `yaml:"recording"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ClientConfig contains the media sender connection settings
type ClientConfig struct {
	Address        string `yaml:"address"`         // host:port of the sender
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	RetryDelayMS   int    `yaml:"retry_delay_ms"`  // pause after a transient read error
	MaxPayloadSize int    `yaml:"max_payload_size"`
	AutoConnect    bool   `yaml:"auto_connect"`
}

// SyncConfig contains timestamp alignment parameters
type SyncConfig struct {
	ToleranceMS    int `yaml:"tolerance_ms"`
	VideoBufferCap int `yaml:"video_buffer_cap"`
	SyncBufferCap  int `yaml:"sync_buffer_cap"`
}

// WindowConfig contains model window geometry
type WindowConfig struct {
	Frames          int  `yaml:"frames"`
	FrameSize       int  `yaml:"frame_size"`
	SamplesPerChunk int  `yaml:"samples_per_chunk"`
	WindowSamples   int  `yaml:"window_samples"`
	Overlap         bool `yaml:"overlap"`
	OverlapFrames   int  `yaml:"overlap_frames"`
	CarryTail       bool `yaml:"carry_tail"`
	Rotate          bool `yaml:"rotate"`
}

// InferenceConfig selects the model backend
type InferenceConfig struct {
	Backend      string `yaml:"backend"`
	VideoModel   string `yaml:"video_model"`
	AudioModel   string `yaml:"audio_model"`
	EmbeddingDim int    `yaml:"embedding_dim"`
	WarmUp       bool   `yaml:"warm_up"`
}

// VisionConfig contains face crop parameters
type VisionConfig struct {
	Detector    string  `yaml:"detector"`     // "none" or "center"
	CenterScale float64 `yaml:"center_scale"` // face size relative to the shorter frame edge
}

// SendQueueConfig contains outbound queue parameters
type SendQueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// RecordingConfig controls enhanced audio capture
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Address:        "127.0.0.1:9000",
			ConnectTimeout: 5,
			RetryDelayMS:   100,
			MaxPayloadSize: 16 << 20,
		},
		Sync: SyncConfig{
			ToleranceMS:    40,
			VideoBufferCap: 3,
			SyncBufferCap:  5,
		},
		Window: WindowConfig{
			Frames:          25,
			FrameSize:       88,
			SamplesPerChunk: 640,
			WindowSamples:   16000,
			OverlapFrames:   10,
		},
		Inference: InferenceConfig{
			Backend:      "identity",
			EmbeddingDim: 512,
			WarmUp:       true,
		},
		Vision: VisionConfig{
			Detector:    "none",
			CenterScale: 0.6,
		},
		SendQueue: SendQueueConfig{
			Capacity: 64,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Recording: RecordingConfig{
			Dir: "./recordings",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.Window.Validate(); err != nil {
		return fmt.Errorf("window config: %w", err)
	}

	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference config: %w", err)
	}

	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision config: %w", err)
	}

	if c.SendQueue.Capacity < 1 {
		return fmt.Errorf("send_queue config: capacity must be at least 1, got %d", c.SendQueue.Capacity)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if c.Recording.Enabled && c.Recording.Dir == "" {
		return fmt.Errorf("recording config: dir cannot be empty when recording is enabled")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates client configuration.
// An empty address is allowed; it must then be given when connecting.
func (c *ClientConfig) Validate() error {
	if c.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", c.ConnectTimeout)
	}

	if c.RetryDelayMS < 1 {
		return fmt.Errorf("retry_delay_ms must be at least 1, got %d", c.RetryDelayMS)
	}

	if c.MaxPayloadSize < 0 {
		return fmt.Errorf("max_payload_size cannot be negative, got %d", c.MaxPayloadSize)
	}

	if c.AutoConnect && c.Address == "" {
		return fmt.Errorf("address cannot be empty when auto_connect is set")
	}

	return nil
}

// Validate validates synchronization configuration
func (s *SyncConfig) Validate() error {
	if s.ToleranceMS < 1 {
		return fmt.Errorf("tolerance_ms must be at least 1, got %d", s.ToleranceMS)
	}

	if s.VideoBufferCap < 1 {
		return fmt.Errorf("video_buffer_cap must be at least 1, got %d", s.VideoBufferCap)
	}

	if s.SyncBufferCap < 1 {
		return fmt.Errorf("sync_buffer_cap must be at least 1, got %d", s.SyncBufferCap)
	}

	return nil
}

// Validate validates window geometry
func (w *WindowConfig) Validate() error {
	if w.Frames < 1 {
		return fmt.Errorf("frames must be at least 1, got %d", w.Frames)
	}

	if w.FrameSize < 1 {
		return fmt.Errorf("frame_size must be at least 1, got %d", w.FrameSize)
	}

	if w.WindowSamples%w.Frames != 0 || w.WindowSamples < w.Frames {
		return fmt.Errorf("window_samples (%d) must be a positive multiple of frames (%d)", w.WindowSamples, w.Frames)
	}

	if w.SamplesPerChunk < w.WindowSamples/w.Frames {
		return fmt.Errorf("samples_per_chunk (%d) must be at least window_samples/frames (%d)",
			w.SamplesPerChunk, w.WindowSamples/w.Frames)
	}

	if w.OverlapFrames < 0 || w.OverlapFrames >= w.Frames {
		return fmt.Errorf("overlap_frames must be between 0 and %d, got %d", w.Frames-1, w.OverlapFrames)
	}

	return nil
}

// Validate validates inference configuration
func (i *InferenceConfig) Validate() error {
	if i.Backend == "" {
		return fmt.Errorf("backend cannot be empty")
	}

	if i.Backend != "identity" && (i.VideoModel == "" || i.AudioModel == "") {
		return fmt.Errorf("video_model and audio_model are required for backend %q", i.Backend)
	}

	if i.EmbeddingDim < 1 {
		return fmt.Errorf("embedding_dim must be at least 1, got %d", i.EmbeddingDim)
	}

	return nil
}

// Validate validates vision configuration
func (v *VisionConfig) Validate() error {
	switch v.Detector {
	case "none", "":
	case "center":
		if v.CenterScale <= 0 || v.CenterScale > 1 {
			return fmt.Errorf("center_scale must be in (0, 1], got %f", v.CenterScale)
		}
	default:
		return fmt.Errorf("detector must be 'none' or 'center', got '%s'", v.Detector)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr or a file path
	return nil
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (c *ClientConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetRetryDelay returns the transient error retry delay as a time.Duration
func (c *ClientConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// GetTolerance returns the alignment tolerance as a time.Duration
func (s *SyncConfig) GetTolerance() time.Duration {
	return time.Duration(s.ToleranceMS) * time.Millisecond
}

// KeepFrames returns the frames carried between windows for the current overlap setting
func (w *WindowConfig) KeepFrames() int {
	if !w.Overlap {
		return 0
	}
	return w.OverlapFrames
}
