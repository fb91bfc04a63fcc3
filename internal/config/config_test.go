package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Client.ConnectTimeout = 0 },
			wantErr: "connect_timeout",
		},
		{
			name: "auto connect without address",
			mutate: func(c *Config) {
				c.Client.AutoConnect = true
				c.Client.Address = ""
			},
			wantErr: "auto_connect",
		},
		{
			name:    "zero tolerance",
			mutate:  func(c *Config) { c.Sync.ToleranceMS = 0 },
			wantErr: "tolerance_ms",
		},
		{
			name:    "zero sync buffer",
			mutate:  func(c *Config) { c.Sync.SyncBufferCap = 0 },
			wantErr: "sync_buffer_cap",
		},
		{
			name:    "window samples not divisible",
			mutate:  func(c *Config) { c.Window.WindowSamples = 16001 },
			wantErr: "window_samples",
		},
		{
			name:    "chunk shorter than frame",
			mutate:  func(c *Config) { c.Window.SamplesPerChunk = 100 },
			wantErr: "samples_per_chunk",
		},
		{
			name:    "overlap covers whole window",
			mutate:  func(c *Config) { c.Window.OverlapFrames = 25 },
			wantErr: "overlap_frames",
		},
		{
			name:    "onnx backend without models",
			mutate:  func(c *Config) { c.Inference.Backend = "onnxruntime" },
			wantErr: "video_model",
		},
		{
			name:    "unknown detector",
			mutate:  func(c *Config) { c.Vision.Detector = "haar" },
			wantErr: "detector",
		},
		{
			name: "center detector scale out of range",
			mutate: func(c *Config) {
				c.Vision.Detector = "center"
				c.Vision.CenterScale = 1.5
			},
			wantErr: "center_scale",
		},
		{
			name:    "empty send queue",
			mutate:  func(c *Config) { c.SendQueue.Capacity = 0 },
			wantErr: "capacity",
		},
		{
			name: "recording without dir",
			mutate: func(c *Config) {
				c.Recording.Enabled = true
				c.Recording.Dir = ""
			},
			wantErr: "recording",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigLoad(t *testing.T) {
	configContent := `
client:
  address: "10.0.0.5:7000"
  auto_connect: true
sync:
  tolerance_ms: 20
window:
  overlap: true
  overlap_frames: 5
inference:
  backend: "identity"
vision:
  detector: "center"
http:
  port: 9090
logging:
  level: "debug"
  format: "json"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:7000", cfg.Client.Address)
	assert.True(t, cfg.Client.AutoConnect)
	assert.Equal(t, 20, cfg.Sync.ToleranceMS)
	assert.Equal(t, 5, cfg.Window.KeepFrames())
	assert.Equal(t, "center", cfg.Vision.Detector)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "json", cfg.Logging.Format)

	// unset keys keep their defaults
	assert.Equal(t, 5, cfg.Client.ConnectTimeout)
	assert.Equal(t, 25, cfg.Window.Frames)
	assert.Equal(t, 64, cfg.SendQueue.Capacity)
	assert.Equal(t, 0.6, cfg.Vision.CenterScale)
}

func TestConfigLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("client: [unclosed"), 0o644))
	_, err := Load(badYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("logging:\n  level: loud\n"), 0o644))
	_, err = Load(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.Client.ConnectTimeout = 3
	cfg.Client.RetryDelayMS = 250
	cfg.Sync.ToleranceMS = 40

	assert.Equal(t, 3*time.Second, cfg.Client.GetConnectTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Client.GetRetryDelay())
	assert.Equal(t, 40*time.Millisecond, cfg.Sync.GetTolerance())
}

func TestWindowKeepFrames(t *testing.T) {
	w := Default().Window
	assert.Equal(t, 0, w.KeepFrames())

	w.Overlap = true
	assert.Equal(t, 10, w.KeepFrames())
}

func TestHTTPConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{"enabled valid", HTTPConfig{Port: 8080, Address: "127.0.0.1", Enabled: true}, false},
		{"disabled ignores port", HTTPConfig{Port: 0, Enabled: false}, false},
		{"port too high", HTTPConfig{Port: 70000, Address: "0.0.0.0", Enabled: true}, true},
		{"empty address", HTTPConfig{Port: 8080, Enabled: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LoggingConfig
		wantErr bool
	}{
		{"text info", LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, false},
		{"json debug to file", LoggingConfig{Level: "debug", Format: "json", Output: "/tmp/x.log"}, false},
		{"bad level", LoggingConfig{Level: "trace", Format: "text"}, true},
		{"bad format", LoggingConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
