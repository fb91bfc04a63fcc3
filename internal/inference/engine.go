package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tensor names of the two model stages
const (
	InputVideo      = "video"
	OutputVideoEmb  = "video_emb"
	InputWav        = "input_wav"
	InputAudioEmb   = "audio_emb"
	OutputEnhanced  = "enhanced_wav"
	DefaultEmbedDim = 512
)

// ErrNotLoaded is returned when Enhance runs before Load or after Close
var ErrNotLoaded = errors.New("inference: models not loaded")

// EngineConfig selects the backend and model files
type EngineConfig struct {
	Backend       string
	VideoModel    string
	AudioModel    string
	Frames        int
	FrameSize     int
	WindowSamples int
	EmbeddingDim  int
	WarmUp        bool
}

// Engine owns the video and audio model handles
type Engine struct {
	cfg     EngineConfig
	backend Backend
	logger  *slog.Logger

	mu    sync.RWMutex
	video Model
	audio Model
}

// NewEngine creates an engine using the configured backend. Models are not loaded yet.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if cfg.Frames < 1 || cfg.FrameSize < 1 || cfg.WindowSamples < 1 {
		return nil, fmt.Errorf("inference: invalid window geometry %dx%dx%d / %d samples",
			cfg.Frames, cfg.FrameSize, cfg.FrameSize, cfg.WindowSamples)
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultEmbedDim
	}

	backend, err := Lookup(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With("component", "inference"),
	}, nil
}

// Load loads both models and optionally runs one warm-up inference on silence
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.video != nil {
		return nil
	}

	video, err := e.backend.Load(ModelSpec{
		Name:    "video",
		Path:    e.cfg.VideoModel,
		Inputs:  []string{InputVideo},
		Outputs: []string{OutputVideoEmb},
	})
	if err != nil {
		return fmt.Errorf("load video model: %w", err)
	}

	audio, err := e.backend.Load(ModelSpec{
		Name:    "audio",
		Path:    e.cfg.AudioModel,
		Inputs:  []string{InputWav, InputAudioEmb},
		Outputs: []string{OutputEnhanced},
	})
	if err != nil {
		video.Close()
		return fmt.Errorf("load audio model: %w", err)
	}

	e.video, e.audio = video, audio
	e.logger.Info("Models loaded",
		slog.String("backend", e.cfg.Backend),
		slog.String("video_model", e.cfg.VideoModel),
		slog.String("audio_model", e.cfg.AudioModel))

	if !e.cfg.WarmUp {
		return nil
	}
	// A failed warm-up leaves the engine unloaded so Load can be retried
	if err := ctx.Err(); err != nil {
		e.closeLocked()
		return err
	}

	start := time.Now()
	video0 := make([]float32, e.cfg.Frames*e.cfg.FrameSize*e.cfg.FrameSize)
	audio0 := make([]float32, e.cfg.WindowSamples)
	if _, err := e.enhanceLocked(video0, audio0); err != nil {
		if cerr := e.closeLocked(); cerr != nil {
			e.logger.Warn("Failed to release models", slog.String("error", cerr.Error()))
		}
		return fmt.Errorf("warm-up inference: %w", err)
	}
	e.logger.Info("Warm-up inference completed", slog.Duration("duration", time.Since(start)))

	return nil
}

// Enhance runs the video model then the audio model and returns WindowSamples floats
func (e *Engine) Enhance(video, audio []float32) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enhanceLocked(video, audio)
}

func (e *Engine) enhanceLocked(video, audio []float32) ([]float32, error) {
	if e.video == nil || e.audio == nil {
		return nil, ErrNotLoaded
	}

	f, s, n := int64(e.cfg.Frames), int64(e.cfg.FrameSize), int64(e.cfg.WindowSamples)
	if len(video) != int(f*s*s) {
		return nil, fmt.Errorf("video input has %d values, want %d", len(video), f*s*s)
	}
	if len(audio) != int(n) {
		return nil, fmt.Errorf("audio input has %d values, want %d", len(audio), n)
	}

	emb := NewTensor(1, int64(e.cfg.EmbeddingDim), f)
	err := e.video.Run(
		map[string]*Tensor{InputVideo: {Shape: []int64{1, 1, f, s, s}, Data: video}},
		map[string]*Tensor{OutputVideoEmb: emb},
	)
	if err != nil {
		return nil, fmt.Errorf("video model: %w", err)
	}

	out := NewTensor(1, 1, n)
	err = e.audio.Run(
		map[string]*Tensor{
			InputWav:      {Shape: []int64{1, 1, n}, Data: audio},
			InputAudioEmb: emb,
		},
		map[string]*Tensor{OutputEnhanced: out},
	)
	if err != nil {
		return nil, fmt.Errorf("audio model: %w", err)
	}

	return out.Data, nil
}

// Loaded reports whether both models are loaded
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.video != nil && e.audio != nil
}

// Close releases both models
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *Engine) closeLocked() error {
	var errs []error
	if e.video != nil {
		errs = append(errs, e.video.Close())
		e.video = nil
	}
	if e.audio != nil {
		errs = append(errs, e.audio.Close())
		e.audio = nil
	}
	return errors.Join(errs...)
}
