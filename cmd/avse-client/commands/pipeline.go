package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Sound-Bartender/MJPEGApp/internal/avsync"
	"github.com/Sound-Bartender/MJPEGApp/internal/config"
	"github.com/Sound-Bartender/MJPEGApp/internal/inference"
	_ "github.com/Sound-Bartender/MJPEGApp/internal/inference/ortbackend"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
	"github.com/Sound-Bartender/MJPEGApp/internal/stream"
	"github.com/Sound-Bartender/MJPEGApp/internal/tensor"
	"github.com/Sound-Bartender/MJPEGApp/internal/vision"
)

// pipeline holds the components shared by every session
type pipeline struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *inference.Engine
	runner   *inference.Gateway
	cropper  *vision.FaceCropper
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildPipeline loads the models and wires the inference gateway and face cropper
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	reg := newRegistry()
	m := metrics.NewMetrics(reg)

	engine, err := inference.NewEngine(engineConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("create inference engine: %w", err)
	}
	if err := engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	logger.Info("Inference engine ready",
		slog.String("backend", cfg.Inference.Backend),
		slog.String("video_model", cfg.Inference.VideoModel),
		slog.String("audio_model", cfg.Inference.AudioModel),
	)

	detector, err := vision.NewDetector(cfg.Vision.Detector, cfg.Vision.CenterScale)
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &pipeline{
		registry: reg,
		metrics:  m,
		engine:   engine,
		runner:   inference.NewGateway(engine, cfg.Window.WindowSamples, logger, m),
		cropper:  vision.NewFaceCropper(detector, cfg.Window.FrameSize),
	}, nil
}

func (p *pipeline) Close() error {
	return p.engine.Close()
}

func engineConfig(cfg *config.Config) inference.EngineConfig {
	return inference.EngineConfig{
		Backend:       cfg.Inference.Backend,
		VideoModel:    cfg.Inference.VideoModel,
		AudioModel:    cfg.Inference.AudioModel,
		Frames:        cfg.Window.Frames,
		FrameSize:     cfg.Window.FrameSize,
		WindowSamples: cfg.Window.WindowSamples,
		EmbeddingDim:  cfg.Inference.EmbeddingDim,
		WarmUp:        cfg.Inference.WarmUp,
	}
}

func sessionConfig(cfg *config.Config) stream.SessionConfig {
	return stream.SessionConfig{
		Address:           cfg.Client.Address,
		ConnectTimeout:    cfg.Client.GetConnectTimeout(),
		RetryDelay:        cfg.Client.GetRetryDelay(),
		MaxPayloadSize:    cfg.Client.MaxPayloadSize,
		SendQueueCapacity: cfg.SendQueue.Capacity,
		Sync: avsync.Config{
			Tolerance:     cfg.Sync.GetTolerance().Nanoseconds(),
			VideoCapacity: cfg.Sync.VideoBufferCap,
			SyncCapacity:  cfg.Sync.SyncBufferCap,
		},
		Window: tensor.Config{
			Frames:          cfg.Window.Frames,
			FrameSize:       cfg.Window.FrameSize,
			SamplesPerChunk: cfg.Window.SamplesPerChunk,
			WindowSamples:   cfg.Window.WindowSamples,
			KeepFrames:      cfg.Window.KeepFrames(),
			CarryTail:       cfg.Window.CarryTail,
			Rotate:          cfg.Window.Rotate,
		},
	}
}

func managerConfig(cfg *config.Config) stream.ManagerConfig {
	mc := stream.ManagerConfig{
		Session:       sessionConfig(cfg),
		Overlap:       cfg.Window.Overlap,
		OverlapFrames: cfg.Window.OverlapFrames,
	}
	if cfg.Recording.Enabled {
		mc.RecordDir = cfg.Recording.Dir
	}
	return mc
}
