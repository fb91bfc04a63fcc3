package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
	"github.com/Sound-Bartender/MJPEGApp/internal/protocol"
	"github.com/Sound-Bartender/MJPEGApp/internal/stream"
)

var flagRecord string

// connectCmd runs one session without the HTTP API
var connectCmd = &cobra.Command{
	Use:   "connect [address]",
	Short: "Run a single session in the foreground",
	Long: `Connect to the sender, run one session until the connection ends or the
process is interrupted, then exit. Status messages are printed to stderr.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&flagRecord, "record", "", "write enhanced audio to this WAV file")
	connectCmd.Flags().BoolVar(&flagOverlap, "overlap", false, "enable window overlap")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Client.Address = args[0]
	}
	if cmd.Flags().Changed("overlap") {
		cfg.Window.Overlap = flagOverlap
	}
	if cfg.Client.Address == "" {
		return errors.New("no sender address; pass one or set client.address")
	}

	logger := initLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	status := stream.NewStatusLog(stream.DefaultStatusLogSize)
	entries, unsubscribe := status.Subscribe(64)
	defer unsubscribe()
	go func() {
		for e := range entries {
			fmt.Fprintf(os.Stderr, "%s [%s] %s\n", e.Time.Format("15:04:05.000"), e.Level, e.Message)
		}
	}()

	deps := stream.SessionDeps{
		Runner:  p.runner,
		Cropper: p.cropper,
		Status:  status,
		Logger:  logger,
		Metrics: p.metrics,
	}

	if flagRecord != "" {
		if err := os.MkdirAll(filepath.Dir(flagRecord), 0o755); err != nil {
			return err
		}
		w, err := audio.CreateWAV(flagRecord, audio.SampleRate)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("Failed to finalize recording", slog.String("error", err.Error()))
			}
		}()
		deps.Recorder = w
	}

	status.Infof("Connecting to %s...", cfg.Client.Address)
	sess, err := stream.Dial(ctx, sessionConfig(cfg), deps)
	if err != nil {
		status.Errorf("Connection failed: %v", err)
		return err
	}
	status.Infof("Connected to %s", cfg.Client.Address)

	cause := sess.Run(ctx)
	stats := sess.Stats()
	logger.Info("Session finished",
		slog.String("session_id", stats.ID),
		slog.Uint64("windows_enhanced", stats.WindowsEnhanced),
		slog.Uint64("windows_skipped", stats.WindowsSkipped),
		slog.Uint64("packets_sent", stats.PacketsSent),
		slog.Any("cause", cause),
	)

	switch {
	case cause == nil,
		errors.Is(cause, context.Canceled),
		errors.Is(cause, stream.ErrDisconnected),
		errors.Is(cause, protocol.ErrConnectionClosed):
		return nil
	}
	return cause
}
