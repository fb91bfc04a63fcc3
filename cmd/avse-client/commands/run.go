package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sound-Bartender/MJPEGApp/internal/server"
	"github.com/Sound-Bartender/MJPEGApp/internal/stream"
)

var (
	// Command-line overrides
	flagAddress  string
	flagConnect  bool
	flagHTTPPort int
	flagOverlap  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the client with the HTTP control API",
	Long: `Run the stream client as a long-lived service.

The HTTP API exposes connect, disconnect and overlap controls, status and
statistics, a live status log over WebSocket and Prometheus metrics.`,
	RunE: runService,
}

func init() {
	runCmd.Flags().StringVar(&flagAddress, "address", "", "sender address host:port")
	runCmd.Flags().BoolVar(&flagConnect, "connect", false, "connect at startup")
	runCmd.Flags().IntVar(&flagHTTPPort, "http-port", 0, "HTTP API port")
	runCmd.Flags().BoolVar(&flagOverlap, "overlap", false, "enable window overlap")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	if flagAddress != "" {
		cfg.Client.Address = flagAddress
	}
	if flagConnect {
		cfg.Client.AutoConnect = true
	}
	if flagHTTPPort != 0 {
		cfg.HTTP.Port = flagHTTPPort
	}
	if cmd.Flags().Changed("overlap") {
		cfg.Window.Overlap = flagOverlap
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("address", cfg.Client.Address),
		slog.Bool("overlap", cfg.Window.Overlap),
		slog.String("backend", cfg.Inference.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))
		return err
	}
	defer p.Close()

	status := stream.NewStatusLog(stream.DefaultStatusLogSize)
	mgr := stream.NewManager(managerConfig(cfg), p.runner, p.cropper, status, logger, p.metrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, mgr, p.registry, p.metrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			mgr.Stop()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Client.AutoConnect {
		g.Go(func() error {
			if _, err := mgr.Connect(gctx, cfg.Client.Address); err != nil {
				// Reported on the status log; the operator can retry over HTTP
				logger.Warn("Startup connect failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}

		mgr.Stop()
		return nil
	})

	logger.Info("Service started successfully, waiting for signals...")

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Service stopped")
	return nil
}
