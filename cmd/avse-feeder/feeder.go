package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
	"github.com/Sound-Bartender/MJPEGApp/internal/protocol"
)

var (
	flagListen  string
	flagWAV     string
	flagSave    string
	flagChunk   int
	flagPeriod  time.Duration
	flagSkew    time.Duration
	flagWidth   int
	flagHeight  int
	flagToneHz  float64
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "avse-feeder",
	Short:        "Synthetic MJPEG+PCM sender",
	SilenceUsage: true,
	RunE:         runFeeder,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagListen, "listen", "127.0.0.1:9000", "listen address")
	f.StringVar(&flagWAV, "wav", "", "16 kHz mono PCM16 WAV file to stream (default: generated tone)")
	f.StringVar(&flagSave, "save", "", "write received enhanced audio to this WAV file")
	f.IntVar(&flagChunk, "chunk", 640, "PCM samples per audio packet")
	f.DurationVar(&flagPeriod, "period", 40*time.Millisecond, "interval between frame/chunk pairs")
	f.DurationVar(&flagSkew, "skew", 0, "offset added to audio timestamps")
	f.IntVar(&flagWidth, "width", 160, "frame width")
	f.IntVar(&flagHeight, "height", 120, "frame height")
	f.Float64Var(&flagToneHz, "tone", 440, "generated tone frequency in Hz")
	f.BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

// feeder streams one source to one client at a time
type feeder struct {
	logger *slog.Logger
	pcm    []byte // looped source audio
	chunk  int    // bytes per audio packet
	save   *audio.WAVWriter
}

func runFeeder(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flagChunk < 1 {
		return fmt.Errorf("chunk must be positive, got %d", flagChunk)
	}

	pcm, err := loadSource(flagWAV, flagToneHz)
	if err != nil {
		return err
	}

	fd := &feeder{logger: logger, pcm: pcm, chunk: flagChunk * 2}
	if flagSave != "" {
		w, err := audio.CreateWAV(flagSave, audio.SampleRate)
		if err != nil {
			return err
		}
		defer w.Close()
		fd.save = w
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", flagListen)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info("Feeder listening", slog.String("address", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Info("Client connected", slog.String("remote", conn.RemoteAddr().String()))
		err = fd.serve(ctx, conn)
		logger.Info("Client finished", slog.Any("cause", err))
	}
}

func loadSource(path string, toneHz float64) ([]byte, error) {
	if path == "" {
		return tone(toneHz, audio.SampleRate), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, rate, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rate != audio.SampleRate {
		return nil, fmt.Errorf("%s: sample rate %d, want %d", path, rate, audio.SampleRate)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%s: no audio", path)
	}
	return pcm, nil
}

// tone returns n samples of a half-scale sine wave
func tone(hz float64, n int) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*hz*float64(i)/audio.SampleRate))
	}
	return audio.EncodePCM16(samples)
}

// serve streams until the client goes away or ctx ends
func (fd *feeder) serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fd.send(gctx, conn) })
	g.Go(func() error { return fd.receive(conn) })
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, protocol.ErrConnectionClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (fd *feeder) send(ctx context.Context, conn net.Conn) error {
	w := protocol.NewWriter(conn)
	ticker := time.NewTicker(flagPeriod)
	defer ticker.Stop()

	start := time.Now()
	offset := 0
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ts := time.Since(start).Nanoseconds()

		frame, err := syntheticFrame(n, flagWidth, flagHeight)
		if err != nil {
			return err
		}
		if err := w.WritePacket(protocol.KindVideo, ts, frame); err != nil {
			return err
		}

		chunk := make([]byte, 0, fd.chunk)
		for len(chunk) < fd.chunk {
			take := min(fd.chunk-len(chunk), len(fd.pcm)-offset)
			chunk = append(chunk, fd.pcm[offset:offset+take]...)
			offset = (offset + take) % len(fd.pcm)
		}
		if err := w.WritePacket(protocol.KindAudio, ts+flagSkew.Nanoseconds(), chunk); err != nil {
			return err
		}

		fd.logger.Debug("Sent pair", slog.Int("n", n), slog.Int64("ts", ts), slog.Int("jpeg_bytes", len(frame)))
	}
}

func (fd *feeder) receive(conn net.Conn) error {
	r := protocol.NewReader(conn)
	windows := 0
	for {
		pkt, err := r.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return protocol.ErrConnectionClosed
			}
			return err
		}
		if pkt.Kind != protocol.KindEnhancedAudio {
			fd.logger.Warn("Unexpected packet from client", slog.String("kind", pkt.Kind.String()))
			continue
		}

		windows++
		fd.logger.Info("Enhanced window received",
			slog.Int("window", windows),
			slog.Int64("ts", pkt.Timestamp),
			slog.Int("samples", len(pkt.Payload)/2),
		)
		if fd.save != nil {
			if _, err := fd.save.Write(pkt.Payload); err != nil {
				return err
			}
		}
	}
}

// syntheticFrame draws a moving bright square over a gradient as a JPEG
func syntheticFrame(n, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}

	side := min(width, height) / 3
	x0 := (n * 4) % max(width-side, 1)
	y0 := (height - side) / 2
	for y := y0; y < y0+side; y++ {
		for x := x0; x < x0+side; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
