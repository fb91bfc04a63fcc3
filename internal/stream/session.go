package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Sound-Bartender/MJPEGApp/internal/avsync"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
	"github.com/Sound-Bartender/MJPEGApp/internal/protocol"
	"github.com/Sound-Bartender/MJPEGApp/internal/tensor"
)

// Session defaults
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultRetryDelay     = 100 * time.Millisecond
)

var (
	// ErrDisconnected is the teardown cause for a local disconnect request
	ErrDisconnected = errors.New("disconnected by user")

	// ErrSessionClosed is returned when starting a session that was already torn down
	ErrSessionClosed = errors.New("stream: session closed")
)

// FrameCropper turns a JPEG payload into a model-sized frame
type FrameCropper interface {
	Crop(jpeg []byte) (image.Image, error)
}

// WindowRunner runs inference on a completed window
type WindowRunner interface {
	Run(ctx context.Context, w *tensor.Window) ([]byte, error)
}

// SessionConfig configures one connection
type SessionConfig struct {
	Address           string
	ConnectTimeout    time.Duration
	RetryDelay        time.Duration
	MaxPayloadSize    int
	SendQueueCapacity int
	Sync              avsync.Config
	Window            tensor.Config
}

// SessionDeps are the collaborators shared across sessions
type SessionDeps struct {
	Runner   WindowRunner
	Cropper  FrameCropper
	Recorder io.Writer // optional sink for transmitted enhanced audio
	Status   *StatusLog
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// SessionStats is a snapshot of session counters
type SessionStats struct {
	ID               string        `json:"id"`
	Address          string        `json:"address"`
	StartedAt        time.Time     `json:"started_at"`
	Uptime           time.Duration `json:"uptime"`
	VideoReceived    uint64        `json:"video_received"`
	AudioReceived    uint64        `json:"audio_received"`
	Heartbeats       uint64        `json:"heartbeats"`
	Ignored          uint64        `json:"ignored"`
	TransientErrors  uint64        `json:"transient_errors"`
	CropErrors       uint64        `json:"crop_errors"`
	WindowsCompleted uint64        `json:"windows_completed"`
	WindowsEnhanced  uint64        `json:"windows_enhanced"`
	WindowsSkipped   uint64        `json:"windows_skipped"`
	PacketsSent      uint64        `json:"packets_sent"`
	SendQueueDepth   int           `json:"send_queue_depth"`
	Sync             avsync.Stats  `json:"sync"`
	Window           tensor.Stats  `json:"window"`
}

// Session is one connection to the media sender
type Session struct {
	id     string
	cfg    SessionConfig
	conn   net.Conn
	reader *protocol.Reader

	writeMu sync.Mutex
	writer  *protocol.Writer

	aligner *avsync.Synchronizer
	acc     *tensor.Accumulator
	queue   *SendQueue
	runner  WindowRunner
	cropper FrameCropper

	recorder io.Writer
	status   *StatusLog
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running  atomic.Bool
	started  atomic.Bool
	done     chan struct{}
	causeMu  sync.Mutex
	cause    error
	inflight sync.WaitGroup

	startedAt time.Time

	videoReceived    atomic.Uint64
	audioReceived    atomic.Uint64
	heartbeats       atomic.Uint64
	ignored          atomic.Uint64
	transientErrors  atomic.Uint64
	cropErrors       atomic.Uint64
	windowsCompleted atomic.Uint64
	windowsEnhanced  atomic.Uint64
	windowsSkipped   atomic.Uint64
	packetsSent      atomic.Uint64
}

// Dial connects to cfg.Address within cfg.ConnectTimeout and creates a session.
// Connection failures are reported once and never retried.
func Dial(ctx context.Context, cfg SessionConfig, deps SessionDeps) (*Session, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, fmt.Errorf("connect to %s timed out after %s: %w", cfg.Address, timeout, err)
		}
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}

	s, err := NewSession(conn, cfg, deps)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewSession wraps an established connection
func NewSession(conn net.Conn, cfg SessionConfig, deps SessionDeps) (*Session, error) {
	if deps.Runner == nil || deps.Cropper == nil {
		return nil, fmt.Errorf("stream: session needs a window runner and a frame cropper")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Address == "" {
		cfg.Address = conn.RemoteAddr().String()
	}

	acc, err := tensor.NewAccumulator(cfg.Window)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	status := deps.Status
	if status == nil {
		status = NewStatusLog(DefaultStatusLogSize)
	}

	id := uuid.NewString()
	logger = logger.With("component", "session", slog.String("session_id", id))

	reader := protocol.NewReader(conn)
	if cfg.MaxPayloadSize != 0 {
		reader.SetMaxPayloadSize(cfg.MaxPayloadSize)
	}

	s := &Session{
		id:        id,
		cfg:       cfg,
		conn:      conn,
		reader:    reader,
		writer:    protocol.NewWriter(conn),
		aligner:   avsync.NewSynchronizer(cfg.Sync, logger, deps.Metrics),
		acc:       acc,
		queue:     NewSendQueue(cfg.SendQueueCapacity, deps.Metrics),
		runner:    deps.Runner,
		cropper:   deps.Cropper,
		recorder:  deps.Recorder,
		status:    status,
		logger:    logger,
		metrics:   deps.Metrics,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	s.running.Store(true)

	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Address returns the peer address
func (s *Session) Address() string { return s.cfg.Address }

// Running reports whether the session has not been torn down
func (s *Session) Running() bool { return s.running.Load() }

// Done is closed when the session is torn down
func (s *Session) Done() <-chan struct{} { return s.done }

// Cause returns the teardown cause, or nil while running
func (s *Session) Cause() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.cause
}

// Run drives the receive and transmit loops until teardown, then waits for any
// in-flight inference. It returns the teardown cause. A session torn down before
// Run returns its cause at once; a second Run returns ErrSessionClosed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}
	if !s.running.Load() {
		return s.Cause()
	}

	s.metrics.RecordSessionStarted()
	s.logger.Info("Session started", slog.String("address", s.cfg.Address))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.receiveLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.transmitLoop(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.Teardown(fmt.Errorf("session stopped: %w", context.Cause(gctx)))
		case <-s.done:
		}
		return nil
	})

	_ = g.Wait()
	s.inflight.Wait()

	return s.Cause()
}

// Teardown stops the session. Only the first call has any effect; it closes the send
// queue and the socket, clears both sync queues, resets the accumulator and records
// cause in the status log. Safe to call from any goroutine.
func (s *Session) Teardown(cause error) {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if cause == nil {
		cause = ErrDisconnected
	}

	s.causeMu.Lock()
	s.cause = cause
	s.causeMu.Unlock()

	s.queue.Close()
	close(s.done)
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("Error closing connection", slog.String("error", err.Error()))
	}
	s.aligner.Clear()
	s.acc.Reset()

	uptime := time.Since(s.startedAt)
	s.metrics.RecordTeardown(teardownLabel(cause), uptime.Seconds())
	s.status.Add(teardownLevel(cause), describeTeardown(cause))
	s.logger.Info("Session torn down",
		slog.String("cause", cause.Error()),
		slog.Duration("uptime", uptime),
		slog.Uint64("windows_enhanced", s.windowsEnhanced.Load()),
		slog.Uint64("packets_sent", s.packetsSent.Load()),
	)
}

// SetKeepFrames changes the window overlap for subsequent windows
func (s *Session) SetKeepFrames(n int) error {
	return s.acc.SetKeepFrames(n)
}

// Stats returns a snapshot of session counters
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:               s.id,
		Address:          s.cfg.Address,
		StartedAt:        s.startedAt,
		Uptime:           time.Since(s.startedAt),
		VideoReceived:    s.videoReceived.Load(),
		AudioReceived:    s.audioReceived.Load(),
		Heartbeats:       s.heartbeats.Load(),
		Ignored:          s.ignored.Load(),
		TransientErrors:  s.transientErrors.Load(),
		CropErrors:       s.cropErrors.Load(),
		WindowsCompleted: s.windowsCompleted.Load(),
		WindowsEnhanced:  s.windowsEnhanced.Load(),
		WindowsSkipped:   s.windowsSkipped.Load(),
		PacketsSent:      s.packetsSent.Load(),
		SendQueueDepth:   s.queue.Len(),
		Sync:             s.aligner.Stats(),
		Window:           s.acc.Stats(),
	}
}

// teardownLabel maps a cause to a low-cardinality metrics label
func teardownLabel(cause error) string {
	var perr *protocol.ProtocolError
	switch {
	case errors.Is(cause, ErrDisconnected):
		return "disconnect"
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return "stopped"
	case errors.As(cause, &perr):
		return "protocol"
	case errors.Is(cause, protocol.ErrConnectionClosed):
		return "peer_closed"
	case errors.Is(cause, errSend):
		return "send"
	default:
		return "receive"
	}
}

func teardownLevel(cause error) string {
	if errors.Is(cause, ErrDisconnected) || errors.Is(cause, context.Canceled) {
		return "info"
	}
	return "error"
}

func describeTeardown(cause error) string {
	switch teardownLabel(cause) {
	case "disconnect":
		return "Disconnected"
	case "stopped":
		return "Connection stopped"
	case "peer_closed":
		return "Connection closed by server"
	default:
		return fmt.Sprintf("Connection lost: %v", cause)
	}
}
