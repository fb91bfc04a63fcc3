package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Sound-Bartender/MJPEGApp/internal/audio"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
)

var (
	// ErrAlreadyConnected is returned by Connect while a session is running
	ErrAlreadyConnected = errors.New("stream: already connected")

	// ErrNotConnected is returned by Disconnect when no session is running
	ErrNotConnected = errors.New("stream: not connected")
)

// ManagerConfig contains configuration for the connection manager
type ManagerConfig struct {
	Session       SessionConfig
	Overlap       bool   // start with window overlap enabled
	OverlapFrames int    // frames carried between windows when overlap is enabled
	RecordDir     string // when set, each session's enhanced audio is saved as <dir>/<session id>.wav
}

// Status describes the manager's connection state
type Status struct {
	Connected bool          `json:"connected"`
	Address   string        `json:"address"`
	Overlap   bool          `json:"overlap"`
	Session   *SessionStats `json:"session,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Manager owns at most one session at a time
type Manager struct {
	cfg     ManagerConfig
	runner  WindowRunner
	cropper FrameCropper
	status  *StatusLog
	logger  *slog.Logger
	metrics *metrics.Metrics

	overlap atomic.Bool

	mu         sync.Mutex
	current    *Session
	connecting bool
	lastError  error

	ctx      context.Context
	stop     context.CancelFunc
	sessions sync.WaitGroup
}

// NewManager creates a connection manager
func NewManager(cfg ManagerConfig, runner WindowRunner, cropper FrameCropper, status *StatusLog, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if status == nil {
		status = NewStatusLog(DefaultStatusLogSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		cfg:     cfg,
		runner:  runner,
		cropper: cropper,
		status:  status,
		logger:  logger.With("component", "manager"),
		metrics: m,
		ctx:     ctx,
		stop:    cancel,
	}
	mgr.overlap.Store(cfg.Overlap)

	return mgr
}

// StatusLog returns the shared status log
func (m *Manager) StatusLog() *StatusLog {
	return m.status
}

// Connect dials address (or the configured default when empty) and starts a session.
// It returns once the session is running; the session then lives until teardown.
func (m *Manager) Connect(ctx context.Context, address string) (*Session, error) {
	m.mu.Lock()
	// A torn-down session may still be finishing in-flight inference; it no longer holds the slot
	if (m.current != nil && m.current.Running()) || m.connecting {
		m.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("stream: manager stopped")
	}
	m.connecting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	cfg := m.cfg.Session
	if address != "" {
		cfg.Address = address
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("stream: no address to connect to")
	}
	cfg.Window.KeepFrames = m.keepFrames()

	m.status.Infof("Connecting to %s...", cfg.Address)
	m.logger.Info("Connecting",
		slog.String("address", cfg.Address),
		slog.Int("keep_frames", cfg.Window.KeepFrames))

	deps := SessionDeps{
		Runner:  m.runner,
		Cropper: m.cropper,
		Status:  m.status,
		Logger:  m.logger,
		Metrics: m.metrics,
	}

	sess, err := Dial(ctx, cfg, deps)
	if err != nil {
		m.mu.Lock()
		m.lastError = err
		m.mu.Unlock()
		m.status.Errorf("Connection failed: %v", err)
		m.logger.Error("Connection failed", slog.String("address", cfg.Address), slog.String("error", err.Error()))
		return nil, err
	}

	var recorder io.Closer
	if m.cfg.RecordDir != "" {
		path := filepath.Join(m.cfg.RecordDir, sess.ID()+".wav")
		w, err := m.openRecording(path)
		if err != nil {
			m.logger.Warn("Recording disabled", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			sess.recorder = w
			recorder = w
			m.status.Infof("Recording enhanced audio to %s", path)
		}
	}

	sctx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.current = sess
	m.lastError = nil
	m.mu.Unlock()
	m.status.Infof("Connected to %s", cfg.Address)

	m.sessions.Add(1)
	go func() {
		defer m.sessions.Done()
		defer cancel()

		cause := sess.Run(sctx)
		if recorder != nil {
			if err := recorder.Close(); err != nil {
				m.logger.Warn("Failed to finalize recording", slog.String("error", err.Error()))
			}
		}

		m.mu.Lock()
		if m.current == sess {
			m.current = nil
		}
		if cause != nil && !errors.Is(cause, ErrDisconnected) && !errors.Is(cause, context.Canceled) {
			m.lastError = cause
		}
		m.mu.Unlock()

		m.logger.Info("Session ended", slog.String("session_id", sess.ID()), slog.Any("cause", cause))
	}()

	return sess, nil
}

func (m *Manager) openRecording(path string) (*audio.WAVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return audio.CreateWAV(path, audio.SampleRate)
}

// Disconnect tears down the running session
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()

	if sess == nil || !sess.Running() {
		return ErrNotConnected
	}
	sess.Teardown(ErrDisconnected)
	return nil
}

// Current returns the most recent session until it has fully finished.
// It may already be torn down; check Running.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetOverlap toggles window overlap. A running session picks it up from its next window.
func (m *Manager) SetOverlap(enabled bool) error {
	m.overlap.Store(enabled)

	if sess := m.Current(); sess != nil {
		if err := sess.SetKeepFrames(m.keepFrames()); err != nil {
			return fmt.Errorf("apply overlap: %w", err)
		}
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	m.status.Infof("Window overlap %s", state)
	return nil
}

// Overlap reports whether window overlap is enabled
func (m *Manager) Overlap() bool {
	return m.overlap.Load()
}

func (m *Manager) keepFrames() int {
	if !m.overlap.Load() {
		return 0
	}
	return m.cfg.OverlapFrames
}

// Status returns the current connection state
func (m *Manager) Status() Status {
	m.mu.Lock()
	sess := m.current
	lastErr := m.lastError
	m.mu.Unlock()

	st := Status{
		Address: m.cfg.Session.Address,
		Overlap: m.overlap.Load(),
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if sess != nil && sess.Running() {
		stats := sess.Stats()
		st.Connected = true
		st.Address = sess.Address()
		st.Session = &stats
	}
	return st
}

// Stop tears down the running session and waits for it to finish
func (m *Manager) Stop() {
	m.logger.Info("Stopping connection manager...")

	m.stop()
	if sess := m.Current(); sess != nil {
		sess.Teardown(ErrDisconnected)
	}
	m.sessions.Wait()

	m.logger.Info("Connection manager stopped")
}
