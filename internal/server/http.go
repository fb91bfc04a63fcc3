package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sound-Bartender/MJPEGApp/internal/config"
	"github.com/Sound-Bartender/MJPEGApp/internal/metrics"
	"github.com/Sound-Bartender/MJPEGApp/internal/stream"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// HTTPServer provides HTTP API endpoints for control and monitoring
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	manager  *stream.Manager
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server.
// gatherer backs /metrics; when nil the default Prometheus registry is used.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, manager *stream.Manager, gatherer prometheus.Gatherer, m *metrics.Metrics) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:   logger.With("component", "http"),
		config:   appConfig,
		manager:  manager,
		gatherer: gatherer,
		metrics:  m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/log", h.withMetrics("/log", h.handleLog))

	// Control endpoints
	mux.HandleFunc("/connect", h.withMetrics("/connect", h.handleConnect))
	mux.HandleFunc("/disconnect", h.withMetrics("/disconnect", h.handleDisconnect))
	mux.HandleFunc("/overlap", h.withMetrics("/overlap", h.handleOverlap))

	// The upgrade needs the raw ResponseWriter, so no metrics wrapper here
	mux.HandleFunc("/log/ws", h.handleLogStream)

	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	st := h.manager.Status()
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "avse-client",
			"version": "1.0.0",
		},
		"connection": map[string]any{
			"connected": st.Connected,
			"address":   st.Address,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	c := h.config
	cfg := map[string]any{
		"client": map[string]any{
			"address":          c.Client.Address,
			"connect_timeout":  c.Client.ConnectTimeout,
			"retry_delay_ms":   c.Client.RetryDelayMS,
			"max_payload_size": c.Client.MaxPayloadSize,
			"auto_connect":     c.Client.AutoConnect,
		},
		"sync": map[string]any{
			"tolerance_ms":     c.Sync.ToleranceMS,
			"video_buffer_cap": c.Sync.VideoBufferCap,
			"sync_buffer_cap":  c.Sync.SyncBufferCap,
		},
		"window": map[string]any{
			"frames":            c.Window.Frames,
			"frame_size":        c.Window.FrameSize,
			"samples_per_chunk": c.Window.SamplesPerChunk,
			"window_samples":    c.Window.WindowSamples,
			"overlap":           h.manager.Overlap(),
			"overlap_frames":    c.Window.OverlapFrames,
			"carry_tail":        c.Window.CarryTail,
			"rotate":            c.Window.Rotate,
		},
		"inference": map[string]any{
			"backend":       c.Inference.Backend,
			"video_model":   c.Inference.VideoModel,
			"audio_model":   c.Inference.AudioModel,
			"embedding_dim": c.Inference.EmbeddingDim,
		},
		"vision": map[string]any{
			"detector":     c.Vision.Detector,
			"center_scale": c.Vision.CenterScale,
		},
		"send_queue": map[string]any{
			"capacity": c.SendQueue.Capacity,
		},
		"recording": map[string]any{
			"enabled": c.Recording.Enabled,
			"dir":     c.Recording.Dir,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	}
	if sess := h.manager.Current(); sess != nil {
		stats["session"] = sess.Stats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleLog implements the /log endpoint
func (h *HTTPServer) handleLog(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": h.manager.StatusLog().Entries(),
	})
}

type connectRequest struct {
	Address string `json:"address"`
}

// handleConnect implements POST /connect
func (h *HTTPServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req connectRequest
	if r.ContentLength != 0 {
		// An empty body connects to the configured address
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	if _, err := h.manager.Connect(r.Context(), req.Address); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, stream.ErrAlreadyConnected) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, h.manager.Status())
}

// handleDisconnect implements POST /disconnect
func (h *HTTPServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.manager.Disconnect(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"disconnected": true})
}

type overlapRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleOverlap implements GET and PUT /overlap
func (h *HTTPServer) handleOverlap(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req overlapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeError(w, http.StatusBadRequest, errors.New(`body must be {"enabled": true|false}`))
			return
		}
		if err := h.manager.SetOverlap(*req.Enabled); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"overlap": h.manager.Overlap()})
}

// handleLogStream implements /log/ws: the retained status log followed by live entries
func (h *HTTPServer) handleLogStream(w http.ResponseWriter, r *http.Request) {
	backlog, entries, unsubscribe := h.manager.StatusLog().SubscribeWithBacklog(64)
	defer unsubscribe()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	// Drain client frames so close and ping control messages are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(entry stream.StatusEntry) error {
		ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return ws.WriteJSON(entry)
	}

	for _, entry := range backlog {
		if err := send(entry); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := send(entry); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "AVSE Stream Client",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":            "API documentation",
			"GET /health":      "Service health check",
			"GET /status":      "Connection state",
			"GET /config":      "Client configuration",
			"GET /stats":       "Session statistics",
			"GET /log":         "Recent status messages",
			"GET /log/ws":      "Live status messages over WebSocket",
			"POST /connect":    "Connect to the sender, optional body {\"address\": \"host:port\"}",
			"POST /disconnect": "Tear down the running session",
			"GET /overlap":     "Window overlap state",
			"PUT /overlap":     "Toggle window overlap, body {\"enabled\": bool}",
			"GET /metrics":     "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
