package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akarsh-2005/sleepdiagnosis/internal/config"
	"github.com/akarsh-2005/sleepdiagnosis/internal/decoder"
	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
	"github.com/akarsh-2005/sleepdiagnosis/internal/pipeline"
)

const (
	// ServiceName is reported by the health and root endpoints
	ServiceName = "sleepdiag"

	// AudioField is the multipart form field carrying the recording
	AudioField = "audio"

	requestIDHeader = "X-Request-ID"
)

// HTTPServer provides the analysis API and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	version  string

	// sem bounds simultaneous analyses
	sem chan struct{}

	// Server state
	startTime time.Time
}

// analyzeResponse is the body of a successful POST /analyze
type analyzeResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	*pipeline.Result
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

// NewHTTPServer creates a new HTTP API server. A nil gatherer serves the
// default Prometheus registry on /metrics.
func NewHTTPServer(cfg *config.Config, version string, logger *slog.Logger,
	p *pipeline.Pipeline, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		pipeline:  p,
		metrics:   m,
		gatherer:  gatherer,
		version:   version,
		sem:       make(chan struct{}, cfg.HTTP.MaxConcurrentAnalyses),
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = h.withCORS(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      h.handler,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the root handler with all middleware applied
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Analysis endpoint
	mux.HandleFunc("/analyze", h.withMetrics("/analyze", h.handleAnalyze))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
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

// withCORS allows browser clients from the configured origin
func (h *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.HTTP.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.config.HTTP.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
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

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
		slog.Int("max_concurrent_analyses", cap(h.sem)),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// handleAnalyze implements the POST /analyze endpoint
func (h *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	w.Header().Set(requestIDHeader, requestID)
	logger := h.logger.With(slog.String("request_id", requestID))

	ctx, cancel := context.WithTimeout(r.Context(), h.config.HTTP.GetAnalysisTimeout())
	defer cancel()

	input, status, err := h.readUpload(w, r)
	if err != nil {
		logger.Warn("Rejected upload", slog.String("error", err.Error()))
		h.writeError(w, status, requestID, err.Error())
		return
	}

	logger.Info("Received recording",
		slog.String("filename", input.Filename),
		slog.String("content_type", input.MediaType),
		slog.Int("bytes", len(input.Data)),
	)

	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		logger.Warn("No analysis slot before deadline", slog.Int("max_concurrent_analyses", cap(h.sem)))
		h.writeError(w, http.StatusServiceUnavailable, requestID, "server busy, try again later")
		return
	}

	h.metrics.IncInFlight()

	type outcome struct {
		result *pipeline.Result
		err    error
	}
	done := make(chan outcome, 1)

	// The slot stays held until Analyze returns, even after a 504
	go func() {
		defer func() { <-h.sem }()
		defer h.metrics.DecInFlight()

		result, err := h.pipeline.Analyze(ctx, input)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		logger.Error("Analysis timed out", slog.Duration("timeout", h.config.HTTP.GetAnalysisTimeout()))
		h.writeError(w, http.StatusGatewayTimeout, requestID, "analysis timed out")
		return
	}

	if out.err != nil {
		status, message := errorStatus(out.err)
		if status >= http.StatusInternalServerError {
			logger.Error("Analysis failed", slog.String("error", out.err.Error()))
		} else {
			logger.Warn("Analysis rejected input", slog.String("error", out.err.Error()))
		}
		h.writeError(w, status, requestID, message)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:   true,
		RequestID: requestID,
		Result:    out.result,
	})
}

// readUpload streams the multipart body and keeps the audio part in memory
func (h *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.Input, int, error) {
	limit := h.config.Audio.MaxUploadBytes

	// Leave room for multipart framing around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return pipeline.Input{}, http.StatusBadRequest, fmt.Errorf("expected multipart/form-data with an %q field", AudioField)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return pipeline.Input{}, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return pipeline.Input{}, uploadErrorStatus(err), fmt.Errorf("invalid multipart body: %w", err)
		}

		if part.FormName() != AudioField {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		part.Close()
		if err != nil {
			return pipeline.Input{}, uploadErrorStatus(err), fmt.Errorf("failed to read upload: %w", err)
		}

		if int64(len(data)) > limit {
			return pipeline.Input{}, http.StatusRequestEntityTooLarge, fmt.Errorf("file too large (max %d bytes)", limit)
		}

		return pipeline.Input{
			Data:      data,
			MediaType: part.Header.Get("Content-Type"),
			Filename:  part.FileName(),
		}, 0, nil
	}

	return pipeline.Input{}, http.StatusBadRequest, fmt.Errorf("missing %q field", AudioField)
}

func uploadErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// errorStatus maps analysis errors to a status code and client message
func errorStatus(err error) (int, string) {
	switch {
	case decoder.IsClientError(err):
		return clientErrorStatus(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	default:
		return http.StatusInternalServerError, "audio processing failed"
	}
}

// clientErrorStatus picks the 4xx response for errors caused by the upload
func clientErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, decoder.ErrEmptyInput):
		return http.StatusBadRequest, "empty audio file"
	case errors.Is(err, decoder.ErrTooShort):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusUnprocessableEntity, "audio file format not supported or corrupted"
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	engine := h.pipeline.Engine()

	health := map[string]interface{}{
		"status":         "ok",
		"timestamp":      time.Now().UTC(),
		"uptime":         time.Since(h.startTime).String(),
		"model_loaded":   engine.HasModel(),
		"model_kind":     engine.ModelKind(),
		"feature_schema": features.SchemaVersion,
		"service": map[string]interface{}{
			"name":    ServiceName,
			"version": h.version,
		},
		"analyses": map[string]interface{}{
			"in_flight":      len(h.sem),
			"max_concurrent": cap(h.sem),
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.config
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"max_concurrent_analyses": cfg.HTTP.MaxConcurrentAnalyses,
			"analysis_timeout":        cfg.HTTP.AnalysisTimeout,
		},
		"audio": map[string]interface{}{
			"target_sample_rate": cfg.Audio.TargetSampleRate,
			"max_duration":       cfg.Audio.MaxDuration,
			"min_samples":        cfg.Audio.MinSamples,
			"max_upload_bytes":   cfg.Audio.MaxUploadBytes,
		},
		"decoder": map[string]interface{}{
			"transcode_timeout": cfg.Decoder.TranscodeTimeout,
			// Binary and temp paths are omitted
		},
		"spectrogram": map[string]interface{}{
			"render_enabled":    cfg.Spectrogram.RenderEnabled,
			"render_min_budget": cfg.Spectrogram.RenderMinBudget,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": ServiceName,
		"version": h.version,
		"status":  "running",
		"endpoints": map[string]interface{}{
			"GET /":         "API documentation",
			"GET /health":   "Service health check",
			"GET /config":   "Get service configuration",
			"GET /metrics":  "Prometheus metrics",
			"POST /analyze": "Analyse a recording (multipart field \"audio\")",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, requestID, message string) {
	writeJSON(w, status, errorResponse{
		Success:   false,
		RequestID: requestID,
		Error:     message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
