package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
	"github.com/akarsh-2005/sleepdiagnosis/internal/classify"
	"github.com/akarsh-2005/sleepdiagnosis/internal/config"
	"github.com/akarsh-2005/sleepdiagnosis/internal/decoder"
	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
	"github.com/akarsh-2005/sleepdiagnosis/internal/pipeline"
	"github.com/akarsh-2005/sleepdiagnosis/internal/spectrogram"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T, cfg *config.Config) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	return newTestServerWithStrategies(t, cfg,
		decoder.NewBeepStrategy(cfg.Audio.TargetSampleRate, cfg.Audio.GetMaxDuration()),
		decoder.NewRIFFStrategy(cfg.Audio.TargetSampleRate, cfg.Audio.GetMaxDuration()),
	)
}

func newTestServerWithStrategies(t *testing.T, cfg *config.Config, strategies ...decoder.Strategy) (*HTTPServer, *metrics.Metrics) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	opts := decoder.Options{
		TargetRate:  cfg.Audio.TargetSampleRate,
		MaxDuration: cfg.Audio.GetMaxDuration(),
		MinSamples:  cfg.Audio.MinSamples,
	}
	chain := decoder.NewChain(strategies, opts, testLogger, m)

	p := pipeline.New(
		chain,
		features.NewExtractor(opts.TargetRate),
		spectrogram.NewAnalyzer(spectrogram.FrameLength),
		classify.NewEngine(nil, testLogger),
		pipeline.Options{},
		testLogger,
		m,
	)

	return NewHTTPServer(cfg, "test", testLogger, p, m, reg), m
}

// stallingStrategy blocks without watching ctx, like the extractor and
// analyzer, then returns a one second tone
type stallingStrategy struct {
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (s *stallingStrategy) Name() string {
	return "stalling"
}

func (s *stallingStrategy) Decode(_ context.Context, _ []byte, _ decoder.Hints) (*audio.Signal, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)

	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(s.delay)

	samples := make([]float32, 22050)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/22050))
	}
	return audio.NewSignal(samples, 22050)
}

func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()

	const rate = 22050
	samples := make([]int16, int(rate*seconds))
	for i := range samples {
		samples[i] = int16(16383 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}

	data, err := audio.EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return data
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("note", "ignored"); err != nil {
		t.Fatalf("Failed to write field: %v", err)
	}

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAnalyzeSuccess(t *testing.T) {
	h, m := newTestServer(t, config.Default())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, multipartRequest(t, AudioField, "tone.wav", toneWAV(t, 1)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)

	if body["success"] != true {
		t.Errorf("Expected success true, got %v", body["success"])
	}

	requestID, _ := body["request_id"].(string)
	if requestID == "" || rec.Header().Get(requestIDHeader) != requestID {
		t.Errorf("Expected matching request id, got body %q header %q", requestID, rec.Header().Get(requestIDHeader))
	}

	if body["decoder"] != "beep" {
		t.Errorf("Expected decoder beep, got %v", body["decoder"])
	}

	if body["feature_schema"] != features.SchemaVersion {
		t.Errorf("Expected schema %s, got %v", features.SchemaVersion, body["feature_schema"])
	}

	if body["provenance"] != string(classify.ProvenanceHeuristic) {
		t.Errorf("Expected heuristic provenance, got %v", body["provenance"])
	}

	featureMap, _ := body["features"].(map[string]interface{})
	if len(featureMap) != features.VectorLen {
		t.Errorf("Expected %d features, got %d", features.VectorLen, len(featureMap))
	}

	spec, _ := body["spectrogram"].(map[string]interface{})
	if _, ok := spec["frequency_analysis"]; !ok {
		t.Errorf("Expected frequency_analysis in spectrogram, got %v", spec)
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/analyze", "200")); got != 1 {
		t.Errorf("Expected 1 recorded request, got %v", got)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name     string
		request  func(t *testing.T) *http.Request
		maxBytes int64
		status   int
	}{
		{
			name: "empty file",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, AudioField, "empty.wav", nil)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "too short",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, AudioField, "short.wav", toneWAV(t, 0.01))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unsupported format",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, AudioField, "noise.bin", bytes.Repeat([]byte{0x13, 0x37}, 4000))
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "missing audio field",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "file", "tone.wav", toneWAV(t, 1))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status: http.StatusBadRequest,
		},
		{
			name: "file too large",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, AudioField, "tone.wav", toneWAV(t, 1))
			},
			maxBytes: 4096,
			status:   http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.maxBytes > 0 {
				cfg.Audio.MaxUploadBytes = tt.maxBytes
			}
			h, _ := newTestServer(t, cfg)

			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, tt.request(t))

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}

			body := decodeBody(t, rec)
			if body["success"] != false {
				t.Errorf("Expected success false, got %v", body["success"])
			}

			if msg, _ := body["error"].(string); msg == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestAnalyzeTimeoutKeepsSlotUntilAnalysisEnds(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.MaxConcurrentAnalyses = 1
	cfg.HTTP.AnalysisTimeout = 1

	stalling := &stallingStrategy{delay: 2500 * time.Millisecond}
	h, m := newTestServerWithStrategies(t, cfg, stalling)

	// First request outlives its deadline while the analysis keeps running
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, multipartRequest(t, AudioField, "slow.wav", []byte("payload")))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("Expected status 504, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := testutil.ToFloat64(m.InFlight); got != 1 {
		t.Errorf("Expected 1 analysis in flight after timeout, got %v", got)
	}

	// The abandoned analysis still owns the only slot
	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, multipartRequest(t, AudioField, "slow.wav", []byte("payload")))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("Expected success false, got %v", body["success"])
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(h.sem) > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if len(h.sem) != 0 {
		t.Fatal("Expected the slot to be released once the analysis finished")
	}

	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Errorf("Expected 0 analyses in flight, got %v", got)
	}

	if got := stalling.calls.Load(); got != 1 {
		t.Errorf("Expected 1 decode call, got %d", got)
	}

	if got := stalling.peak.Load(); got != 1 {
		t.Errorf("Expected at most 1 simultaneous analysis, got %d", got)
	}
}

func TestAnalyzeBusyWaitsForSlot(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.MaxConcurrentAnalyses = 1
	cfg.HTTP.AnalysisTimeout = 2

	stalling := &stallingStrategy{delay: 500 * time.Millisecond}
	h, _ := newTestServerWithStrategies(t, cfg, stalling)

	requests := []*http.Request{
		multipartRequest(t, AudioField, "first.wav", []byte("payload")),
		multipartRequest(t, AudioField, "second.wav", []byte("payload")),
	}

	codes := make(chan int, len(requests))
	for _, req := range requests {
		go func(req *http.Request) {
			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, req)
			codes <- rec.Code
		}(req)
	}

	// The second upload waits for the slot instead of failing
	for range requests {
		if code := <-codes; code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", code)
		}
	}

	if got := stalling.calls.Load(); got != 2 {
		t.Errorf("Expected 2 decode calls, got %d", got)
	}

	if got := stalling.peak.Load(); got != 1 {
		t.Errorf("Expected at most 1 simultaneous analysis, got %d", got)
	}
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	h, m := newTestServer(t, config.Default())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}

	if got := testutil.ToFloat64(m.HTTPErrors.WithLabelValues("GET", "/analyze", "client_error")); got != 1 {
		t.Errorf("Expected 1 client error, got %v", got)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, config.Default())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)

	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}

	if body["model_loaded"] != false {
		t.Errorf("Expected model_loaded false, got %v", body["model_loaded"])
	}

	service, _ := body["service"].(map[string]interface{})
	if service["name"] != ServiceName || service["version"] != "test" {
		t.Errorf("Unexpected service info: %v", service)
	}
}

func TestRootAndNotFound(t *testing.T) {
	h, _ := newTestServer(t, config.Default())

	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusOK},
		{"/config", http.StatusOK},
		{"/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		if rec.Code != tt.status {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.status, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, config.Default())

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/analyze", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow origin *, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, config.Default())

	// Generate one observation first
	h.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "sleepdiag_http_requests_total") {
		t.Errorf("Expected sleepdiag_http_requests_total in metrics output")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{decoder.ErrEmptyInput, http.StatusBadRequest},
		{&decoder.TooShortError{Strategy: "beep", Samples: 10, Min: 1024}, http.StatusBadRequest},
		{&decoder.UnsupportedFormatError{}, http.StatusUnprocessableEntity},
		{fmt.Errorf("decode: %w", decoder.ErrUnsupportedFormat), http.StatusUnprocessableEntity},
		{fmt.Errorf("analysis: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if status, _ := errorStatus(tt.err); status != tt.status {
			t.Errorf("errorStatus(%v): expected %d, got %d", tt.err, tt.status, status)
		}
	}
}
