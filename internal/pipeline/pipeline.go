package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akarsh-2005/sleepdiagnosis/internal/audio"
	"github.com/akarsh-2005/sleepdiagnosis/internal/classify"
	"github.com/akarsh-2005/sleepdiagnosis/internal/decoder"
	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
	"github.com/akarsh-2005/sleepdiagnosis/internal/metrics"
	"github.com/akarsh-2005/sleepdiagnosis/internal/spectrogram"
)

// Analysis outcomes recorded in metrics
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyInput        = "empty_input"
	OutcomeTooShort          = "too_short"
	OutcomeUnsupportedFormat = "unsupported_format"
	OutcomeError             = "error"
)

// ErrRenderSkipped is attached to the spectrogram when too little time is
// left before the deadline to render
var ErrRenderSkipped = errors.New("rendering skipped: insufficient time budget")

// Input is one recording to analyse
type Input struct {
	Data      []byte
	MediaType string
	Filename  string
}

// Spectrogram is the frequency-domain part of a result
type Spectrogram struct {
	// Image is a PNG; encoding/json emits it as base64
	Image             []byte             `json:"image,omitempty"`
	FrequencyAnalysis map[string]float64 `json:"frequency_analysis"`
	TimeDuration      float64            `json:"time_duration"`
	Error             string             `json:"error,omitempty"`
}

// Result is the complete analysis of one recording
type Result struct {
	Probability     float64             `json:"probability"`
	Label           string              `json:"label"`
	ConfidenceScore int                 `json:"confidence_score"`
	Features        map[string]float64  `json:"features"`
	Spectrogram     Spectrogram         `json:"spectrogram"`
	Provenance      classify.Provenance `json:"provenance"`
	Note            string              `json:"note"`
	FeatureSchema   string              `json:"feature_schema"`
	Decoder         string              `json:"decoder"`
}

// Options configures the optional rendering step
type Options struct {
	// Renderer draws the spectrogram image; nil disables rendering
	Renderer spectrogram.Renderer

	// RenderMinBudget is the time that must remain before the context
	// deadline for rendering to start
	RenderMinBudget time.Duration
}

// Pipeline sequences decode, extraction, spectrogram analysis and
// classification for a single recording. It holds only immutable
// collaborators and is safe for concurrent use.
type Pipeline struct {
	chain     *decoder.Chain
	extractor *features.Extractor
	analyzer  *spectrogram.Analyzer
	engine    *classify.Engine
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a pipeline
func New(
	chain *decoder.Chain,
	extractor *features.Extractor,
	analyzer *spectrogram.Analyzer,
	engine *classify.Engine,
	opts Options,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		chain:     chain,
		extractor: extractor,
		analyzer:  analyzer,
		engine:    engine,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
}

// Engine returns the decision engine
func (p *Pipeline) Engine() *classify.Engine {
	return p.engine
}

// Analyze runs the full analysis. Decode failures are returned unchanged so
// callers can match decoder.ErrEmptyInput, decoder.ErrTooShort and
// decoder.ErrUnsupportedFormat. Spectrogram and render failures are reported
// inside the result.
func (p *Pipeline) Analyze(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	decoded, err := p.chain.Decode(ctx, in.Data, decoder.Hints{
		MediaType: in.MediaType,
		Filename:  in.Filename,
	})
	if err != nil {
		p.metrics.RecordAnalysis(outcome(err), time.Since(start).Seconds())
		return nil, err
	}
	sig := decoded.Signal
	p.metrics.RecordAudioDuration(sig.Seconds())

	vector, err := p.extractor.Extract(sig)
	if err != nil {
		p.metrics.RecordAnalysis(OutcomeError, time.Since(start).Seconds())
		return nil, fmt.Errorf("feature extraction failed: %w", err)
	}

	spec := p.spectrogram(ctx, sig)

	decision := p.engine.Classify(vector)
	p.metrics.RecordClassification(string(decision.Provenance), decision.Label, decision.Probability)

	elapsed := time.Since(start)
	p.metrics.RecordAnalysis(OutcomeSuccess, elapsed.Seconds())

	p.logger.Info("Analysis completed",
		slog.String("decoder", decoded.Strategy),
		slog.String("format", string(decoded.Format)),
		slog.Float64("audio_seconds", sig.Seconds()),
		slog.Float64("probability", decision.Probability),
		slog.String("label", decision.Label),
		slog.String("provenance", string(decision.Provenance)),
		slog.Bool("image", len(spec.Image) > 0),
		slog.Duration("elapsed", elapsed),
	)

	return &Result{
		Probability:     decision.Probability,
		Label:           decision.Label,
		ConfidenceScore: decision.ConfidenceScore,
		Features:        vector.Summary(),
		Spectrogram:     spec,
		Provenance:      decision.Provenance,
		Note:            decision.Note,
		FeatureSchema:   features.SchemaVersion,
		Decoder:         decoded.Strategy,
	}, nil
}

func (p *Pipeline) spectrogram(ctx context.Context, sig *audio.Signal) Spectrogram {
	analysis, err := p.analyzer.Analyze(sig)
	if err != nil {
		p.logger.Warn("Spectrogram analysis unavailable",
			slog.Int("samples", sig.Len()),
			slog.String("error", err.Error()),
		)
		return Spectrogram{
			FrequencyAnalysis: analysis.Summary,
			TimeDuration:      analysis.TimeDuration,
			Error:             err.Error(),
		}
	}

	spec := Spectrogram{
		FrequencyAnalysis: analysis.Summary,
		TimeDuration:      analysis.TimeDuration,
	}

	if p.opts.Renderer == nil {
		return spec
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < p.opts.RenderMinBudget {
		p.metrics.RecordRenderSkipped()
		p.logger.Warn("Skipping spectrogram render",
			slog.Duration("remaining", time.Until(deadline)),
			slog.Duration("budget", p.opts.RenderMinBudget),
		)
		spec.Error = ErrRenderSkipped.Error()
		return spec
	}

	image, err := safeRender(p.opts.Renderer, analysis)
	if err != nil {
		p.metrics.RecordRenderFailure()
		p.logger.Warn("Spectrogram render failed", slog.String("error", err.Error()))
		spec.Error = fmt.Sprintf("spectrogram rendering failed: %v", err)
		return spec
	}

	spec.Image = image
	return spec
}

// safeRender converts a renderer panic into an error
func safeRender(r spectrogram.Renderer, a *spectrogram.Analysis) (image []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			image = nil
			err = fmt.Errorf("panic in renderer: %v", rec)
		}
	}()
	return r.Render(a)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, decoder.ErrEmptyInput):
		return OutcomeEmptyInput
	case errors.Is(err, decoder.ErrTooShort):
		return OutcomeTooShort
	case errors.Is(err, decoder.ErrUnsupportedFormat):
		return OutcomeUnsupportedFormat
	default:
		return OutcomeError
	}
}
