package classify

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
	"github.com/akarsh-2005/sleepdiagnosis/internal/model"
)

// Provenance records which tier produced a probability
type Provenance string

const (
	ProvenanceModel     Provenance = "model-based"
	ProvenanceLabelOnly Provenance = "label-only"
	ProvenanceHeuristic Provenance = "heuristic-fallback"
)

// Labels
const (
	LabelLikelyApnea = "likely_apnea"
	LabelUnlikely    = "unlikely"
)

// Threshold is the probability at or above which a recording is labelled
// likely apnea
const Threshold = 0.5

var notes = map[Provenance]string{
	ProvenanceModel:     "Model-based prediction",
	ProvenanceLabelOnly: "Prediction (no probability)",
	ProvenanceHeuristic: "Heuristic fallback",
}

// Result is a classification decision
type Result struct {
	Probability     float64    `json:"probability"`
	Label           string     `json:"label"`
	ConfidenceScore int        `json:"confidence_score"`
	Provenance      Provenance `json:"provenance"`
	Note            string     `json:"note"`
}

// Engine blends an optional model with the heuristic fallback. It never
// fails: model errors and panics fall through to the next tier.
type Engine struct {
	model  model.Model
	logger *slog.Logger
}

// NewEngine creates a decision engine. A nil model is valid.
func NewEngine(m model.Model, logger *slog.Logger) *Engine {
	return &Engine{model: m, logger: logger}
}

// HasModel reports whether a model is loaded
func (e *Engine) HasModel() bool {
	return e.model != nil
}

// ModelKind returns the loaded model's kind, or "" without a model
func (e *Engine) ModelKind() string {
	if e.model == nil {
		return ""
	}
	return e.model.Kind()
}

// Classify decides on a feature vector
func (e *Engine) Classify(v features.Vector) Result {
	if e.model != nil {
		x := v.Slice()

		p, err := e.probability(x)
		if err == nil {
			return newResult(p, ProvenanceModel)
		}
		e.logger.Warn("Model probability unavailable, trying label prediction",
			slog.String("model", e.model.Kind()),
			slog.String("error", err.Error()),
		)

		p, err = e.label(x)
		if err == nil {
			return newResult(p, ProvenanceLabelOnly)
		}
		e.logger.Warn("Model prediction failed, using heuristic",
			slog.String("model", e.model.Kind()),
			slog.String("error", err.Error()),
		)
	}

	return newResult(Heuristic(v.Energy(), v.ZCR()), ProvenanceHeuristic)
}

// probability queries P(class 1), converting panics to errors
func (e *Engine) probability(x []float64) (p float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in PredictProba: %v", r)
		}
	}()

	proba, err := e.model.PredictProba(x)
	if err != nil {
		return 0, err
	}

	if len(proba) < 2 {
		return 0, fmt.Errorf("expected probabilities for 2 classes, got %d", len(proba))
	}

	p = proba[1]
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("non-finite probability %v", p)
	}
	return clamp(p, 0, 1), nil
}

// label queries the discrete prediction and maps it to 0 or 1
func (e *Engine) label(x []float64) (p float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Predict: %v", r)
		}
	}()

	label, err := e.model.Predict(x)
	if err != nil {
		return 0, err
	}

	if label == 1 {
		return 1, nil
	}
	return 0, nil
}

// Heuristic scores energy and zero-crossing rate when no model is usable:
// score = min(1, energy*10) + max(0, (0.2 - zcr)*5), probability = score/2
func Heuristic(energy, zcr float64) float64 {
	score := math.Min(1, energy*10) + math.Max(0, (0.2-zcr)*5)
	p := clamp(score/2, 0, 1)
	if math.IsNaN(p) {
		return 0
	}
	return p
}

func newResult(p float64, provenance Provenance) Result {
	label := LabelUnlikely
	if p >= Threshold {
		label = LabelLikelyApnea
	}

	return Result{
		Probability:     p,
		Label:           label,
		ConfidenceScore: Confidence(p),
		Provenance:      provenance,
		Note:            notes[provenance],
	}
}

// Confidence returns round(p*100) with ties to even
func Confidence(p float64) int {
	return int(math.RoundToEven(p * 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
