package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/akarsh-2005/sleepdiagnosis/internal/features"
)

// Model kinds understood by Parse
const (
	KindForest    = "forest"
	KindLogistic  = "logistic"
	KindLinearSVM = "linear_svm"
)

// ErrNoProbability is returned by models that can only predict a label
var ErrNoProbability = errors.New("model does not provide probabilities")

// Model is a pre-trained binary classifier over features.Vector. Class 1
// means likely apnea. Implementations are read-only and safe for concurrent use.
type Model interface {
	// PredictProba returns per-class probabilities indexed by class label
	PredictProba(x []float64) ([]float64, error)

	// Predict returns the class label
	Predict(x []float64) (int, error)

	// Kind names the model family
	Kind() string
}

// Artifact is the on-disk JSON document produced by the offline trainer
type Artifact struct {
	SchemaVersion string `json:"schema_version"`
	FeatureCount  int    `json:"feature_count"`
	Kind          string `json:"kind"`
	Classes       []int  `json:"classes,omitempty"`

	Scaler   *Scaler         `json:"scaler,omitempty"`
	Forest   *ForestParams   `json:"forest,omitempty"`
	Logistic *LinearParams   `json:"logistic,omitempty"`
	SVM      *LinearParams   `json:"linear_svm,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Scaler standardizes inputs as (x - mean) / scale before prediction
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Load reads a model artifact from path. A missing file is not an error: it
// returns a nil Model and the caller falls back to the heuristic.
func Load(path string) (Model, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a model artifact. The schema version and
// feature count must match the current feature schema exactly.
func Parse(data []byte) (Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}

	if a.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("feature schema mismatch: model %q, extractor %q", a.SchemaVersion, features.SchemaVersion)
	}

	if a.FeatureCount != features.VectorLen {
		return nil, fmt.Errorf("feature count mismatch: model %d, extractor %d", a.FeatureCount, features.VectorLen)
	}

	classes := a.Classes
	if len(classes) == 0 {
		classes = []int{0, 1}
	}

	if a.Scaler != nil {
		if err := a.Scaler.validate(a.FeatureCount); err != nil {
			return nil, err
		}
	}

	var (
		m   Model
		err error
	)

	switch a.Kind {
	case KindForest:
		if a.Forest == nil {
			return nil, fmt.Errorf("forest model missing forest parameters")
		}
		m, err = newForest(*a.Forest, classes, a.FeatureCount, a.Scaler)
	case KindLogistic:
		if a.Logistic == nil {
			return nil, fmt.Errorf("logistic model missing logistic parameters")
		}
		m, err = newLinear(KindLogistic, *a.Logistic, classes, a.FeatureCount, a.Scaler)
	case KindLinearSVM:
		if a.SVM == nil {
			return nil, fmt.Errorf("linear_svm model missing linear_svm parameters")
		}
		m, err = newLinear(KindLinearSVM, *a.SVM, classes, a.FeatureCount, a.Scaler)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", a.Kind)
	}

	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Scaler) validate(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler must have %d means and scales, got %d and %d", n, len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scaler scale %d is zero", i)
		}
	}
	return nil
}

// apply returns a standardized copy of x
func (s *Scaler) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if s == nil {
		return out
	}
	for i := range out {
		out[i] = (out[i] - s.Mean[i]) / s.Scale[i]
	}
	return out
}

func checkInput(x []float64, n int) error {
	if len(x) != n {
		return fmt.Errorf("expected %d features, got %d", n, len(x))
	}
	return nil
}

// probaByLabel reorders per-class probabilities so index i holds class i
// probaByLabel reorders proba by class label. validateClasses guarantees the
// labels are a permutation of 0..len(classes)-1.
func probaByLabel(classes []int, proba []float64) []float64 {
	out := make([]float64, len(classes))
	for i, c := range classes {
		out[c] = proba[i]
	}
	return out
}

func validateClasses(classes []int) error {
	if len(classes) < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}
	seen := make(map[int]bool, len(classes))
	for _, c := range classes {
		if c < 0 || c >= len(classes) {
			return fmt.Errorf("class label %d out of range [0, %d]", c, len(classes)-1)
		}
		if seen[c] {
			return fmt.Errorf("duplicate class label %d", c)
		}
		seen[c] = true
	}
	return nil
}
