package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LinearParams holds a binary linear decision function coef·x + intercept
type LinearParams struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Linear is a binary linear classifier. The logistic kind maps the decision
// function through the sigmoid; the linear_svm kind only predicts labels.
type Linear struct {
	kind     string
	params   LinearParams
	classes  []int
	features int
	scaler   *Scaler
}

func newLinear(kind string, p LinearParams, classes []int, featureCount int, scaler *Scaler) (*Linear, error) {
	if err := validateClasses(classes); err != nil {
		return nil, err
	}

	if len(classes) != 2 {
		return nil, fmt.Errorf("%s model is binary, got %d classes", kind, len(classes))
	}

	if len(p.Coef) != featureCount {
		return nil, fmt.Errorf("%s model needs %d coefficients, got %d", kind, featureCount, len(p.Coef))
	}

	return &Linear{kind: kind, params: p, classes: classes, features: featureCount, scaler: scaler}, nil
}

func (l *Linear) decision(x []float64) float64 {
	return floats.Dot(l.params.Coef, l.scaler.apply(x)) + l.params.Intercept
}

// Kind implements Model
func (l *Linear) Kind() string {
	return l.kind
}

// PredictProba implements Model
func (l *Linear) PredictProba(x []float64) ([]float64, error) {
	if l.kind != KindLogistic {
		return nil, ErrNoProbability
	}

	if err := checkInput(x, l.features); err != nil {
		return nil, err
	}

	p := 1 / (1 + math.Exp(-l.decision(x)))
	return probaByLabel(l.classes, []float64{1 - p, p}), nil
}

// Predict implements Model
func (l *Linear) Predict(x []float64) (int, error) {
	if err := checkInput(x, l.features); err != nil {
		return 0, err
	}

	if l.decision(x) > 0 {
		return l.classes[1], nil
	}
	return l.classes[0], nil
}
