package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// leaf marks a node without children
const leaf = -1

// ForestParams holds decision trees in the flat node-array layout used by the
// trainer: node i splits on Feature[i] at Threshold[i], going left when
// x <= Threshold. Value[i] holds per-class sample weights at node i.
type ForestParams struct {
	Trees []TreeParams `json:"trees"`
}

// TreeParams is a single decision tree
type TreeParams struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Forest is a random forest classifier. Probabilities are the mean of the
// per-tree normalized leaf distributions.
type Forest struct {
	trees    []TreeParams
	classes  []int
	features int
	scaler   *Scaler
}

func newForest(p ForestParams, classes []int, featureCount int, scaler *Scaler) (*Forest, error) {
	if err := validateClasses(classes); err != nil {
		return nil, err
	}

	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}

	for i, t := range p.Trees {
		if err := t.validate(len(classes), featureCount); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	return &Forest{trees: p.Trees, classes: classes, features: featureCount, scaler: scaler}, nil
}

func (t *TreeParams) validate(numClasses, featureCount int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}

	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}

	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]

		if len(t.Value[i]) != numClasses {
			return fmt.Errorf("node %d: expected %d class values, got %d", i, numClasses, len(t.Value[i]))
		}

		if left == leaf && right == leaf {
			continue
		}

		// Children always follow their parent, which rules out cycles
		if left <= i || right <= i || left >= n || right >= n {
			return fmt.Errorf("node %d: invalid children %d/%d", i, left, right)
		}

		if f := t.Feature[i]; f < 0 || f >= featureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, f)
		}
	}
	return nil
}

// leafValue walks the tree for x and returns the normalized leaf distribution
func (t *TreeParams) leafValue(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}

	dist := make([]float64, len(t.Value[node]))
	copy(dist, t.Value[node])
	if total := floats.Sum(dist); total > 0 {
		floats.Scale(1/total, dist)
	}
	return dist
}

// Kind implements Model
func (f *Forest) Kind() string {
	return KindForest
}

// PredictProba implements Model
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if err := checkInput(x, f.features); err != nil {
		return nil, err
	}

	in := f.scaler.apply(x)
	proba := make([]float64, len(f.classes))
	for i := range f.trees {
		floats.Add(proba, f.trees[i].leafValue(in))
	}
	floats.Scale(1/float64(len(f.trees)), proba)

	return probaByLabel(f.classes, proba), nil
}

// Predict implements Model
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(proba), nil
}
