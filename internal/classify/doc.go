// Package classify turns a feature vector into an apnea probability, label and
// provenance, degrading from the loaded model to a deterministic heuristic.
package classify
