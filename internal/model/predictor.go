// Package model loads the trained classification pipeline and exposes it as
// an opaque predict-probabilities function.
package model

import (
	"context"
	"errors"
)

var ErrModelUnavailable = errors.New("model unavailable")

// Predictor is the black-box pipeline contract. Implementations must be safe
// for concurrent PredictProba calls once constructed.
type Predictor interface {
	// FeatureNames is the fixed input order declared by the artifact.
	FeatureNames() []string
	PredictProba(ctx context.Context, features []float64) ([]float64, error)
	Close() error
}
