package model

import (
	"context"
	"fmt"
	"math"
)

// LinearPredictor evaluates a scaled multinomial logistic regression in pure
// Go. It holds no mutable state.
type LinearPredictor struct {
	names []string
	cfg   LinearConfig
}

func NewLinearPredictor(cfg LinearConfig, names []string) (*LinearPredictor, error) {
	n := len(names)
	if len(cfg.Means) != n || len(cfg.Scales) != n {
		return nil, fmt.Errorf("linear: scaler has %d means and %d scales for %d features",
			len(cfg.Means), len(cfg.Scales), n)
	}
	if len(cfg.Coefficients) == 0 || len(cfg.Coefficients) != len(cfg.Intercepts) {
		return nil, fmt.Errorf("linear: %d coefficient rows for %d intercepts",
			len(cfg.Coefficients), len(cfg.Intercepts))
	}
	for i, row := range cfg.Coefficients {
		if len(row) != n {
			return nil, fmt.Errorf("linear: coefficient row %d has %d weights for %d features", i, len(row), n)
		}
	}
	for i, s := range cfg.Scales {
		if s == 0 {
			return nil, fmt.Errorf("linear: scale %d is zero", i)
		}
	}
	return &LinearPredictor{names: names, cfg: cfg}, nil
}

func (p *LinearPredictor) FeatureNames() []string {
	return append([]string(nil), p.names...)
}

// PredictProba returns one probability per coefficient row. The row count is
// whatever the artifact declares; callers check it against their class map.
func (p *LinearPredictor) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != len(p.names) {
		return nil, fmt.Errorf("linear: got %d features, want %d", len(features), len(p.names))
	}
	logits := make([]float64, len(p.cfg.Coefficients))
	for k, row := range p.cfg.Coefficients {
		z := p.cfg.Intercepts[k]
		for i, w := range row {
			z += w * (features[i] - p.cfg.Means[i]) / p.cfg.Scales[i]
		}
		logits[k] = z
	}
	return softmax(logits), nil
}

func (p *LinearPredictor) Close() error { return nil }

func softmax(logits []float64) []float64 {
	hi := math.Inf(-1)
	for _, z := range logits {
		if z > hi {
			hi = z
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
