package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Opener builds a Predictor. It is called at most once per Provider.
type Opener func() (Predictor, error)

// Provider loads the model once per process lifetime and shares it read-only
// across requests. A failed load is cached; the process must restart to retry.
type Provider struct {
	open    Opener
	timeout time.Duration

	once      sync.Once
	predictor Predictor
	err       error
}

// NewProvider wraps open. timeout bounds each inference call; zero disables it.
func NewProvider(open Opener, timeout time.Duration) *Provider {
	return &Provider{open: open, timeout: timeout}
}

// FromBundle returns a Provider that loads the manifest at path on first use.
func FromBundle(path, ortLibrary string, timeout time.Duration) *Provider {
	return NewProvider(func() (Predictor, error) {
		b, err := LoadBundle(path)
		if err != nil {
			return nil, err
		}
		return b.Open(ortLibrary)
	}, timeout)
}

// Static wraps an already constructed predictor.
func Static(p Predictor, timeout time.Duration) *Provider {
	return NewProvider(func() (Predictor, error) { return p, nil }, timeout)
}

// Predictor returns the loaded model, loading it on the first call.
func (p *Provider) Predictor() (Predictor, error) {
	p.once.Do(func() {
		p.predictor, p.err = p.open()
		if p.err == nil && p.predictor == nil {
			p.err = errors.New("opener returned no predictor")
		}
		if p.err != nil && !errors.Is(p.err, ErrModelUnavailable) {
			p.err = fmt.Errorf("%w: %v", ErrModelUnavailable, p.err)
		}
	})
	return p.predictor, p.err
}

// FeatureNames is the loaded artifact's declared input order.
func (p *Provider) FeatureNames() ([]string, error) {
	pred, err := p.Predictor()
	if err != nil {
		return nil, err
	}
	return pred.FeatureNames(), nil
}

// PredictProba runs one inference under the configured timeout.
func (p *Provider) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	pred, err := p.Predictor()
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("liverscan/model").Start(ctx, "model.predict_proba")
	defer span.End()
	span.SetAttributes(attribute.Int("model.features", len(features)))

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	probs, err := runWithContext(ctx, pred, features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("model.classes", len(probs)))
	return probs, nil
}

// Close releases the predictor if it was loaded. It waits for a load in
// flight; a Provider closed before first use never loads.
func (p *Provider) Close() error {
	p.once.Do(func() {
		p.err = fmt.Errorf("%w: provider closed", ErrModelUnavailable)
	})
	if p.predictor == nil {
		return nil
	}
	return p.predictor.Close()
}

type prediction struct {
	probs []float64
	err   error
}

// runWithContext returns when either the predictor finishes or ctx is done.
// Native backends cannot be interrupted, so a timed-out call finishes in the
// background and its result is dropped.
func runWithContext(ctx context.Context, pred Predictor, features []float64) ([]float64, error) {
	done := make(chan prediction, 1)
	go func() {
		probs, err := pred.PredictProba(ctx, features)
		done <- prediction{probs: probs, err: err}
	}()
	select {
	case r := <-done:
		return r.probs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
