// Package analysis runs one decision-support request end to end: collect the
// form values, call the model, interpret the probabilities.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
	"github.com/Skufu/liverscan/internal/model"
)

// Kind classifies a failed analysis for the caller.
type Kind string

const (
	KindInvalidInput     Kind = "invalid_input"
	KindConfigMismatch   Kind = "config_mismatch"
	KindModelUnavailable Kind = "model_unavailable"
	KindTimeout          Kind = "timeout"
	KindInternal         Kind = "internal"
)

// KindOf maps an Analyze error to its kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, interpret.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, interpret.ErrConfigMismatch):
		return KindConfigMismatch
	case errors.Is(err, model.ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Predictor is the slice of model.Provider the service needs.
type Predictor interface {
	PredictProba(ctx context.Context, features []float64) ([]float64, error)
}

// Recorder receives completed reports, e.g. for an audit trail.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// Report is the full output of one analysis.
type Report struct {
	ID             string                    `json:"id"`
	CreatedAt      time.Time                 `json:"created_at"`
	Features       features.FeatureVector    `json:"features"`
	Probabilities  []float64                 `json:"probabilities"`
	Interpretation *interpret.Interpretation `json:"interpretation"`
}

type Service struct {
	predictor Predictor
	schema    *features.Schema
	policy    interpret.Policy
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(p Predictor, schema *features.Schema, policy interpret.Policy, opts ...Option) *Service {
	s := &Service{
		predictor: p,
		schema:    schema,
		policy:    policy,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Schema() *features.Schema { return s.schema }

func (s *Service) Policy() interpret.Policy { return s.policy }

// WithPolicy returns a copy of s that buckets risk with p.
func (s *Service) WithPolicy(p interpret.Policy) *Service {
	cp := *s
	cp.policy = p
	return &cp
}

// Analyze collects values, predicts and interprets. Partial input never
// reaches the model.
func (s *Service) Analyze(ctx context.Context, values map[string]string) (*Report, error) {
	report, err := s.analyze(ctx, values)
	if err != nil {
		kind := KindOf(err)
		analysisErrorsTotal.WithLabelValues(string(kind)).Inc()
		if kind == KindInvalidInput {
			s.logger.Info("analysis rejected", "kind", kind, "error", err)
		} else {
			s.logger.Error("analysis failed", "kind", kind, "error", err)
		}
		return nil, err
	}

	analysesTotal.WithLabelValues(report.Interpretation.Risk.String(), report.Interpretation.Primary.Label.String()).Inc()
	s.logger.Info("analysis complete",
		"id", report.ID,
		"primary", report.Interpretation.Primary.Label.String(),
		"confidence", report.Interpretation.Primary.Probability,
		"risk", report.Interpretation.Risk.String(),
		"policy", s.policy.Name,
	)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, report); err != nil {
			s.logger.Warn("audit record failed", "id", report.ID, "error", err)
		}
	}
	return report, nil
}

func (s *Service) analyze(ctx context.Context, values map[string]string) (*Report, error) {
	vec, err := s.schema.Collect(values)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	probs, err := s.predictor.PredictProba(ctx, vec.Values)
	inferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	interp, err := interpret.Interpret(probs, vec.Names, vec.Values, s.policy)
	if err != nil {
		return nil, err
	}

	return &Report{
		ID:             uuid.NewString(),
		CreatedAt:      s.now().UTC(),
		Features:       vec,
		Probabilities:  probs,
		Interpretation: interp,
	}, nil
}

// FromProvider loads the model, binds the registry to its declared feature
// names and returns a ready Service. Binding failures are returned as-is so
// startup can abort on unmapped features.
func FromProvider(p *model.Provider, reg *features.Registry, strict bool, policy interpret.Policy, opts ...Option) (*Service, error) {
	names, err := p.FeatureNames()
	if err != nil {
		return nil, err
	}
	schema, err := reg.Bind(names, strict)
	if err != nil {
		return nil, fmt.Errorf("bind feature metadata: %w", err)
	}
	return NewService(p, schema, policy, opts...), nil
}
