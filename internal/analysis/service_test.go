package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
	"github.com/Skufu/liverscan/internal/model"
)

type stubPredictor struct {
	probs []float64
	err   error
	calls int
	last  []float64
}

func (s *stubPredictor) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	s.calls++
	s.last = append([]float64(nil), features...)
	return s.probs, s.err
}

type memRecorder struct {
	reports []*Report
	err     error
}

func (m *memRecorder) Record(ctx context.Context, r *Report) error {
	m.reports = append(m.reports, r)
	return m.err
}

var names = []string{"age", "sex", "albumin", "bilirubin", "cholesterol"}

func newTestService(t *testing.T, pred Predictor, opts ...Option) *Service {
	t.Helper()
	schema, err := features.DefaultRegistry().Bind(names, true)
	require.NoError(t, err)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewService(pred, schema, interpret.PolicyConfidence, opts...)
}

func validValues() map[string]string {
	return map[string]string{
		"age":         "58",
		"sex":         "Male",
		"albumin":     "3.1",
		"bilirubin":   "4.2",
		"cholesterol": "150",
	}
}

func TestAnalyze_Success(t *testing.T) {
	pred := &stubPredictor{probs: []float64{0.05, 0.78, 0.1, 0.05, 0.02}}
	rec := &memRecorder{}
	svc := newTestService(t, pred, WithRecorder(rec))
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	report, err := svc.Analyze(context.Background(), validValues())
	require.NoError(t, err)

	assert.Equal(t, []float64{58, 1, 3.1, 4.2, 150}, pred.last)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), report.CreatedAt)
	assert.Equal(t, interpret.Cirrhosis, report.Interpretation.Primary.Label)
	assert.Equal(t, interpret.RiskHigh, report.Interpretation.Risk)
	assert.Equal(t, "cholesterol", report.Interpretation.Deviations.Top[0].Feature)
	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
}

func TestAnalyze_InvalidInputSkipsModel(t *testing.T) {
	pred := &stubPredictor{probs: []float64{1, 0, 0, 0, 0}}
	svc := newTestService(t, pred)

	values := validValues()
	delete(values, "albumin")
	_, err := svc.Analyze(context.Background(), values)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Zero(t, pred.calls)
}

func TestAnalyze_ConfigMismatch(t *testing.T) {
	for _, probs := range [][]float64{
		{0.25, 0.25, 0.25, 0.25},
		{0.1, 0.1, 0.2, 0.2, 0.2, 0.2},
	} {
		svc := newTestService(t, &stubPredictor{probs: probs})
		_, err := svc.Analyze(context.Background(), validValues())
		require.Error(t, err)
		assert.Equal(t, KindConfigMismatch, KindOf(err))
	}
}

func TestAnalyze_ModelErrors(t *testing.T) {
	svc := newTestService(t, &stubPredictor{err: model.ErrModelUnavailable})
	_, err := svc.Analyze(context.Background(), validValues())
	assert.Equal(t, KindModelUnavailable, KindOf(err))

	svc = newTestService(t, &stubPredictor{err: context.DeadlineExceeded})
	_, err = svc.Analyze(context.Background(), validValues())
	assert.Equal(t, KindTimeout, KindOf(err))

	svc = newTestService(t, &stubPredictor{err: errors.New("boom")})
	_, err = svc.Analyze(context.Background(), validValues())
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestAnalyze_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	svc := newTestService(t, &stubPredictor{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}, WithRecorder(rec))
	report, err := svc.Analyze(context.Background(), validValues())
	require.NoError(t, err)
	assert.Equal(t, interpret.RiskLow, report.Interpretation.Risk)
	assert.Len(t, rec.reports, 1)
}

func TestFromProvider(t *testing.T) {
	pred, err := model.NewLinearPredictor(model.LinearConfig{
		Means:        []float64{40, 1},
		Scales:       []float64{10, 1},
		Coefficients: [][]float64{{0, 0}, {0, 1}, {0, 0}, {0, 0}, {0, 0}},
		Intercepts:   []float64{0, 0, 0, 0, 0},
	}, []string{"Age", "Bilirubin"})
	require.NoError(t, err)

	svc, err := FromProvider(model.Static(pred, time.Second), features.DefaultRegistry(), true, interpret.PolicyTopProbability)
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "Bilirubin"}, svc.Schema().Names())
	assert.Equal(t, "top_probability", svc.Policy().Name)

	report, err := svc.Analyze(context.Background(), map[string]string{"Age": "40", "Bilirubin": "1"})
	require.NoError(t, err)
	assert.Equal(t, interpret.RiskLow, report.Interpretation.Risk)

	unmapped, err := model.NewLinearPredictor(model.LinearConfig{
		Means: []float64{0}, Scales: []float64{1},
		Coefficients: [][]float64{{0}, {0}, {0}, {0}, {0}}, Intercepts: []float64{0, 0, 0, 0, 0},
	}, []string{"ferritin"})
	require.NoError(t, err)
	_, err = FromProvider(model.Static(unmapped, 0), features.DefaultRegistry(), true, interpret.PolicyConfidence)
	assert.ErrorIs(t, err, features.ErrUnmappedFeature)
}

func TestWithPolicy_LeavesOriginalUntouched(t *testing.T) {
	pred := &stubPredictor{probs: []float64{0.48, 0.02, 0.02, 0.3, 0.18}}
	svc := newTestService(t, pred)
	top := svc.WithPolicy(interpret.PolicyTopProbability)

	report, err := top.Analyze(context.Background(), validValues())
	require.NoError(t, err)
	assert.Equal(t, interpret.RiskLow, report.Interpretation.Risk)

	report, err = svc.Analyze(context.Background(), validValues())
	require.NoError(t, err)
	assert.Equal(t, interpret.RiskMedium, report.Interpretation.Risk)
}
