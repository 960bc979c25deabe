package model

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	names  []string
	probs  []float64
	delay  time.Duration
	calls  atomic.Int32
	closes atomic.Int32
}

func (f *fakePredictor) FeatureNames() []string { return f.names }

func (f *fakePredictor) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.probs, nil
}

func (f *fakePredictor) Close() error {
	f.closes.Add(1)
	return nil
}

func TestLoadBundle_Linear(t *testing.T) {
	b, err := LoadBundle("testdata/linear.yaml")
	require.NoError(t, err)
	assert.Equal(t, BackendLinear, b.Backend)
	assert.Equal(t, []string{"age", "bilirubin"}, b.FeatureNames)

	pred, err := b.Open("")
	require.NoError(t, err)
	defer pred.Close()

	// At the scaler means every logit is zero.
	probs, err := pred.PredictProba(context.Background(), []float64{40, 1.0})
	require.NoError(t, err)
	require.Len(t, probs, 5)
	for _, p := range probs {
		assert.InDelta(t, 0.2, p, 1e-12)
	}

	// One scale above the bilirubin mean pushes class 1 logit to 2.
	probs, err = pred.PredictProba(context.Background(), []float64{40, 1.5})
	require.NoError(t, err)
	e2 := math.Exp(2)
	assert.InDelta(t, e2/(e2+4), probs[1], 1e-12)
	assert.InDelta(t, 1/(e2+4), probs[0], 1e-12)
}

func TestLoadBundle_Errors(t *testing.T) {
	_, err := LoadBundle("testdata/nope.yaml")
	assert.Error(t, err)

	_, err = LoadBundle("testdata/broken.yaml")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestLoadBundle_ResolvesRelativeONNXPath(t *testing.T) {
	b, err := LoadBundle("testdata/onnx.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "liver_pipeline.onnx"), b.resolve(b.ONNX.Path))
	assert.Equal(t, "/abs/model.onnx", b.resolve("/abs/model.onnx"))
}

func TestLinearPredictor_ShapeChecks(t *testing.T) {
	_, err := NewLinearPredictor(LinearConfig{Means: []float64{0}, Scales: []float64{1}}, []string{"a", "b"})
	assert.Error(t, err)

	_, err = NewLinearPredictor(LinearConfig{
		Means: []float64{0}, Scales: []float64{0},
		Coefficients: [][]float64{{1}}, Intercepts: []float64{0},
	}, []string{"a"})
	assert.ErrorContains(t, err, "scale 0 is zero")

	pred, err := NewLinearPredictor(LinearConfig{
		Means: []float64{0}, Scales: []float64{1},
		Coefficients: [][]float64{{1}, {-1}}, Intercepts: []float64{0, 0},
	}, []string{"a"})
	require.NoError(t, err)
	_, err = pred.PredictProba(context.Background(), []float64{1, 2})
	assert.Error(t, err)
}

func TestLinearPredictor_ReportsArtifactCardinality(t *testing.T) {
	b, err := LoadBundle("testdata/four_class.yaml")
	require.NoError(t, err)
	pred, err := b.Open("")
	require.NoError(t, err)
	probs, err := pred.PredictProba(context.Background(), []float64{1, 1})
	require.NoError(t, err)
	assert.Len(t, probs, 4)
}

func TestProvider_LoadsOnce(t *testing.T) {
	var opens atomic.Int32
	fake := &fakePredictor{names: []string{"age"}, probs: []float64{1, 0, 0, 0, 0}}
	p := NewProvider(func() (Predictor, error) {
		opens.Add(1)
		return fake, nil
	}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.PredictProba(context.Background(), []float64{50})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	assert.Equal(t, int32(32), fake.calls.Load())

	names, err := p.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, names)
}

func TestProvider_CachesLoadFailure(t *testing.T) {
	var opens atomic.Int32
	p := NewProvider(func() (Predictor, error) {
		opens.Add(1)
		return nil, errors.New("artifact missing")
	}, 0)

	_, err := p.PredictProba(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	_, err = p.FeatureNames()
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), opens.Load())
	assert.NoError(t, p.Close())
}

func TestProvider_CloseWaitsForLoad(t *testing.T) {
	fake := &fakePredictor{names: []string{"age"}, probs: []float64{1, 0, 0, 0, 0}}
	release := make(chan struct{})
	started := make(chan struct{})
	p := NewProvider(func() (Predictor, error) {
		close(started)
		<-release
		return fake, nil
	}, 0)

	loaded := make(chan error, 1)
	go func() {
		_, err := p.Predictor()
		loaded <- err
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while the model was still loading")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-loaded)
	require.NoError(t, <-closed)
	assert.Equal(t, int32(1), fake.closes.Load())
}

func TestProvider_CloseBeforeLoad(t *testing.T) {
	var opens atomic.Int32
	p := NewProvider(func() (Predictor, error) {
		opens.Add(1)
		return &fakePredictor{}, nil
	}, 0)

	require.NoError(t, p.Close())
	_, err := p.Predictor()
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Zero(t, opens.Load())
}

func TestProvider_Timeout(t *testing.T) {
	slow := &fakePredictor{names: []string{"age"}, probs: []float64{1, 0, 0, 0, 0}, delay: 200 * time.Millisecond}
	p := Static(slow, 10*time.Millisecond)

	_, err := p.PredictProba(context.Background(), []float64{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFromBundle(t *testing.T) {
	p := FromBundle("testdata/linear.yaml", "", time.Second)
	names, err := p.FeatureNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "bilirubin"}, names)

	bad := FromBundle("testdata/broken.yaml", "", time.Second)
	_, err = bad.Predictor()
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestDemoBundle(t *testing.T) {
	b, err := LoadBundle(filepath.Join("..", "..", "models", "liver_pipeline.yaml"))
	require.NoError(t, err)
	require.Len(t, b.FeatureNames, 12)

	pred, err := b.Open("")
	require.NoError(t, err)
	defer pred.Close()

	probs, err := pred.PredictProba(context.Background(),
		[]float64{32, 1, 4.5, 95, 22, 24, 0.8, 7000, 170, 0.9, 30, 7.2})
	require.NoError(t, err)
	require.Len(t, probs, 5)

	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, probs[0], probs[1], "a reference panel should lean healthy")
}
