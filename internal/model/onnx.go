package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultONNXInput  = "float_input"
	defaultONNXOutput = "probabilities"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// initORT sets up the process-wide onnxruntime environment exactly once.
func initORT(library string) error {
	ortEnvOnce.Do(func() {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// ONNXPredictor runs an exported pipeline (zipmap disabled) through
// onnxruntime. The session is shared; tensors are allocated per call.
type ONNXPredictor struct {
	names   []string
	session *ort.DynamicAdvancedSession

	mu     sync.RWMutex
	closed bool
}

func NewONNXPredictor(cfg ONNXConfig, names []string) (*ONNXPredictor, error) {
	if err := initORT(cfg.SharedLibrary); err != nil {
		return nil, fmt.Errorf("%w: init onnxruntime: %v", ErrModelUnavailable, err)
	}
	input := cfg.InputName
	if input == "" {
		input = defaultONNXInput
	}
	output := cfg.OutputName
	if output == "" {
		output = defaultONNXOutput
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.Path, []string{input}, []string{output}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrModelUnavailable, cfg.Path, err)
	}
	return &ONNXPredictor{names: names, session: session}, nil
}

func (p *ONNXPredictor) FeatureNames() []string {
	return append([]string(nil), p.names...)
}

func (p *ONNXPredictor) PredictProba(ctx context.Context, features []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(features) != len(p.names) {
		return nil, fmt.Errorf("onnx: got %d features, want %d", len(features), len(p.names))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("%w: session closed", ErrModelUnavailable)
	}

	data := make([]float32, len(features))
	for i, v := range features {
		data[i] = float32(v)
	}
	in, err := ort.NewTensor(ort.NewShape(1, int64(len(data))), data)
	if err != nil {
		return nil, fmt.Errorf("onnx: input tensor: %w", err)
	}
	defer in.Destroy()

	// A nil output lets onnxruntime allocate whatever shape the artifact
	// produces, so a class-count mismatch surfaces downstream.
	outputs := []ort.Value{nil}
	if err := p.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx: output %T is not a float32 tensor", outputs[0])
	}
	raw := out.GetData()
	probs := make([]float64, len(raw))
	for i, v := range raw {
		probs[i] = float64(v)
	}
	return probs, nil
}

func (p *ONNXPredictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.session == nil {
		return errors.New("onnx: nil session")
	}
	return p.session.Destroy()
}
