package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	BackendONNX   = "onnx"
	BackendLinear = "linear"
)

// Bundle describes a trained pipeline artifact: which backend runs it and the
// feature names it was trained on, in order.
type Bundle struct {
	Backend      string        `yaml:"backend"`
	FeatureNames []string      `yaml:"feature_names"`
	ONNX         *ONNXConfig   `yaml:"onnx,omitempty"`
	Linear       *LinearConfig `yaml:"linear,omitempty"`

	dir string
}

type ONNXConfig struct {
	Path          string `yaml:"path"`
	InputName     string `yaml:"input_name"`
	OutputName    string `yaml:"output_name"`
	SharedLibrary string `yaml:"shared_library"`
}

// LinearConfig is a standard scaler followed by multinomial logistic
// regression: one coefficient row and intercept per class.
type LinearConfig struct {
	Means        []float64   `yaml:"means"`
	Scales       []float64   `yaml:"scales"`
	Coefficients [][]float64 `yaml:"coefficients"`
	Intercepts   []float64   `yaml:"intercepts"`
}

// LoadBundle reads a bundle manifest. Relative artifact paths resolve against
// the manifest's directory.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	b.dir = filepath.Dir(path)
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return &b, nil
}

func (b *Bundle) validate() error {
	if len(b.FeatureNames) == 0 {
		return errors.New("feature_names is empty")
	}
	switch b.Backend {
	case BackendONNX:
		if b.ONNX == nil || b.ONNX.Path == "" {
			return errors.New("onnx backend requires onnx.path")
		}
	case BackendLinear:
		if b.Linear == nil {
			return errors.New("linear backend requires a linear section")
		}
	default:
		return fmt.Errorf("unknown backend %q", b.Backend)
	}
	return nil
}

func (b *Bundle) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || b.dir == "" {
		return p
	}
	return filepath.Join(b.dir, p)
}

// Open constructs the predictor named by the bundle. ortLibrary overrides the
// manifest's shared library path when set.
func (b *Bundle) Open(ortLibrary string) (Predictor, error) {
	names := append([]string(nil), b.FeatureNames...)
	switch b.Backend {
	case BackendONNX:
		cfg := *b.ONNX
		cfg.Path = b.resolve(cfg.Path)
		if ortLibrary != "" {
			cfg.SharedLibrary = ortLibrary
		}
		return NewONNXPredictor(cfg, names)
	case BackendLinear:
		return NewLinearPredictor(*b.Linear, names)
	default:
		return nil, fmt.Errorf("unknown backend %q", b.Backend)
	}
}
