// Package features holds the per-feature form metadata and turns submitted
// form values into a FeatureVector in the model's declared order.
package features

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Kind distinguishes numeric inputs from the binary sex selector.
type Kind string

const (
	KindNumeric Kind = "numeric"
	KindBinary  Kind = "binary"
)

var ErrUnmappedFeature = errors.New("unmapped feature")

// Spec is the display and bounds metadata for one feature.
type Spec struct {
	Name    string   `yaml:"name" json:"name"`
	Label   string   `yaml:"label" json:"label"`
	Min     float64  `yaml:"min" json:"min"`
	Max     float64  `yaml:"max" json:"max"`
	Default float64  `yaml:"default" json:"default"`
	Kind    Kind     `yaml:"kind,omitempty" json:"kind"`
	Aliases []string `yaml:"aliases,omitempty" json:"-"`
}

// Registry maps normalized feature names (and explicit aliases) to specs.
type Registry struct {
	specs    map[string]Spec
	fallback Spec
}

var defaultSpecs = []Spec{
	{Name: "age", Label: "Age (years)", Min: 1, Max: 100, Default: 32},
	{Name: "albumin", Label: "Albumin (g/dL)", Min: 1.5, Max: 6.0, Default: 4.5},
	{Name: "alkaline phosphatase", Label: "Alkaline Phosphatase (U/L)", Min: 40, Max: 400, Default: 95},
	{Name: "alanine aminotransferase", Label: "ALT – Alanine Aminotransferase (U/L)", Min: 5, Max: 300, Default: 22,
		Aliases: []string{"alamine aminotransferase", "alt"}},
	{Name: "aspartate aminotransferase", Label: "AST – Aspartate Aminotransferase (U/L)", Min: 5, Max: 300, Default: 24,
		Aliases: []string{"ast"}},
	{Name: "bilirubin", Label: "Total Bilirubin (mg/dL)", Min: 0.1, Max: 10.0, Default: 0.8},
	{Name: "cholinesterase", Label: "Cholinesterase (U/L)", Min: 2000, Max: 12000, Default: 7000},
	{Name: "cholesterol", Label: "Cholesterol (mg/dL)", Min: 80, Max: 400, Default: 170},
	{Name: "creatinina", Label: "Creatinine (mg/dL)", Min: 0.3, Max: 5.0, Default: 0.9,
		Aliases: []string{"creatinine"}},
	{Name: "gamma glutamyl transferase", Label: "Gamma GT (U/L)", Min: 5, Max: 300, Default: 30,
		Aliases: []string{"ggt", "gamma gt"}},
	{Name: "protein", Label: "Total Protein (g/dL)", Min: 4.0, Max: 9.0, Default: 7.2},
	{Name: "sex", Label: "Sex", Min: 0, Max: 1, Default: 1, Kind: KindBinary,
		Aliases: []string{"gender"}},
}

var titleCaser = cases.Title(language.English)

// DefaultRegistry returns the built-in liver panel metadata.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultSpecs)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry validates specs and indexes them by name and alias.
func NewRegistry(specs []Spec) (*Registry, error) {
	r := &Registry{
		specs:    make(map[string]Spec, len(specs)),
		fallback: Spec{Min: 0, Max: 1000, Default: 1, Kind: KindNumeric},
	}
	for _, s := range specs {
		if s.Kind == "" {
			s.Kind = KindNumeric
		}
		if err := validateSpec(s); err != nil {
			return nil, err
		}
		keys := append([]string{s.Name}, s.Aliases...)
		for _, k := range keys {
			key := Normalize(k)
			if _, dup := r.specs[key]; dup {
				return nil, fmt.Errorf("feature %q declared twice", k)
			}
			r.specs[key] = s
		}
	}
	return r, nil
}

type registryFile struct {
	Features []Spec `yaml:"features"`
}

// LoadRegistry reads feature metadata from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature metadata: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode feature metadata: %w", err)
	}
	if len(f.Features) == 0 {
		return nil, fmt.Errorf("feature metadata %s declares no features", path)
	}
	return NewRegistry(f.Features)
}

// Lookup finds the spec for a feature name after normalization.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[Normalize(name)]
	return s, ok
}

// Fallback is the record used for undeclared features in non-strict binding.
func (r *Registry) Fallback(name string) Spec {
	s := r.fallback
	s.Name = name
	s.Label = titleCaser.String(Normalize(name))
	return s
}

// Bind builds a Schema in the artifact's declared order. In strict mode every
// feature must be declared; otherwise undeclared features use Fallback.
func (r *Registry) Bind(featureNames []string, strict bool) (*Schema, error) {
	if len(featureNames) == 0 {
		return nil, errors.New("model declares no features")
	}
	fields := make([]Field, 0, len(featureNames))
	seen := make(map[string]bool, len(featureNames))
	var unmapped []string
	for _, name := range featureNames {
		key := Normalize(name)
		if key == "" {
			return nil, errors.New("model declares an empty feature name")
		}
		if seen[key] {
			return nil, fmt.Errorf("model declares feature %q twice", name)
		}
		seen[key] = true

		spec, ok := r.specs[key]
		if !ok {
			if strict {
				unmapped = append(unmapped, name)
				continue
			}
			spec = r.Fallback(name)
		}
		fields = append(fields, Field{Name: name, Spec: spec, Declared: ok})
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, fmt.Errorf("%w: %s", ErrUnmappedFeature, strings.Join(unmapped, ", "))
	}
	return &Schema{fields: fields}, nil
}

// Normalize lowercases, trims, turns underscores into spaces and collapses
// whitespace.
func Normalize(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

func validateSpec(s Spec) error {
	if Normalize(s.Name) == "" {
		return errors.New("feature spec without a name")
	}
	switch s.Kind {
	case KindNumeric, KindBinary:
	default:
		return fmt.Errorf("feature %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.Min > s.Max {
		return fmt.Errorf("feature %q: min %v above max %v", s.Name, s.Min, s.Max)
	}
	if s.Default < s.Min || s.Default > s.Max {
		return fmt.Errorf("feature %q: default %v outside [%v, %v]", s.Name, s.Default, s.Min, s.Max)
	}
	return nil
}
