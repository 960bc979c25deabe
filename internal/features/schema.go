package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Skufu/liverscan/internal/interpret"
)

// Field is one bound form input.
type Field struct {
	Name     string `json:"name"`
	Spec     Spec   `json:"spec"`
	Declared bool   `json:"declared"`
}

// Schema is the form definition bound to a model's feature list. It is
// immutable after Bind.
type Schema struct {
	fields []Field
}

func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Columns lays fields out round-robin across n columns, the way the form
// renders them. Layout never changes collection order.
func (s *Schema) Columns(n int) [][]Field {
	if n < 1 {
		n = 1
	}
	cols := make([][]Field, n)
	for i, f := range s.fields {
		cols[i%n] = append(cols[i%n], f)
	}
	return cols
}

// Defaults renders every field's default as a form value.
func (s *Schema) Defaults() map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		if f.Spec.Kind == KindBinary {
			out[f.Name] = binaryOption(f.Spec.Default)
			continue
		}
		out[f.Name] = strconv.FormatFloat(f.Spec.Default, 'f', -1, 64)
	}
	return out
}

// FeatureVector is the ordered set of raw values submitted for one prediction.
type FeatureVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

func (v FeatureVector) Len() int { return len(v.Values) }

func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		out[n] = v.Values[i]
	}
	return out
}

// FieldError reports a single rejected form value.
type FieldError struct {
	Feature string `json:"feature"`
	Reason  string `json:"reason"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Feature, e.Reason)
}

// CollectError aggregates every rejected field of one submission.
type CollectError struct {
	Fields []*FieldError
}

func (e *CollectError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *CollectError) Unwrap() error { return interpret.ErrInvalidInput }

// Collect parses one submission into a FeatureVector in declared order. Values
// are looked up by exact feature name first, then by normalized name. Any
// missing, non-numeric or out-of-range value rejects the whole submission.
func (s *Schema) Collect(values map[string]string) (FeatureVector, error) {
	if len(s.fields) == 0 {
		return FeatureVector{}, fmt.Errorf("%w: empty feature vector", interpret.ErrInvalidInput)
	}
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		normalized[Normalize(k)] = v
	}

	vec := FeatureVector{
		Names:  make([]string, 0, len(s.fields)),
		Values: make([]float64, 0, len(s.fields)),
	}
	var errs []*FieldError
	for _, f := range s.fields {
		raw, ok := values[f.Name]
		if !ok {
			raw, ok = normalized[Normalize(f.Name)]
		}
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			errs = append(errs, &FieldError{Feature: f.Name, Reason: "value is required"})
			continue
		}
		v, err := parseValue(f.Spec, raw)
		if err != nil {
			errs = append(errs, &FieldError{Feature: f.Name, Reason: err.Error()})
			continue
		}
		vec.Names = append(vec.Names, f.Name)
		vec.Values = append(vec.Values, v)
	}
	if len(errs) > 0 {
		return FeatureVector{}, &CollectError{Fields: errs}
	}
	return vec, nil
}

func parseValue(spec Spec, raw string) (float64, error) {
	if spec.Kind == KindBinary {
		switch strings.ToLower(raw) {
		case "male", "m":
			return 1, nil
		case "female", "f":
			return 0, nil
		}
		// Numeric clients may send 1.0 or 0.0.
		if v, err := strconv.ParseFloat(raw, 64); err == nil && (v == 0 || v == 1) {
			return v, nil
		}
		return 0, fmt.Errorf("expected Male or Female, got %q", raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("value must be finite")
	}
	if v < spec.Min || v > spec.Max {
		return 0, fmt.Errorf("%v outside [%v, %v]", v, spec.Min, spec.Max)
	}
	return v, nil
}

func binaryOption(v float64) string {
	if v >= 1 {
		return "Male"
	}
	return "Female"
}
