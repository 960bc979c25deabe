package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/liverscan/internal/interpret"
)

// Column order as exported by the training notebook, not the form layout.
var artifactNames = []string{
	"Age", "Sex", "albumin", "alkaline_phosphatase", "alamine_aminotransferase",
	"aspartate_aminotransferase", "bilirubin", "cholinesterase", "cholesterol",
	"creatinina", "gamma_glutamyl_transferase", "protein",
}

func TestBind_PreservesArtifactOrder(t *testing.T) {
	schema, err := DefaultRegistry().Bind(artifactNames, true)
	require.NoError(t, err)
	assert.Equal(t, artifactNames, schema.Names())

	f := schema.Fields()[4]
	assert.Equal(t, "alanine aminotransferase", f.Spec.Name)
	assert.True(t, f.Declared)
}

func TestBind_StrictFailsOnUnmapped(t *testing.T) {
	_, err := DefaultRegistry().Bind([]string{"age", "ferritin", "zinc"}, true)
	require.ErrorIs(t, err, ErrUnmappedFeature)
	assert.Contains(t, err.Error(), "ferritin, zinc")
}

func TestBind_LenientUsesFallback(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"age", "serum_ferritin"}, false)
	require.NoError(t, err)
	f := schema.Fields()[1]
	assert.False(t, f.Declared)
	assert.Equal(t, "Serum Ferritin", f.Spec.Label)
	assert.Equal(t, 0.0, f.Spec.Min)
	assert.Equal(t, 1000.0, f.Spec.Max)
	assert.Equal(t, 1.0, f.Spec.Default)
}

func TestBind_RejectsDuplicatesAndEmpty(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Bind([]string{"age", "AGE"}, true)
	assert.Error(t, err)
	_, err = r.Bind([]string{"age", "  "}, true)
	assert.Error(t, err)
	_, err = r.Bind(nil, true)
	assert.Error(t, err)
}

func TestCollect_DefaultsRoundTrip(t *testing.T) {
	schema, err := DefaultRegistry().Bind(artifactNames, true)
	require.NoError(t, err)

	vec, err := schema.Collect(schema.Defaults())
	require.NoError(t, err)
	assert.Equal(t, artifactNames, vec.Names)
	assert.Equal(t, []float64{32, 1, 4.5, 95, 22, 24, 0.8, 7000, 170, 0.9, 30, 7.2}, vec.Values)
}

func TestCollect_IgnoresLayoutOrder(t *testing.T) {
	schema, err := DefaultRegistry().Bind(artifactNames, true)
	require.NoError(t, err)

	// Walk the two-column layout the way a browser would submit it.
	submitted := map[string]string{}
	defaults := schema.Defaults()
	for _, col := range schema.Columns(2) {
		for _, f := range col {
			submitted[f.Name] = defaults[f.Name]
		}
	}
	vec, err := schema.Collect(submitted)
	require.NoError(t, err)
	assert.Equal(t, schema.Names(), vec.Names)
}

func TestCollect_AcceptsNormalizedKeys(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"Age", "gamma_glutamyl_transferase", "Sex"}, true)
	require.NoError(t, err)
	vec, err := schema.Collect(map[string]string{
		"age":                        "51",
		"Gamma Glutamyl Transferase": "88",
		"sex":                        "female",
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{51, 88, 0}, vec.Values)
	assert.Equal(t, 88.0, vec.Map()["gamma_glutamyl_transferase"])
}

func TestCollect_RejectsBadInput(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"age", "bilirubin", "sex", "protein"}, true)
	require.NoError(t, err)

	_, err = schema.Collect(map[string]string{
		"age":       "forty",
		"bilirubin": "55",
		"sex":       "other",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, interpret.ErrInvalidInput))

	var ce *CollectError
	require.ErrorAs(t, err, &ce)
	got := map[string]string{}
	for _, f := range ce.Fields {
		got[f.Feature] = f.Reason
	}
	assert.Contains(t, got["age"], "not a number")
	assert.Contains(t, got["bilirubin"], "outside")
	assert.Contains(t, got["sex"], "Male or Female")
	assert.Equal(t, "value is required", got["protein"])
}

func TestCollect_BinaryAcceptsNumericEncodings(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"sex"}, true)
	require.NoError(t, err)

	for raw, want := range map[string]float64{
		"Male": 1, "f": 0, "1": 1, "0": 0, "1.0": 1, "0.0": 0, "1e0": 1,
	} {
		vec, err := schema.Collect(map[string]string{"sex": raw})
		require.NoError(t, err, raw)
		assert.Equal(t, []float64{want}, vec.Values, raw)
	}

	for _, raw := range []string{"0.5", "2", "-1", "NaN", "yes"} {
		_, err := schema.Collect(map[string]string{"sex": raw})
		assert.ErrorIs(t, err, interpret.ErrInvalidInput, raw)
	}
}

func TestCollect_RejectsNonFinite(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"age"}, true)
	require.NoError(t, err)
	_, err = schema.Collect(map[string]string{"age": "NaN"})
	assert.ErrorIs(t, err, interpret.ErrInvalidInput)
}

func TestColumns(t *testing.T) {
	schema, err := DefaultRegistry().Bind([]string{"age", "sex", "albumin"}, true)
	require.NoError(t, err)
	cols := schema.Columns(2)
	require.Len(t, cols, 2)
	assert.Equal(t, "age", cols[0][0].Name)
	assert.Equal(t, "albumin", cols[0][1].Name)
	assert.Equal(t, "sex", cols[1][0].Name)
	assert.Len(t, schema.Columns(0), 1)
}

func TestLoadRegistry(t *testing.T) {
	r, err := LoadRegistry("testdata/feature_ui.yaml")
	require.NoError(t, err)

	spec, ok := r.Lookup("GENDER")
	require.True(t, ok)
	assert.Equal(t, KindBinary, spec.Kind)

	spec, ok = r.Lookup("bilirubin")
	require.True(t, ok)
	assert.Equal(t, 1.1, spec.Default)
	assert.Equal(t, KindNumeric, spec.Kind)

	_, err = LoadRegistry("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry([]Spec{{Name: "age", Min: 10, Max: 1, Default: 5}})
	assert.Error(t, err)
	_, err = NewRegistry([]Spec{{Name: "age", Min: 0, Max: 10, Default: 50}})
	assert.Error(t, err)
	_, err = NewRegistry([]Spec{{Name: "age", Max: 1}, {Name: "AGE", Max: 1}})
	assert.Error(t, err)
	_, err = NewRegistry([]Spec{{Name: "age", Max: 1, Kind: "text"}})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "gamma glutamyl transferase", Normalize("  Gamma__Glutamyl_Transferase "))
}
