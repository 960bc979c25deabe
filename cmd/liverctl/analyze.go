package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
)

var (
	analyzeValues      []string
	analyzeInteractive bool
	analyzeDefaults    bool
	analyzePolicy      string
	analyzeJSON        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one set of lab values",
	Long: `Collect lab values, run the model and print the interpreted result.

Values are given as --value name=x and matched to the model's features by
exact name first, then case-insensitively with underscores read as spaces.

Examples:
  liverctl analyze --interactive
  liverctl analyze --defaults --value bilirubin=3.4 --value albumin=2.9
  liverctl analyze --defaults --policy chronic_lean --json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringArrayVar(&analyzeValues, "value", nil, "Lab value as name=x (repeatable)")
	analyzeCmd.Flags().BoolVarP(&analyzeInteractive, "interactive", "i", false, "Prompt for every value in a terminal form")
	analyzeCmd.Flags().BoolVar(&analyzeDefaults, "defaults", false, "Fill values not given with the form defaults")
	analyzeCmd.Flags().StringVar(&analyzePolicy, "policy", "", "Risk policy: confidence, top_probability or chronic_lean (overrides RISK_POLICY env var)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzePolicy == "" {
		analyzePolicy = os.Getenv("RISK_POLICY")
	}
	policy, err := interpret.ParsePolicy(analyzePolicy)
	if err != nil {
		return err
	}
	values, err := parseValueFlags(analyzeValues)
	if err != nil {
		return err
	}

	svc, closeModel, err := openService(cmd, policy)
	if err != nil {
		return err
	}
	defer closeModel()

	schema := svc.Schema()
	if err := rejectUnknown(schema, values); err != nil {
		return err
	}
	if analyzeDefaults || analyzeInteractive {
		values = withDefaults(schema, values)
	}
	if analyzeInteractive {
		if values, err = promptValues(schema, values); err != nil {
			return err
		}
	}

	report, err := svc.Analyze(cmd.Context(), values)
	if err != nil {
		var ce *features.CollectError
		if errors.As(err, &ce) {
			return fmt.Errorf("%d lab value(s) rejected:\n%s", len(ce.Fields), formatFieldErrors(ce))
		}
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprint(out, renderReport(report))
	return nil
}

// parseValueFlags turns name=x pairs into a form submission. Later pairs win.
func parseValueFlags(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --value %q, expected name=x", pair)
		}
		values[name] = strings.TrimSpace(raw)
	}
	return values, nil
}

// rejectUnknown fails when a given name matches no schema field, so a typo
// is never replaced by a default.
func rejectUnknown(schema *features.Schema, values map[string]string) error {
	known := make(map[string]bool)
	for _, name := range schema.Names() {
		known[features.Normalize(name)] = true
	}
	var unknown []string
	for name := range values {
		if !known[features.Normalize(name)] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unknown lab value(s) %s; run `liverctl features` for valid names",
		interpret.ErrInvalidInput, strings.Join(unknown, ", "))
}

// withDefaults fills every schema field missing from values with its default.
// Values given under a differently spelled name still count as present.
func withDefaults(schema *features.Schema, values map[string]string) map[string]string {
	given := make(map[string]string, len(values))
	for k, v := range values {
		given[features.Normalize(k)] = v
	}
	out := make(map[string]string, len(schema.Fields()))
	for name, def := range schema.Defaults() {
		if v, ok := given[features.Normalize(name)]; ok {
			out[name] = v
			continue
		}
		out[name] = def
	}
	return out
}

func promptValues(schema *features.Schema, values map[string]string) (map[string]string, error) {
	fields := schema.Fields()
	answers := make([]string, len(fields))
	inputs := make([]huh.Field, len(fields))

	for i, f := range fields {
		answers[i] = values[f.Name]
		spec := f.Spec
		if spec.Kind == features.KindBinary {
			inputs[i] = huh.NewSelect[string]().
				Title(spec.Label).
				Options(huh.NewOptions("Male", "Female")...).
				Value(&answers[i])
			continue
		}
		inputs[i] = huh.NewInput().
			Title(spec.Label).
			Description(fmt.Sprintf("between %s and %s", formatNumber(spec.Min), formatNumber(spec.Max))).
			Value(&answers[i]).
			Validate(func(s string) error {
				v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
				if err != nil {
					return fmt.Errorf("enter a number")
				}
				if v < spec.Min || v > spec.Max {
					return fmt.Errorf("must be between %s and %s", formatNumber(spec.Min), formatNumber(spec.Max))
				}
				return nil
			})
	}

	form := huh.NewForm(huh.NewGroup(inputs...).Title("Lab values"))
	if err := form.Run(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(fields))
	for i, f := range fields {
		out[f.Name] = answers[i]
	}
	return out, nil
}

func formatFieldErrors(ce *features.CollectError) string {
	lines := make([]string, len(ce.Fields))
	for i, f := range ce.Fields {
		lines[i] = "  - " + f.Error()
	}
	return strings.Join(lines, "\n")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
