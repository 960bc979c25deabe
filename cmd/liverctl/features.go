package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Print the form fields bound to the model's features",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeModel, err := openService(cmd, interpret.PolicyConfidence)
		if err != nil {
			return err
		}
		defer closeModel()
		return printSchema(cmd.OutOrStdout(), svc.Schema())
	},
}

func printSchema(w io.Writer, schema *features.Schema) error {
	defaults := schema.Defaults()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tLABEL\tKIND\tMIN\tMAX\tDEFAULT\tMETADATA")
	for _, f := range schema.Fields() {
		meta := "declared"
		if !f.Declared {
			meta = "fallback"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Name, f.Spec.Label, f.Spec.Kind,
			formatNumber(f.Spec.Min), formatNumber(f.Spec.Max),
			defaults[f.Name], meta)
	}
	return tw.Flush()
}
