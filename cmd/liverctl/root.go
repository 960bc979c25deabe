package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skufu/liverscan/internal/analysis"
	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
	"github.com/Skufu/liverscan/internal/model"
	"github.com/Skufu/liverscan/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "liverctl",
	Short: "Liver disease pattern decision support from the terminal",
	Long: `liverctl runs the same analysis as the web dashboard against a local
model bundle: collect lab values, predict class probabilities and print the
interpreted risk tier, pattern groups and lab deviations.

` + interpret.Disclaimer,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("bundle", "", "Path to the model bundle manifest (overrides MODEL_BUNDLE env var)")
	rootCmd.PersistentFlags().String("feature-ui", "", "Path to a feature metadata YAML file (overrides FEATURE_UI env var)")
	rootCmd.PersistentFlags().String("ort-lib", "", "Path to the onnxruntime shared library (overrides ORT_SHARED_LIBRARY env var)")
	rootCmd.PersistentFlags().Bool("lenient", false, "Allow model features without metadata, using fallback bounds")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for diagnostics written to stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(versionCmd)
}

// flagOrEnv returns the flag value, then the env var, then fallback.
func flagOrEnv(cmd *cobra.Command, flag, env, fallback string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// openService loads the bundle named by the persistent flags and binds the
// feature metadata to it. The returned close func releases the model.
func openService(cmd *cobra.Command, policy interpret.Policy) (*analysis.Service, func() error, error) {
	bundle := flagOrEnv(cmd, "bundle", "MODEL_BUNDLE", "models/liver_pipeline.yaml")
	ortLib := flagOrEnv(cmd, "ort-lib", "ORT_SHARED_LIBRARY", "")
	level, _ := cmd.Flags().GetString("log-level")
	lenient, _ := cmd.Flags().GetBool("lenient")

	registry := features.DefaultRegistry()
	if path := flagOrEnv(cmd, "feature-ui", "FEATURE_UI", ""); path != "" {
		var err error
		registry, err = features.LoadRegistry(path)
		if err != nil {
			return nil, nil, err
		}
	}

	provider := model.FromBundle(bundle, ortLib, 30*time.Second)
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), level)
	svc, err := analysis.FromProvider(provider, registry, !lenient, policy, analysis.WithLogger(logger))
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return svc, provider.Close, nil
}
