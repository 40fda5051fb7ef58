package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
	"github.com/greenshelf/ecoscore/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the validation harness without publishing",
	Long: `Dry-run the validation harness on a labeled corpus: the same
cross-validation, bias audit, and gate decision as train, but nothing is
written to the registry or the store.

Examples:
  ecoscore validate --corpus labeled.csv
  ecoscore validate --corpus corpus.xlsx --sheet products --format json`,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.String("corpus", "", "labeled corpus (.csv or .xlsx) with a co2e_kg column")
	f.String("sheet", "", "XLSX sheet name (first sheet when empty)")
	f.String("format", "text", "output format: text or json")
	_ = validateCmd.MarkFlagRequired("corpus")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("validate"); err != nil {
		return err
	}

	corpus, _ := cmd.Flags().GetString("corpus")
	sheet, _ := cmd.Flags().GetString("sheet")
	format, _ := cmd.Flags().GetString("format")

	if format != "text" && format != "json" {
		return eris.Errorf("validate: --format must be text or json (got %q)", format)
	}

	samples, err := loadCorpus(corpus, sheet)
	if err != nil {
		return err
	}

	table, err := loadCoefficients()
	if err != nil {
		return err
	}

	harness := validation.New(feature.NewEncoder(), table, cfg.Validation)

	zap.L().Info("validation started",
		zap.String("corpus", corpus),
		zap.Int("samples", len(samples)),
	)

	result, err := harness.Run(ctx, samples)
	if err != nil {
		return eris.Wrap(err, "validate")
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Report)
	}

	printReport(result.Report)
	return nil
}

// printReport writes a human-readable validation report to stdout.
func printReport(r *model.ValidationReport) {
	fmt.Printf("Report:      %s\n", r.ID)
	fmt.Printf("Model:       %s\n", r.ModelVersion)
	fmt.Printf("Scheme:      %s\n", r.SchemeVersion)
	fmt.Printf("Dataset:     %d samples, %d folds, seed %d\n", r.DatasetSize, r.Folds, r.Seed)
	fmt.Printf("CV macro-F1: %.3f (std %.3f)\n", r.CVF1Mean, r.CVF1Std)
	fmt.Printf("Accuracy:    %.3f (95%% CI %.3f to %.3f)\n", r.Accuracy, r.AccuracyCILow, r.AccuracyCIHigh)
	fmt.Printf("p vs random: %.4g\n", r.PValueVsRandom)

	if len(r.FeatureRanking) > 0 {
		fmt.Println("\nTop features:")
		for i, f := range r.FeatureRanking {
			if i >= 5 {
				break
			}
			fmt.Printf("  %-20s %.3f\n", f.Name, f.Weight)
		}
	}

	if flagged := r.FlaggedSubgroups(); len(flagged) > 0 {
		fmt.Println("\nFlagged subgroups:")
		for _, s := range flagged {
			note := ""
			if s.LowSupport {
				note = ", insufficient support"
			}
			fmt.Printf("  %s=%s accuracy %.3f (support %d%s)\n", s.Dimension, s.Group, s.Accuracy, s.Support, note)
		}
	}

	if r.GatePassed {
		fmt.Println("\nGate: PASSED")
		return
	}
	fmt.Println("\nGate: FAILED")
	for _, reason := range r.GateReasons {
		fmt.Printf("  - %s\n", reason)
	}
}
