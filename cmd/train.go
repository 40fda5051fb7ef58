package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/dataset"
	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/registry"
	"github.com/greenshelf/ecoscore/internal/validation"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and certify a model, publishing it on gate pass",
	Long: `Run the full training cycle on a labeled corpus: hyperparameter
search, stratified cross-validation, bias audit, significance test, final
fit, and the acceptance gate. The report is saved whether or not the gate
passes; the model is published only on a pass, and a failing run leaves the
previously published model active.

Examples:
  # Train from a CSV corpus and publish on gate pass
  ecoscore train --corpus labeled.csv

  # Train from a spreadsheet sheet
  ecoscore train --corpus corpus.xlsx --sheet products

  # Evaluate without touching the published model
  ecoscore train --corpus labeled.csv --no-publish`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.String("corpus", "", "labeled corpus (.csv or .xlsx) with a co2e_kg column")
	f.String("sheet", "", "XLSX sheet name (first sheet when empty)")
	f.Bool("no-publish", false, "run the harness without publishing on gate pass")
	f.Bool("save", true, "persist the validation report to the store")
	_ = trainCmd.MarkFlagRequired("corpus")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("train"); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "train"))

	corpus, _ := cmd.Flags().GetString("corpus")
	sheet, _ := cmd.Flags().GetString("sheet")
	noPublish, _ := cmd.Flags().GetBool("no-publish")
	save, _ := cmd.Flags().GetBool("save")

	samples, err := loadCorpus(corpus, sheet)
	if err != nil {
		return err
	}

	table, err := loadCoefficients()
	if err != nil {
		return err
	}

	enc := feature.NewEncoder()
	harness := validation.New(enc, table, cfg.Validation)

	log.Info("training started",
		zap.String("corpus", corpus),
		zap.Int("samples", len(samples)),
		zap.Int("folds", cfg.Validation.Folds),
		zap.Int64("seed", cfg.Validation.Seed),
	)

	result, err := harness.Run(ctx, samples)
	if err != nil {
		return eris.Wrap(err, "train")
	}

	reg := registry.New(cfg.Registry.Dir, enc)
	if err := reg.Load(); err != nil {
		return err
	}

	// The report is kept for audit whether or not the gate passed.
	if err := reg.SaveReport(result.Report); err != nil {
		return eris.Wrap(err, "train: save report")
	}

	if save {
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := st.SaveReport(ctx, result.Report); err != nil {
			return eris.Wrap(err, "train: save report to store")
		}
	}

	printReport(result.Report)

	if !result.Report.GatePassed {
		fmt.Println("\nModel not published: the previously published model, if any, stays active.")
		return nil
	}
	if noPublish {
		fmt.Println("\nPublish skipped (--no-publish).")
		return nil
	}

	if err := reg.Publish(result.Artifact, result.Report); err != nil {
		return eris.Wrap(err, "train: publish")
	}

	log.Info("model published",
		zap.String("model_version", result.Artifact.ModelVersion),
		zap.String("registry_dir", reg.Dir()),
	)
	fmt.Printf("\nPublished model %s to %s\n", result.Artifact.ModelVersion, reg.Dir())
	return nil
}

// loadCorpus loads a labeled corpus, dispatching on the file extension.
func loadCorpus(path, sheet string) ([]dataset.Labeled, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return dataset.LoadCSV(path)
	case ".xlsx":
		return dataset.LoadXLSX(path, sheet)
	default:
		return nil, eris.Errorf("unsupported corpus format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
}
