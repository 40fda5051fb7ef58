package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/greenshelf/ecoscore/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scoring health over a lookback window",
	Long:  "Aggregates persisted results into volume, tier mix, agreement rate, and degraded-request counts, and reports the gate status of the latest validation run.",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("lookback", 0, "lookback window in hours (default from config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	lookback, _ := cmd.Flags().GetInt("lookback")
	if lookback <= 0 {
		lookback = cfg.Monitoring.LookbackWindowHours
	}

	snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
	if err != nil {
		return eris.Wrap(err, "status")
	}

	formatSnapshot(os.Stdout, snap)
	return nil
}

// formatSnapshot writes the metrics snapshot to w.
func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Results:\t%d\n", s.ResultsTotal)
	_, _ = fmt.Fprintf(w, "  Tier high:\t%d\n", s.TierHigh)
	_, _ = fmt.Fprintf(w, "  Tier medium:\t%d\n", s.TierMedium)
	_, _ = fmt.Fprintf(w, "  Tier low:\t%d\n", s.TierLow)
	_, _ = fmt.Fprintf(w, "Sources:\trule %d / learned %d / blended %d\n", s.SourceRule, s.SourceLearned, s.SourceBlended)
	_, _ = fmt.Fprintf(w, "Degraded:\t%d (%.1f%%)\n", s.Degraded, s.DegradedRate*100)
	if s.Compared() > 0 {
		_, _ = fmt.Fprintf(w, "Agreement:\t%.1f%% of %d compared\n", s.AgreementRate*100, s.Compared())
		_, _ = fmt.Fprintf(w, "Avg disagreement:\t%.1f%%\n", s.AvgDisagreement*100)
	}
	if s.ResultsTotal > 0 {
		_, _ = fmt.Fprintf(w, "Avg CO2e:\t%.2f kg\n", s.AvgFinalCO2eKg)
	}
	if s.ModelVersion != "" {
		gate := "FAILED"
		if s.GatePassed {
			gate = "passed"
		}
		_, _ = fmt.Fprintf(w, "Model:\t%s (gate %s)\n", s.ModelVersion, gate)
	} else {
		_, _ = fmt.Fprintf(w, "Model:\tnone published\n")
	}
	_ = w.Flush()
}
