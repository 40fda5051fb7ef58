package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greenshelf/ecoscore/internal/dataset"
	"github.com/greenshelf/ecoscore/internal/model"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score products with the dual-estimator engine",
	Long: `Score retail products. Each product runs through the rule-based
calculator and, when a certified model is published, the learned estimator;
the two estimates reconcile into one CO2e value with a confidence tier.

Examples:
  # Score a single product
  ecoscore score --material plastic --transport sea --origin CN --weight 2.0

  # Score a CSV of products and export the results
  ecoscore score --input products.csv --format csv --output scored.csv

  # Score and persist to the store
  ecoscore score --input products.csv --save`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("input", "", "CSV of products to score (omit for single-product flags)")
	f.String("material", "", "dominant material (plastic, glass, aluminum, ...)")
	f.String("transport", "", "transport mode (sea, air, rail, road)")
	f.String("origin", "", "origin country, ISO 3166-1 alpha-2")
	f.Float64("weight", 0, "product weight in kg")
	f.String("packaging", "none", "retail packaging (none, cardboard_box, ...)")
	f.Float64("recyclability", 0, "recyclable fraction in [0,1]")
	f.String("size", "m", "size category (xs, s, m, l, xl)")
	f.Int("pack-size", 1, "units per retail pack")
	f.String("quality", "standard", "quality level (budget, standard, premium)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "table", "output format: table, csv, or json")
	f.Bool("save", false, "persist results to the store")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("score"); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "score"))

	input, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")

	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("score: --format must be table, csv, or json (got %q)", format)
	}

	env, err := initScoring(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	// Single-product mode.
	if input == "" {
		p := featuresFromFlags(cmd)
		if p.Material == "" {
			return eris.New("score: --material is required (or use --input for batch mode)")
		}

		res, err := env.Reconciler.Reconcile(ctx, p)
		if err != nil {
			return eris.Wrap(err, "score")
		}
		printSingleResult(res)
		if save {
			if err := env.Store.SaveResult(ctx, res); err != nil {
				return eris.Wrap(err, "score: save")
			}
			fmt.Printf("\nResult %s saved\n", res.ID)
		}
		return nil
	}

	// Batch mode.
	products, err := dataset.LoadProductsCSV(input)
	if err != nil {
		return err
	}

	log.Info("starting batch scoring",
		zap.Int("products", len(products)),
		zap.Int("concurrency", cfg.Batch.MaxConcurrentProducts),
	)

	results, err := scoreBatch(ctx, products, cfg.Batch.MaxConcurrentProducts, env.Reconciler.Reconcile)
	if err != nil {
		return eris.Wrap(err, "score: batch")
	}

	if err := outputResults(results, format, outputPath); err != nil {
		return err
	}
	if save && len(results) > 0 {
		n, err := env.Store.SaveResults(ctx, results)
		if err != nil {
			return eris.Wrap(err, "score: save")
		}
		fmt.Printf("Saved %d results to the store\n", n)
	}

	printScoreSummary(results)
	return nil
}

// featuresFromFlags builds a product from the single-product flags, applying
// the same case normalization the dataset loaders use.
func featuresFromFlags(cmd *cobra.Command) model.ProductFeatures {
	material, _ := cmd.Flags().GetString("material")
	transport, _ := cmd.Flags().GetString("transport")
	origin, _ := cmd.Flags().GetString("origin")
	weight, _ := cmd.Flags().GetFloat64("weight")
	packaging, _ := cmd.Flags().GetString("packaging")
	recyclability, _ := cmd.Flags().GetFloat64("recyclability")
	size, _ := cmd.Flags().GetString("size")
	packSize, _ := cmd.Flags().GetInt("pack-size")
	quality, _ := cmd.Flags().GetString("quality")

	return model.ProductFeatures{
		Material:      model.Material(strings.ToLower(strings.TrimSpace(material))),
		TransportMode: model.TransportMode(strings.ToLower(strings.TrimSpace(transport))),
		OriginCountry: strings.ToUpper(strings.TrimSpace(origin)),
		WeightKg:      weight,
		Packaging:     model.Packaging(strings.ToLower(strings.TrimSpace(packaging))),
		Recyclability: recyclability,
		SizeCategory:  model.SizeCategory(strings.ToLower(strings.TrimSpace(size))),
		PackSize:      packSize,
		Quality:       model.QualityLevel(strings.ToLower(strings.TrimSpace(quality))),
	}
}

// scoreFunc is the callback signature for scoring one product.
type scoreFunc func(ctx context.Context, p model.ProductFeatures) (*model.ReconciledResult, error)

// scoreBatch scores products concurrently, preserving input order in the
// returned slice. Individual failures are logged and skipped rather than
// aborting the batch.
func scoreBatch(ctx context.Context, products []model.ProductFeatures, concurrency int, score scoreFunc) ([]model.ReconciledResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	slots := make([]*model.ReconciledResult, len(products))
	var failed atomic.Int64

	for i, p := range products {
		g.Go(func() error {
			res, err := score(gctx, p)
			if err != nil {
				failed.Add(1)
				zap.L().Error("batch scoring failed",
					zap.Int("row", i+1),
					zap.String("material", string(p.Material)),
					zap.Error(err),
				)
				return nil // don't abort the batch on individual failure
			}
			slots[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]model.ReconciledResult, 0, len(products))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}

	zap.L().Info("batch scoring complete",
		zap.Int("scored", len(results)),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

func printSingleResult(r *model.ReconciledResult) {
	fmt.Printf("ID:           %s\n", r.ID)
	fmt.Printf("Final CO2e:   %.3f kg\n", r.FinalCO2eKg)
	fmt.Printf("Tier:         %s\n", r.ConfidenceTier)
	fmt.Printf("Source:       %s\n", r.Source)
	fmt.Printf("Rule:         %.3f kg (table %s)\n", r.Rule.CO2eKg, r.Rule.TableVersion)
	if r.Learned != nil {
		fmt.Printf("Learned:      %.3f kg (band %s, confidence %.2f, model %s)\n",
			r.Learned.CO2eKg, r.Learned.Band, r.Learned.Confidence, r.Learned.ModelVersion)
		fmt.Printf("Disagreement: %.1f%%\n", r.DisagreementMagnitude*100)
	} else {
		fmt.Printf("Learned:      unavailable (rule-only)\n")
	}

	if len(r.Breakdown) > 0 {
		fmt.Println("\nBreakdown:")
		keys := make([]string, 0, len(r.Breakdown))
		for k := range r.Breakdown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-15s %.3f kg\n", k, r.Breakdown[k])
		}
	}
}

func printScoreSummary(results []model.ReconciledResult) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	var agreed, compared, degraded int
	var tierHigh, tierMedium, tierLow int
	var sumCO2e float64
	for _, r := range results {
		sumCO2e += r.FinalCO2eKg
		if r.Degraded {
			degraded++
		} else {
			compared++
			if r.Agreement {
				agreed++
			}
		}
		switch r.ConfidenceTier {
		case model.TierHigh:
			tierHigh++
		case model.TierMedium:
			tierMedium++
		case model.TierLow:
			tierLow++
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Total scored:  %d\n", len(results))
	fmt.Printf("Tiers:         high %d / medium %d / low %d\n", tierHigh, tierMedium, tierLow)
	if compared > 0 {
		fmt.Printf("Agreement:     %d of %d compared (%.1f%%)\n", agreed, compared, float64(agreed)/float64(compared)*100)
	}
	if degraded > 0 {
		fmt.Printf("Degraded:      %d (rule-only)\n", degraded)
	}
	fmt.Printf("Average CO2e:  %.2f kg\n", sumCO2e/float64(len(results)))
}

func outputResults(results []model.ReconciledResult, format, outputPath string) error {
	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch format {
	case "csv":
		return writeResultsCSV(w, results)
	case "json":
		return writeResultsJSON(w, results)
	case "table":
		return writeResultsTable(w, results)
	default:
		return eris.Errorf("score: unsupported format %q", format)
	}
}

func writeResultsCSV(w io.Writer, results []model.ReconciledResult) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "material", "transport_mode", "origin_country", "weight_kg", "final_co2e_kg", "tier", "source", "agreement", "disagreement", "degraded"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}

	for _, r := range results {
		row := []string{
			r.ID,
			string(r.Features.Material),
			string(r.Features.TransportMode),
			r.Features.OriginCountry,
			fmt.Sprintf("%g", r.Features.WeightKg),
			fmt.Sprintf("%.4f", r.FinalCO2eKg),
			string(r.ConfidenceTier),
			string(r.Source),
			fmt.Sprintf("%v", r.Agreement),
			fmt.Sprintf("%.4f", r.DisagreementMagnitude),
			fmt.Sprintf("%v", r.Degraded),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

func writeResultsJSON(w io.Writer, results []model.ReconciledResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "score: write JSON")
	}
	return nil
}

func writeResultsTable(w io.Writer, results []model.ReconciledResult) error {
	header := fmt.Sprintf("%-36s %-10s %-6s %-3s %10s %9s %-8s %8s\n",
		"ID", "Material", "Mode", "Org", "Weight(kg)", "CO2e(kg)", "Tier", "Source")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 98)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for _, r := range results {
		line := fmt.Sprintf("%-36s %-10s %-6s %-3s %10.2f %9.2f %-8s %8s\n",
			r.ID,
			r.Features.Material,
			r.Features.TransportMode,
			r.Features.OriginCountry,
			r.Features.WeightKg,
			r.FinalCO2eKg,
			r.ConfidenceTier,
			r.Source,
		)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}
