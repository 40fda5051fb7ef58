package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenshelf/ecoscore/internal/rules"
)

var coeffsCmd = &cobra.Command{
	Use:   "coeffs",
	Short: "Inspect and validate coefficient tables",
	Long: `Print the active coefficient table, or validate a candidate table
file before deploying it.

Examples:
  # Show the active table (config table_path, or the shipped defaults)
  ecoscore coeffs

  # Validate a candidate table
  ecoscore coeffs --table coefficients.yaml`,
	RunE: runCoeffs,
}

func init() {
	coeffsCmd.Flags().String("table", "", "validate and print a table file instead of the active one")
	rootCmd.AddCommand(coeffsCmd)
}

func runCoeffs(cmd *cobra.Command, _ []string) error {
	tablePath, _ := cmd.Flags().GetString("table")

	var table rules.CoefficientTable
	var err error
	if tablePath != "" {
		table, err = rules.LoadTable(tablePath)
		if err != nil {
			return err
		}
		fmt.Printf("Table %s is valid\n\n", table.Version)
	} else {
		table, err = loadCoefficients()
		if err != nil {
			return err
		}
	}

	printCoefficientTable(os.Stdout, table)
	return nil
}

// printCoefficientTable writes every tunable of the table in a fixed order.
func printCoefficientTable(out io.Writer, t rules.CoefficientTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Version:\t%s\n", t.Version)

	_, _ = fmt.Fprintln(w, "\nMaterial intensity (kgCO2e/kg):")
	for _, k := range sortedKeys(t.MaterialIntensity) {
		_, _ = fmt.Fprintf(w, "  %s\t%.2f\n", k, t.MaterialIntensity[k])
	}

	_, _ = fmt.Fprintln(w, "\nTransport intensity (gCO2e/tonne-km):")
	for _, k := range sortedKeys(t.TransportIntensity) {
		_, _ = fmt.Fprintf(w, "  %s\t%.0f\n", k, t.TransportIntensity[k])
	}

	_, _ = fmt.Fprintln(w, "\nPackaging adjustment (kgCO2e/unit):")
	for _, k := range sortedKeys(t.PackagingAdjustment) {
		_, _ = fmt.Fprintf(w, "  %s\t%.2f\n", k, t.PackagingAdjustment[k])
	}

	_, _ = fmt.Fprintln(w, "\nUnknown-category fallbacks:")
	_, _ = fmt.Fprintf(w, "  material intensity\t%.2f kgCO2e/kg\n", t.UnknownMaterialIntensity)
	_, _ = fmt.Fprintf(w, "  transport intensity\t%.0f gCO2e/tonne-km\n", t.UnknownTransportIntensity)
	_, _ = fmt.Fprintf(w, "  packaging\t%.2f kgCO2e\n", t.UnknownPackagingKg)
	_, _ = fmt.Fprintf(w, "  origin distance\t%.0f km\n", t.UnknownOriginDistanceKM)

	_, _ = fmt.Fprintln(w, "\nCO2e bands:")
	for _, b := range t.Bands {
		if b.UpperKg > 0 {
			_, _ = fmt.Fprintf(w, "  %s\t< %.1f kg\n", b.Name, b.UpperKg)
		} else {
			_, _ = fmt.Fprintf(w, "  %s\tunbounded\n", b.Name)
		}
	}
	_ = w.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
