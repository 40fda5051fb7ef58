// Package dataset loads labeled product corpora used to train and validate
// the learned predictor. A corpus row couples the catalog features of one
// product with its measured lifecycle CO2e in kilograms.
package dataset

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/greenshelf/ecoscore/internal/model"
)

// Labeled is one corpus row.
type Labeled struct {
	Features model.ProductFeatures `json:"features"`
	CO2eKg   float64               `json:"co2e_kg"`
}

// Column names for product features, in any order.
var featureColumns = []string{
	"material",
	"transport_mode",
	"origin_country",
	"weight_kg",
	"packaging",
	"recyclability",
	"size_category",
	"pack_size",
	"quality",
}

// Column names required in a labeled corpus header.
var requiredColumns = append(append([]string{}, featureColumns...), "co2e_kg")

// columnIndex resolves the header row into a name -> position map and
// verifies every required column is present.
func columnIndex(header, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("dataset: header missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// cell returns the trimmed value at position i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseFeatures converts the feature columns of one data row. rowNum is
// 1-based including the header, so errors point at the line a user sees in
// their spreadsheet.
func parseFeatures(row []string, idx map[string]int, rowNum int) (model.ProductFeatures, error) {
	var p model.ProductFeatures

	weight, err := strconv.ParseFloat(cell(row, idx["weight_kg"]), 64)
	if err != nil {
		return p, eris.Errorf("dataset: row %d: weight_kg %q is not a number", rowNum, cell(row, idx["weight_kg"]))
	}
	recyclability, err := strconv.ParseFloat(cell(row, idx["recyclability"]), 64)
	if err != nil {
		return p, eris.Errorf("dataset: row %d: recyclability %q is not a number", rowNum, cell(row, idx["recyclability"]))
	}
	packSize, err := strconv.Atoi(cell(row, idx["pack_size"]))
	if err != nil {
		return p, eris.Errorf("dataset: row %d: pack_size %q is not an integer", rowNum, cell(row, idx["pack_size"]))
	}

	p = model.ProductFeatures{
		Material:      model.Material(strings.ToLower(cell(row, idx["material"]))),
		TransportMode: model.TransportMode(strings.ToLower(cell(row, idx["transport_mode"]))),
		OriginCountry: strings.ToUpper(cell(row, idx["origin_country"])),
		WeightKg:      weight,
		Packaging:     model.Packaging(strings.ToLower(cell(row, idx["packaging"]))),
		Recyclability: recyclability,
		SizeCategory:  model.SizeCategory(strings.ToLower(cell(row, idx["size_category"]))),
		PackSize:      packSize,
		Quality:       model.QualityLevel(strings.ToLower(cell(row, idx["quality"]))),
	}
	return p, nil
}

func parseRow(row []string, idx map[string]int, rowNum int) (Labeled, error) {
	var s Labeled

	features, err := parseFeatures(row, idx, rowNum)
	if err != nil {
		return s, err
	}
	co2e, err := strconv.ParseFloat(cell(row, idx["co2e_kg"]), 64)
	if err != nil {
		return s, eris.Errorf("dataset: row %d: co2e_kg %q is not a number", rowNum, cell(row, idx["co2e_kg"]))
	}
	if co2e <= 0 {
		return s, eris.Errorf("dataset: row %d: co2e_kg must be positive, got %v", rowNum, co2e)
	}

	s.Features = features
	s.CO2eKg = co2e
	return s, nil
}

func parseRows(header []string, rows [][]string) ([]Labeled, error) {
	idx, err := columnIndex(header, requiredColumns)
	if err != nil {
		return nil, err
	}

	samples := make([]Labeled, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		s, err := parseRow(row, idx, i+2)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, eris.New("dataset: no data rows")
	}
	return samples, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
