package dataset

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/greenshelf/ecoscore/internal/model"
)

// LoadProductsCSV reads unlabeled products for batch scoring. The header
// needs the feature columns only; a co2e_kg column, if present, is ignored.
func LoadProductsCSV(path string) ([]model.ProductFeatures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open products csv")
	}
	defer f.Close()

	return ReadProductsCSV(f)
}

// ReadProductsCSV parses unlabeled products from an open reader.
func ReadProductsCSV(r io.Reader) ([]model.ProductFeatures, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("dataset: empty csv")
	}
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv header")
	}

	idx, err := columnIndex(header, featureColumns)
	if err != nil {
		return nil, err
	}

	var products []model.ProductFeatures
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read csv row")
		}
		rowNum++
		if isBlank(record) {
			continue
		}
		p, err := parseFeatures(record, idx, rowNum)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if len(products) == 0 {
		return nil, eris.New("dataset: no data rows")
	}
	return products, nil
}
