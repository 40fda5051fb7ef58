package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/greenshelf/ecoscore/internal/feature"
	"github.com/greenshelf/ecoscore/internal/model"
)

const corpusHeader = "material,transport_mode,origin_country,weight_kg,packaging,recyclability,size_category,pack_size,quality,co2e_kg"

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		corpusHeader,
		"plastic,sea,CN,2.0,cardboard_box,0.6,m,1,standard,8.5",
		"glass,rail,DE,1.2,none,0.9,s,6,premium,2.1",
	)

	samples, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	first := samples[0]
	assert.Equal(t, model.MaterialPlastic, first.Features.Material)
	assert.Equal(t, model.TransportSea, first.Features.TransportMode)
	assert.Equal(t, "CN", first.Features.OriginCountry)
	assert.InDelta(t, 2.0, first.Features.WeightKg, 1e-9)
	assert.Equal(t, model.PackagingCardboardBox, first.Features.Packaging)
	assert.InDelta(t, 0.6, first.Features.Recyclability, 1e-9)
	assert.Equal(t, model.SizeM, first.Features.SizeCategory)
	assert.Equal(t, 1, first.Features.PackSize)
	assert.Equal(t, model.QualityStandard, first.Features.Quality)
	assert.InDelta(t, 8.5, first.CO2eKg, 1e-9)

	assert.Equal(t, 6, samples[1].Features.PackSize)
}

func TestLoadCSV_RowsEncode(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		corpusHeader,
		"Plastic,SEA,cn,2.0,Cardboard_Box,0.6,M,1,Standard,8.5",
	)

	samples, err := LoadCSV(path)
	require.NoError(t, err)

	// Loader normalization must line up with the encoding tables.
	enc := feature.NewEncoder()
	v, err := enc.Encode(samples[0].Features)
	require.NoError(t, err)
	assert.False(t, v.LowConfidence)
}

func TestLoadCSV_HeaderOrderIrrelevant(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"co2e_kg,material,weight_kg,transport_mode,origin_country,packaging,recyclability,size_category,pack_size,quality",
		"8.5,plastic,2.0,sea,CN,none,0.5,m,1,budget",
	)

	samples, err := LoadCSV(path)
	require.NoError(t, err)
	assert.InDelta(t, 8.5, samples[0].CO2eKg, 1e-9)
	assert.InDelta(t, 2.0, samples[0].Features.WeightKg, 1e-9)
}

func TestLoadCSV_MissingColumns(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"material,weight_kg",
		"plastic,2.0",
	)

	_, err := LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport_mode")
	assert.Contains(t, err.Error(), "co2e_kg")
}

func TestLoadCSV_BadRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		row  string
		want string
	}{
		{name: "weight not numeric", row: "plastic,sea,CN,heavy,none,0.5,m,1,standard,8.5", want: "weight_kg"},
		{name: "pack size not integer", row: "plastic,sea,CN,2.0,none,0.5,m,1.5,standard,8.5", want: "pack_size"},
		{name: "label zero", row: "plastic,sea,CN,2.0,none,0.5,m,1,standard,0", want: "co2e_kg must be positive"},
		{name: "label negative", row: "plastic,sea,CN,2.0,none,0.5,m,1,standard,-3", want: "co2e_kg must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeCSV(t, corpusHeader, tt.row)
			_, err := LoadCSV(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "row 2")
		})
	}
}

func TestLoadCSV_EmptyFile(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(writeCSV(t, corpusHeader))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestLoadCSV_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestLoadProductsCSV(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"material,transport_mode,origin_country,weight_kg,packaging,recyclability,size_category,pack_size,quality",
		"plastic,sea,CN,2.0,cardboard_box,0.6,m,1,standard",
		"glass,rail,DE,1.2,none,0.9,s,6,premium",
	)

	products, err := LoadProductsCSV(path)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, model.MaterialPlastic, products[0].Material)
	assert.Equal(t, "DE", products[1].OriginCountry)
}

func TestLoadProductsCSV_LabelColumnIgnored(t *testing.T) {
	t.Parallel()

	// A labeled corpus is also a valid batch input.
	path := writeCSV(t,
		corpusHeader,
		"plastic,sea,CN,2.0,cardboard_box,0.6,m,1,standard,8.5",
	)

	products, err := LoadProductsCSV(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.InDelta(t, 2.0, products[0].WeightKg, 1e-9)
}

func TestLoadProductsCSV_MissingColumns(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"material,weight_kg",
		"plastic,2.0",
	)

	_, err := LoadProductsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport_mode")
	assert.NotContains(t, err.Error(), "co2e_kg")
}

func TestLoadProductsCSV_BadRow(t *testing.T) {
	t.Parallel()

	path := writeCSV(t,
		"material,transport_mode,origin_country,weight_kg,packaging,recyclability,size_category,pack_size,quality",
		"plastic,sea,CN,2.0,cardboard_box,0.6,m,1,standard",
		"plastic,teleport,CN,2.0,cardboard_box,0.6,m,1,standard",
	)

	_, err := LoadProductsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "transport_mode")
}

func TestReadProductsCSV_Empty(t *testing.T) {
	t.Parallel()

	_, err := ReadProductsCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty csv")

	header := "material,transport_mode,origin_country,weight_kg,packaging,recyclability,size_category,pack_size,quality\n"
	_, err = ReadProductsCSV(strings.NewReader(header))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "corpus.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func corpusRows() [][]string {
	return [][]string{
		strings.Split(corpusHeader, ","),
		{"plastic", "sea", "CN", "2.0", "cardboard_box", "0.6", "m", "1", "standard", "8.5"},
		{"aluminum", "air", "VN", "0.3", "plastic_film", "0.4", "xs", "12", "budget", "4.9"},
	}
}

func TestLoadXLSX(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, map[string][][]string{"corpus": corpusRows()})

	samples, err := LoadXLSX(path, "")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, model.MaterialAluminum, samples[1].Features.Material)
	assert.Equal(t, 12, samples[1].Features.PackSize)
}

func TestLoadXLSX_NamedSheet(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, map[string][][]string{
		"corpus": corpusRows(),
	})

	samples, err := LoadXLSX(path, "corpus")
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	_, err = LoadXLSX(path, "missing")
	require.Error(t, err)
}

func TestLoadXLSX_BlankRowsSkipped(t *testing.T) {
	t.Parallel()

	rows := corpusRows()
	rows = append(rows, []string{"", "", ""})
	path := createTestXLSX(t, map[string][][]string{"corpus": rows})

	samples, err := LoadXLSX(path, "")
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}
