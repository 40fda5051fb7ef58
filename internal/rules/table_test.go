package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/greenshelf/ecoscore/internal/model"
)

func TestDefaultTable_Valid(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateTable(DefaultTable()))
}

func TestDefaultTable_ShippedIntensities(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	assert.InDelta(t, 19, table.TransportIntensity[model.TransportSea], 1e-9)
	assert.InDelta(t, 1054, table.TransportIntensity[model.TransportAir], 1e-9)
	assert.InDelta(t, 48, table.TransportIntensity[model.TransportRail], 1e-9)
	assert.InDelta(t, 104, table.TransportIntensity[model.TransportRoad], 1e-9)
	assert.InDelta(t, 4.1, table.MaterialIntensity[model.MaterialPlastic], 1e-9)
}

func TestValidateTable_CollectsProblems(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	table.Version = ""
	delete(table.MaterialIntensity, model.MaterialGlass)
	table.TransportIntensity[model.TransportAir] = -1
	table.Bands = []Band{{Name: "only", UpperKg: 0}}

	err := ValidateTable(table)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "version is required")
	assert.Contains(t, cfgErr.Error(), "material_intensity missing glass")
	assert.Contains(t, cfgErr.Error(), "transport_intensity for air must be > 0")
	assert.Contains(t, cfgErr.Error(), "at least two bands")
}

func TestValidateTable_BandOrdering(t *testing.T) {
	t.Parallel()

	table := DefaultTable()
	table.Bands = []Band{
		{Name: "low", UpperKg: 10},
		{Name: "lower", UpperKg: 2},
		{Name: "rest", UpperKg: 0},
	}

	err := ValidateTable(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "band edges must ascend")
}

func TestBandFor(t *testing.T) {
	t.Parallel()

	table := DefaultTable()

	tests := []struct {
		name string
		kg   float64
		want string
	}{
		{name: "tiny accessory", kg: 0.1, want: "very_low"},
		{name: "edge is exclusive", kg: 0.5, want: "low"},
		{name: "apparel", kg: 5.0, want: "medium"},
		{name: "appliance", kg: 30.0, want: "high"},
		{name: "furniture", kg: 200.0, want: "very_high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.BandFor(tt.kg))
		})
	}
}

func TestLoadTable_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "coefficients.yaml")

	data, err := yaml.Marshal(DefaultTable())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "coef-v1", table.Version)
	assert.InDelta(t, 1054, table.TransportIntensity[model.TransportAir], 1e-9)
	assert.Len(t, table.Bands, 5)
}

func TestLoadTable_InvalidFileFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "coefficients.yaml")

	broken := DefaultTable()
	broken.TransportIntensity = map[model.TransportMode]float64{}
	data, err := yaml.Marshal(broken)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = LoadTable(path)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadTable_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
