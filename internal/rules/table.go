// Package rules implements the rule-based CO2e calculator: a transparent
// physical model driven entirely by a versioned coefficient table.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/greenshelf/ecoscore/internal/model"
)

// ConfigurationError reports a coefficient table that cannot be used. It is
// fatal at startup; the calculator never runs on a partial table.
type ConfigurationError struct {
	Version  string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rules: coefficient table %q invalid: %s", e.Version, strings.Join(e.Problems, "; "))
}

// Band maps a CO2e range to a classification label. Bands are part of the
// table so label edges version with the physics, not the code.
type Band struct {
	Name    string  `yaml:"name" json:"name"`
	UpperKg float64 `yaml:"upper_kg" json:"upper_kg"` // exclusive; <= 0 means unbounded
}

// CoefficientTable holds every tunable of the calculator.
//
// Material intensities are cradle-to-gate kgCO2e per kg of material.
// Transport intensities are gCO2e per tonne-kilometer. Packaging adjustments
// are flat kgCO2e per retail unit. The unknown_* entries are the documented
// fallbacks applied when the encoder bucketed a category as unknown.
type CoefficientTable struct {
	Version string `yaml:"version" json:"version"`

	MaterialIntensity   map[model.Material]float64      `yaml:"material_intensity" json:"material_intensity"`
	TransportIntensity  map[model.TransportMode]float64 `yaml:"transport_intensity" json:"transport_intensity"`
	PackagingAdjustment map[model.Packaging]float64     `yaml:"packaging_adjustment" json:"packaging_adjustment"`

	UnknownMaterialIntensity  float64 `yaml:"unknown_material_intensity" json:"unknown_material_intensity"`
	UnknownTransportIntensity float64 `yaml:"unknown_transport_intensity" json:"unknown_transport_intensity"`
	UnknownPackagingKg        float64 `yaml:"unknown_packaging_kg" json:"unknown_packaging_kg"`
	UnknownOriginDistanceKM   float64 `yaml:"unknown_origin_distance_km" json:"unknown_origin_distance_km"`

	Bands []Band `yaml:"bands" json:"bands"`
}

// DefaultTable returns the shipped coefficient table.
func DefaultTable() CoefficientTable {
	return CoefficientTable{
		Version: "coef-v1",

		// kgCO2e per kg, cradle-to-gate production averages.
		MaterialIntensity: map[model.Material]float64{
			model.MaterialPlastic:   4.1,
			model.MaterialGlass:     1.4,
			model.MaterialAluminum:  11.0, // primary smelting dominated
			model.MaterialSteel:     2.0,
			model.MaterialPaper:     1.1,
			model.MaterialCardboard: 0.8,
			model.MaterialCotton:    8.3, // irrigation and ginning heavy
			model.MaterialPolyester: 9.5,
			model.MaterialWood:      0.46,
			model.MaterialCeramic:   1.2,
			model.MaterialLeather:   17.0, // upstream livestock burden
			model.MaterialRubber:    3.2,
		},

		// gCO2e per tonne-kilometer, long-haul freight averages.
		TransportIntensity: map[model.TransportMode]float64{
			model.TransportSea:  19,
			model.TransportAir:  1054,
			model.TransportRail: 48,
			model.TransportRoad: 104,
		},

		// kgCO2e per retail unit.
		PackagingAdjustment: map[model.Packaging]float64{
			model.PackagingNone:         0,
			model.PackagingPaper:        0.02,
			model.PackagingCardboardBox: 0.08,
			model.PackagingPlasticFilm:  0.04,
			model.PackagingPlasticRigid: 0.25,
			model.PackagingGlassJar:     0.45,
			model.PackagingMetalCan:     0.30,
			model.PackagingComposite:    0.20,
		},

		UnknownMaterialIntensity:  3.0,  // mid-table stand-in
		UnknownTransportIntensity: 104,  // assume road, the common default leg
		UnknownPackagingKg:        0.15,
		UnknownOriginDistanceKM:   9000, // conservative long-haul assumption

		Bands: []Band{
			{Name: "very_low", UpperKg: 0.5},
			{Name: "low", UpperKg: 2.0},
			{Name: "medium", UpperKg: 10.0},
			{Name: "high", UpperKg: 50.0},
			{Name: "very_high", UpperKg: 0},
		},
	}
}

// LoadTable reads a coefficient table from a YAML file and validates it.
func LoadTable(path string) (CoefficientTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CoefficientTable{}, eris.Wrap(err, "rules: read coefficient table")
	}

	var table CoefficientTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return CoefficientTable{}, eris.Wrap(err, "rules: parse coefficient table")
	}

	if err := ValidateTable(table); err != nil {
		return CoefficientTable{}, err
	}
	return table, nil
}

// ValidateTable checks that a coefficient table is complete and internally
// consistent.
func ValidateTable(t CoefficientTable) error {
	var errs []string

	if t.Version == "" {
		errs = append(errs, "version is required")
	}

	for _, m := range []model.Material{
		model.MaterialPlastic, model.MaterialGlass, model.MaterialAluminum,
		model.MaterialSteel, model.MaterialPaper, model.MaterialCardboard,
		model.MaterialCotton, model.MaterialPolyester, model.MaterialWood,
		model.MaterialCeramic, model.MaterialLeather, model.MaterialRubber,
	} {
		v, ok := t.MaterialIntensity[m]
		if !ok {
			errs = append(errs, fmt.Sprintf("material_intensity missing %s", m))
			continue
		}
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("material_intensity for %s must be > 0", m))
		}
	}

	for _, tm := range []model.TransportMode{
		model.TransportSea, model.TransportAir, model.TransportRail, model.TransportRoad,
	} {
		v, ok := t.TransportIntensity[tm]
		if !ok {
			errs = append(errs, fmt.Sprintf("transport_intensity missing %s", tm))
			continue
		}
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("transport_intensity for %s must be > 0", tm))
		}
	}

	for pk, v := range t.PackagingAdjustment {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("packaging_adjustment for %s must be >= 0", pk))
		}
	}
	for _, pk := range []model.Packaging{
		model.PackagingNone, model.PackagingPaper, model.PackagingCardboardBox,
		model.PackagingPlasticFilm, model.PackagingPlasticRigid,
		model.PackagingGlassJar, model.PackagingMetalCan, model.PackagingComposite,
	} {
		if _, ok := t.PackagingAdjustment[pk]; !ok {
			errs = append(errs, fmt.Sprintf("packaging_adjustment missing %s", pk))
		}
	}

	if t.UnknownMaterialIntensity <= 0 {
		errs = append(errs, "unknown_material_intensity must be > 0")
	}
	if t.UnknownTransportIntensity <= 0 {
		errs = append(errs, "unknown_transport_intensity must be > 0")
	}
	if t.UnknownPackagingKg < 0 {
		errs = append(errs, "unknown_packaging_kg must be >= 0")
	}
	if t.UnknownOriginDistanceKM <= 0 {
		errs = append(errs, "unknown_origin_distance_km must be > 0")
	}

	if len(t.Bands) < 2 {
		errs = append(errs, "at least two bands are required")
	} else {
		for i, b := range t.Bands {
			if b.Name == "" {
				errs = append(errs, fmt.Sprintf("band %d has no name", i))
			}
			last := i == len(t.Bands)-1
			if last {
				if b.UpperKg > 0 {
					errs = append(errs, "final band must be unbounded (upper_kg <= 0)")
				}
				continue
			}
			if b.UpperKg <= 0 {
				errs = append(errs, fmt.Sprintf("band %s must have upper_kg > 0", b.Name))
			}
			if i > 0 && t.Bands[i-1].UpperKg >= b.UpperKg {
				errs = append(errs, fmt.Sprintf("band edges must ascend, %s breaks the order", b.Name))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return &ConfigurationError{Version: t.Version, Problems: errs}
	}
	return nil
}

// BandFor returns the classification label for a CO2e value.
func (t CoefficientTable) BandFor(co2eKg float64) string {
	for _, b := range t.Bands {
		if b.UpperKg > 0 && co2eKg < b.UpperKg {
			return b.Name
		}
	}
	if len(t.Bands) == 0 {
		return ""
	}
	return t.Bands[len(t.Bands)-1].Name
}

// BandNames returns the table's labels in ascending CO2e order.
func (t CoefficientTable) BandNames() []string {
	names := make([]string, len(t.Bands))
	for i, b := range t.Bands {
		names[i] = b.Name
	}
	return names
}
