package rules

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greenshelf/ecoscore/internal/geo"
	"github.com/greenshelf/ecoscore/internal/model"
)

// Calculator computes rule-based CO2e estimates. It binds one coefficient
// table and one destination market; identical input against the same table
// always yields the identical estimate.
type Calculator struct {
	table CoefficientTable
	dest  string
}

// NewCalculator validates the table and destination and returns a bound
// calculator.
func NewCalculator(table CoefficientTable, destCountry string) (*Calculator, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if _, ok := geo.LookupCentroid(destCountry); !ok {
		return nil, &ConfigurationError{
			Version:  table.Version,
			Problems: []string{"destination country " + destCountry + " has no centroid"},
		}
	}
	return &Calculator{table: table, dest: destCountry}, nil
}

// Table returns the bound coefficient table.
func (c *Calculator) Table() CoefficientTable {
	return c.table
}

// Calculate computes the rule-based estimate for one product:
//
//	co2e = material_intensity * weight
//	     + transport_intensity * tonne_km
//	     + packaging_adjustment
//
// Unknown categories use the table's documented fallback rows; the result is
// still deterministic and every term appears in the breakdown.
func (c *Calculator) Calculate(p model.ProductFeatures) (model.RuleEstimate, error) {
	if p.WeightKg <= 0 || math.IsNaN(p.WeightKg) || math.IsInf(p.WeightKg, 0) {
		return model.RuleEstimate{}, eris.Errorf("rules: weight %.3f must be a positive finite kg value", p.WeightKg)
	}

	materialIntensity, ok := c.table.MaterialIntensity[p.Material]
	if !ok {
		materialIntensity = c.table.UnknownMaterialIntensity
	}
	materialKg := materialIntensity * p.WeightKg

	transportIntensity, ok := c.table.TransportIntensity[p.TransportMode]
	if !ok {
		transportIntensity = c.table.UnknownTransportIntensity
	}
	distanceKM, err := geo.CountryDistanceKM(p.NormalizedOrigin(), c.dest)
	if err != nil {
		distanceKM = c.table.UnknownOriginDistanceKM
	}
	transportKg := transportTermKg(transportIntensity, p.WeightKg, distanceKM)

	packagingKg, ok := c.table.PackagingAdjustment[p.Packaging]
	if !ok {
		packagingKg = c.table.UnknownPackagingKg
	}

	total := materialKg + transportKg + packagingKg

	zap.L().Debug("rules: estimate computed",
		zap.String("material", string(p.Material)),
		zap.String("transport_mode", string(p.TransportMode)),
		zap.String("origin", p.NormalizedOrigin()),
		zap.Float64("distance_km", distanceKM),
		zap.Float64("co2e_kg", total),
	)

	return model.RuleEstimate{
		CO2eKg: total,
		Breakdown: map[string]float64{
			"material":  materialKg,
			"transport": transportKg,
			"packaging": packagingKg,
		},
		TableVersion: c.table.Version,
	}, nil
}

// transportTermKg converts a g/tonne-km intensity into kg for a product leg.
// Weight arrives in kg (1e-3 tonnes) and the intensity in grams (1e-3 kg),
// so the combined divisor is 1e6.
func transportTermKg(intensityGPerTonneKM, weightKg, distanceKM float64) float64 {
	return intensityGPerTonneKM * weightKg * distanceKM / 1e6
}
