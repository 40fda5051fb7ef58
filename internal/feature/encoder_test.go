package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenshelf/ecoscore/internal/geo"
	"github.com/greenshelf/ecoscore/internal/model"
)

func validProduct() model.ProductFeatures {
	return model.ProductFeatures{
		Material:      model.MaterialPlastic,
		TransportMode: model.TransportSea,
		OriginCountry: "CN",
		WeightKg:      2.0,
		Packaging:     model.PackagingCardboardBox,
		Recyclability: 0.6,
		SizeCategory:  model.SizeM,
		PackSize:      1,
		Quality:       model.QualityStandard,
	}
}

func TestEncode_Vector(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	v, err := enc.Encode(validProduct())
	require.NoError(t, err)

	assert.Equal(t, SchemeVersion, v.SchemeVersion)
	require.Len(t, v.Values, len(enc.FeatureNames()))
	assert.False(t, v.LowConfidence)
	assert.Empty(t, v.UnknownFields)

	// weight_log is ln(1 + weight).
	assert.InDelta(t, math.Log1p(2.0), v.Values[3], 1e-9)
	// recyclability and pack size pass through.
	assert.InDelta(t, 0.6, v.Values[5], 1e-9)
	assert.InDelta(t, 1.0, v.Values[7], 1e-9)
}

func TestEncode_Deterministic(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	p := validProduct()

	first, err := enc.Encode(p)
	require.NoError(t, err)
	second, err := enc.Encode(p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncode_MissingRequiredFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.ProductFeatures)
		field  string
	}{
		{name: "no material", mutate: func(p *model.ProductFeatures) { p.Material = "" }, field: "material"},
		{name: "no transport mode", mutate: func(p *model.ProductFeatures) { p.TransportMode = "" }, field: "transport_mode"},
		{name: "no origin", mutate: func(p *model.ProductFeatures) { p.OriginCountry = "  " }, field: "origin_country"},
		{name: "zero weight", mutate: func(p *model.ProductFeatures) { p.WeightKg = 0 }, field: "weight_kg"},
		{name: "negative weight", mutate: func(p *model.ProductFeatures) { p.WeightKg = -1 }, field: "weight_kg"},
		{name: "no packaging", mutate: func(p *model.ProductFeatures) { p.Packaging = "" }, field: "packaging"},
		{name: "recyclability above one", mutate: func(p *model.ProductFeatures) { p.Recyclability = 1.2 }, field: "recyclability"},
		{name: "no size", mutate: func(p *model.ProductFeatures) { p.SizeCategory = "" }, field: "size_category"},
		{name: "zero pack size", mutate: func(p *model.ProductFeatures) { p.PackSize = 0 }, field: "pack_size"},
		{name: "no quality", mutate: func(p *model.ProductFeatures) { p.Quality = "" }, field: "quality"},
	}

	enc := NewEncoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProduct()
			tt.mutate(&p)

			_, err := enc.Encode(p)
			require.Error(t, err)

			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, tt.field, encErr.Field)
		})
	}
}

func TestEncode_UnknownCategoryUsesBucket(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()

	p := validProduct()
	p.Material = "unobtainium"
	v, err := enc.Encode(p)
	require.NoError(t, err)

	assert.True(t, v.LowConfidence)
	assert.Contains(t, v.UnknownFields, "material")
	assert.InDelta(t, float64(unknownCode(enc.scheme.materials)), v.Values[0], 1e-9)
	// The unknown bucket reverses to nothing.
	_, ok := enc.DecodeMaterial(int(v.Values[0]))
	assert.False(t, ok)
}

func TestEncode_UnknownOriginLowConfidence(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	p := validProduct()
	p.OriginCountry = "XK"

	v, err := enc.Encode(p)
	require.NoError(t, err)
	assert.True(t, v.LowConfidence)
	assert.Contains(t, v.UnknownFields, "origin_country")
}

func TestEncode_NormalizesOriginCase(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	p := validProduct()
	p.OriginCountry = "cn"

	v, err := enc.Encode(p)
	require.NoError(t, err)
	assert.False(t, v.LowConfidence)

	got, ok := enc.DecodeOrigin(int(v.Values[2]))
	require.True(t, ok)
	assert.Equal(t, "CN", got)
}

// Every table entry must survive an encode/decode round trip.
func TestRoundTrip_AllTables(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()

	t.Run("materials", func(t *testing.T) {
		for _, m := range []model.Material{
			model.MaterialPlastic, model.MaterialGlass, model.MaterialAluminum,
			model.MaterialSteel, model.MaterialPaper, model.MaterialCardboard,
			model.MaterialCotton, model.MaterialPolyester, model.MaterialWood,
			model.MaterialCeramic, model.MaterialLeather, model.MaterialRubber,
		} {
			p := validProduct()
			p.Material = m
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodeMaterial(int(v.Values[0]))
			require.True(t, ok, "material %s", m)
			assert.Equal(t, m, got)
		}
	})

	t.Run("transport modes", func(t *testing.T) {
		for _, tm := range []model.TransportMode{
			model.TransportSea, model.TransportAir, model.TransportRail, model.TransportRoad,
		} {
			p := validProduct()
			p.TransportMode = tm
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodeTransport(int(v.Values[1]))
			require.True(t, ok, "transport %s", tm)
			assert.Equal(t, tm, got)
		}
	})

	t.Run("origins", func(t *testing.T) {
		for _, code := range geo.Countries() {
			p := validProduct()
			p.OriginCountry = code
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodeOrigin(int(v.Values[2]))
			require.True(t, ok, "origin %s", code)
			assert.Equal(t, code, got)
		}
	})

	t.Run("packaging", func(t *testing.T) {
		for _, pk := range []model.Packaging{
			model.PackagingNone, model.PackagingPaper, model.PackagingCardboardBox,
			model.PackagingPlasticFilm, model.PackagingPlasticRigid,
			model.PackagingGlassJar, model.PackagingMetalCan, model.PackagingComposite,
		} {
			p := validProduct()
			p.Packaging = pk
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodePackaging(int(v.Values[4]))
			require.True(t, ok, "packaging %s", pk)
			assert.Equal(t, pk, got)
		}
	})

	t.Run("sizes and quality", func(t *testing.T) {
		for _, s := range []model.SizeCategory{model.SizeXS, model.SizeS, model.SizeM, model.SizeL, model.SizeXL} {
			p := validProduct()
			p.SizeCategory = s
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodeSize(int(v.Values[6]))
			require.True(t, ok)
			assert.Equal(t, s, got)
		}
		for _, q := range []model.QualityLevel{model.QualityBudget, model.QualityStandard, model.QualityPremium} {
			p := validProduct()
			p.Quality = q
			v, err := enc.Encode(p)
			require.NoError(t, err)
			got, ok := enc.DecodeQuality(int(v.Values[8]))
			require.True(t, ok)
			assert.Equal(t, q, got)
		}
	})
}

// Quality ranks are ordinal; the encoding must preserve the band order.
func TestQualityRankOrdering(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	ranks := make(map[model.QualityLevel]float64, 3)
	for _, q := range []model.QualityLevel{model.QualityBudget, model.QualityStandard, model.QualityPremium} {
		p := validProduct()
		p.Quality = q
		v, err := enc.Encode(p)
		require.NoError(t, err)
		ranks[q] = v.Values[8]
	}
	assert.Less(t, ranks[model.QualityBudget], ranks[model.QualityStandard])
	assert.Less(t, ranks[model.QualityStandard], ranks[model.QualityPremium])
}
