package feature

import (
	"sort"

	"github.com/greenshelf/ecoscore/internal/geo"
	"github.com/greenshelf/ecoscore/internal/model"
)

// SchemeVersion identifies the encoding tables compiled into this build.
// Any table change requires a new version; predictor artifacts record the
// scheme they were trained against.
const SchemeVersion = "enc-v1"

// Scheme is one versioned set of encoding tables. Encoders bind exactly one
// scheme; nothing consults ambient table state.
type Scheme struct {
	version string
	names   []string

	materials map[model.Material]int
	transport map[model.TransportMode]int
	packaging map[model.Packaging]int
	sizes     map[model.SizeCategory]int
	quality   map[model.QualityLevel]int
	origins   map[string]int

	materialByCode  map[int]model.Material
	transportByCode map[int]model.TransportMode
	packagingByCode map[int]model.Packaging
	sizeByCode      map[int]model.SizeCategory
	qualityByRank   map[int]model.QualityLevel
	originByCode    map[int]string
}

// SchemeV1 builds the v1 encoding scheme. Origin codes come from the
// centroid registry's sorted code list, so origin encoding and distance
// lookups cannot drift apart within a version.
func SchemeV1() *Scheme {
	s := &Scheme{
		version: SchemeVersion,
		names: []string{
			"material_code",
			"transport_code",
			"origin_code",
			"weight_log",
			"packaging_code",
			"recyclability",
			"size_code",
			"pack_size",
			"quality_rank",
		},
		materials: map[model.Material]int{
			model.MaterialPlastic:   0,
			model.MaterialGlass:     1,
			model.MaterialAluminum:  2,
			model.MaterialSteel:     3,
			model.MaterialPaper:     4,
			model.MaterialCardboard: 5,
			model.MaterialCotton:    6,
			model.MaterialPolyester: 7,
			model.MaterialWood:      8,
			model.MaterialCeramic:   9,
			model.MaterialLeather:   10,
			model.MaterialRubber:    11,
		},
		transport: map[model.TransportMode]int{
			model.TransportSea:  0,
			model.TransportAir:  1,
			model.TransportRail: 2,
			model.TransportRoad: 3,
		},
		packaging: map[model.Packaging]int{
			model.PackagingNone:         0,
			model.PackagingPaper:        1,
			model.PackagingCardboardBox: 2,
			model.PackagingPlasticFilm:  3,
			model.PackagingPlasticRigid: 4,
			model.PackagingGlassJar:     5,
			model.PackagingMetalCan:     6,
			model.PackagingComposite:    7,
		},
		sizes: map[model.SizeCategory]int{
			model.SizeXS: 0,
			model.SizeS:  1,
			model.SizeM:  2,
			model.SizeL:  3,
			model.SizeXL: 4,
		},
		// Rank order is part of the scheme: budget < standard < premium.
		quality: map[model.QualityLevel]int{
			model.QualityBudget:   0,
			model.QualityStandard: 1,
			model.QualityPremium:  2,
		},
		origins: buildOriginCodes(),
	}

	s.materialByCode = reverseTable(s.materials)
	s.transportByCode = reverseTable(s.transport)
	s.packagingByCode = reverseTable(s.packaging)
	s.sizeByCode = reverseTable(s.sizes)
	s.qualityByRank = reverseTable(s.quality)
	s.originByCode = reverseTable(s.origins)
	return s
}

func buildOriginCodes() map[string]int {
	codes := geo.Countries()
	sort.Strings(codes)
	out := make(map[string]int, len(codes))
	for i, c := range codes {
		out[c] = i
	}
	return out
}

func reverseTable[K comparable](forward map[K]int) map[int]K {
	out := make(map[int]K, len(forward))
	for k, v := range forward {
		out[v] = k
	}
	return out
}

// unknownCode returns the reserved bucket for values absent from a table.
func unknownCode[K comparable](table map[K]int) int {
	return len(table)
}

// Version returns the scheme identifier.
func (s *Scheme) Version() string {
	return s.version
}

// FeatureNames returns the feature order vectors carry under this scheme.
func (s *Scheme) FeatureNames() []string {
	return append([]string(nil), s.names...)
}
