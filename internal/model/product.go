package model

import "strings"

// Material identifies the dominant material of a product.
type Material string

const (
	MaterialPlastic   Material = "plastic"
	MaterialGlass     Material = "glass"
	MaterialAluminum  Material = "aluminum"
	MaterialSteel     Material = "steel"
	MaterialPaper     Material = "paper"
	MaterialCardboard Material = "cardboard"
	MaterialCotton    Material = "cotton"
	MaterialPolyester Material = "polyester"
	MaterialWood      Material = "wood"
	MaterialCeramic   Material = "ceramic"
	MaterialLeather   Material = "leather"
	MaterialRubber    Material = "rubber"
)

// TransportMode identifies how a product traveled from origin to market.
type TransportMode string

const (
	TransportSea  TransportMode = "sea"
	TransportAir  TransportMode = "air"
	TransportRail TransportMode = "rail"
	TransportRoad TransportMode = "road"
)

// Packaging identifies the retail packaging of a product.
type Packaging string

const (
	PackagingNone         Packaging = "none"
	PackagingPaper        Packaging = "paper_wrap"
	PackagingCardboardBox Packaging = "cardboard_box"
	PackagingPlasticFilm  Packaging = "plastic_film"
	PackagingPlasticRigid Packaging = "plastic_rigid"
	PackagingGlassJar     Packaging = "glass_jar"
	PackagingMetalCan     Packaging = "metal_can"
	PackagingComposite    Packaging = "composite"
)

// SizeCategory buckets products by physical size.
type SizeCategory string

const (
	SizeXS SizeCategory = "xs"
	SizeS  SizeCategory = "s"
	SizeM  SizeCategory = "m"
	SizeL  SizeCategory = "l"
	SizeXL SizeCategory = "xl"
)

// QualityLevel is an ordinal quality band. Ordering matters for encoding:
// budget < standard < premium.
type QualityLevel string

const (
	QualityBudget   QualityLevel = "budget"
	QualityStandard QualityLevel = "standard"
	QualityPremium  QualityLevel = "premium"
)

// ProductFeatures is the immutable input to both estimators. Categorical
// fields must resolve against the active encoding tables; numeric fields are
// range-checked at encode time.
type ProductFeatures struct {
	Material      Material      `json:"material"`
	TransportMode TransportMode `json:"transport_mode"`
	OriginCountry string        `json:"origin_country"` // ISO 3166-1 alpha-2
	WeightKg      float64       `json:"weight_kg"`
	Packaging     Packaging     `json:"packaging"`
	Recyclability float64       `json:"recyclability"` // fraction in [0,1]
	SizeCategory  SizeCategory  `json:"size_category"`
	PackSize      int           `json:"pack_size"`
	Quality       QualityLevel  `json:"quality"`
}

// NormalizedOrigin returns the origin country code upper-cased and trimmed,
// the form the centroid registry and encoding tables are keyed by.
func (p ProductFeatures) NormalizedOrigin() string {
	return strings.ToUpper(strings.TrimSpace(p.OriginCountry))
}
