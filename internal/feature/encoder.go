// Package feature turns product attributes into the fixed-order numeric
// vectors both estimators consume.
package feature

import (
	"fmt"
	"math"

	"github.com/greenshelf/ecoscore/internal/model"
)

// EncodedVector is the numeric form of one product.
type EncodedVector struct {
	SchemeVersion string    `json:"scheme_version"`
	Values        []float64 `json:"values"`
	LowConfidence bool      `json:"low_confidence"`
	UnknownFields []string  `json:"unknown_fields,omitempty"`
}

// EncodingError reports a product field that cannot be encoded. Requests
// carrying one fail outright; there is no fallback for a missing required
// field.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("feature: cannot encode field %q: %s", e.Field, e.Reason)
}

// Encoder maps ProductFeatures onto one versioned encoding scheme. It is
// stateless beyond the bound scheme and safe for concurrent use.
type Encoder struct {
	scheme *Scheme
}

// NewEncoder returns an encoder bound to the current scheme.
func NewEncoder() *Encoder {
	return &Encoder{scheme: SchemeV1()}
}

// SchemeVersion returns the encoding scheme this encoder emits.
func (e *Encoder) SchemeVersion() string {
	return e.scheme.Version()
}

// FeatureNames returns the feature order of emitted vectors. Predictor
// artifacts must declare the identical order; the reconciler refuses to run
// a model trained against anything else.
func (e *Encoder) FeatureNames() []string {
	return e.scheme.FeatureNames()
}

// Encode converts product attributes into an EncodedVector. Missing required
// fields return an EncodingError naming the field. Category values present
// but absent from the scheme tables map to the reserved unknown bucket and
// mark the vector low-confidence.
func (e *Encoder) Encode(p model.ProductFeatures) (EncodedVector, error) {
	var unknown []string
	s := e.scheme

	if p.Material == "" {
		return EncodedVector{}, &EncodingError{Field: "material", Reason: "required field is empty"}
	}
	materialCode, ok := s.materials[p.Material]
	if !ok {
		materialCode = unknownCode(s.materials)
		unknown = append(unknown, "material")
	}

	if p.TransportMode == "" {
		return EncodedVector{}, &EncodingError{Field: "transport_mode", Reason: "required field is empty"}
	}
	transportCode, ok := s.transport[p.TransportMode]
	if !ok {
		transportCode = unknownCode(s.transport)
		unknown = append(unknown, "transport_mode")
	}

	origin := p.NormalizedOrigin()
	if origin == "" {
		return EncodedVector{}, &EncodingError{Field: "origin_country", Reason: "required field is empty"}
	}
	originCode, ok := s.origins[origin]
	if !ok {
		originCode = unknownCode(s.origins)
		unknown = append(unknown, "origin_country")
	}

	if p.WeightKg <= 0 {
		return EncodedVector{}, &EncodingError{Field: "weight_kg", Reason: "must be > 0"}
	}
	if math.IsNaN(p.WeightKg) || math.IsInf(p.WeightKg, 0) {
		return EncodedVector{}, &EncodingError{Field: "weight_kg", Reason: "must be finite"}
	}

	if p.Packaging == "" {
		return EncodedVector{}, &EncodingError{Field: "packaging", Reason: "required field is empty"}
	}
	packagingCode, ok := s.packaging[p.Packaging]
	if !ok {
		packagingCode = unknownCode(s.packaging)
		unknown = append(unknown, "packaging")
	}

	if p.Recyclability < 0 || p.Recyclability > 1 {
		return EncodedVector{}, &EncodingError{Field: "recyclability", Reason: "must be in [0, 1]"}
	}

	if p.SizeCategory == "" {
		return EncodedVector{}, &EncodingError{Field: "size_category", Reason: "required field is empty"}
	}
	sizeCode, ok := s.sizes[p.SizeCategory]
	if !ok {
		sizeCode = unknownCode(s.sizes)
		unknown = append(unknown, "size_category")
	}

	if p.PackSize < 1 {
		return EncodedVector{}, &EncodingError{Field: "pack_size", Reason: "must be >= 1"}
	}

	if p.Quality == "" {
		return EncodedVector{}, &EncodingError{Field: "quality", Reason: "required field is empty"}
	}
	qualityRank, ok := s.quality[p.Quality]
	if !ok {
		qualityRank = unknownCode(s.quality)
		unknown = append(unknown, "quality")
	}

	// Log-compress weight so a 20kg appliance and a 20g accessory share a
	// usable scale.
	weightLog := math.Log1p(p.WeightKg)

	return EncodedVector{
		SchemeVersion: s.Version(),
		Values: []float64{
			float64(materialCode),
			float64(transportCode),
			float64(originCode),
			weightLog,
			float64(packagingCode),
			p.Recyclability,
			float64(sizeCode),
			float64(p.PackSize),
			float64(qualityRank),
		},
		LowConfidence: len(unknown) > 0,
		UnknownFields: unknown,
	}, nil
}

// DecodeMaterial reverses a material code. The bool is false for the unknown
// bucket or an out-of-table code.
func (e *Encoder) DecodeMaterial(code int) (model.Material, bool) {
	m, ok := e.scheme.materialByCode[code]
	return m, ok
}

// DecodeTransport reverses a transport mode code.
func (e *Encoder) DecodeTransport(code int) (model.TransportMode, bool) {
	m, ok := e.scheme.transportByCode[code]
	return m, ok
}

// DecodeOrigin reverses an origin country code.
func (e *Encoder) DecodeOrigin(code int) (string, bool) {
	c, ok := e.scheme.originByCode[code]
	return c, ok
}

// DecodePackaging reverses a packaging code.
func (e *Encoder) DecodePackaging(code int) (model.Packaging, bool) {
	p, ok := e.scheme.packagingByCode[code]
	return p, ok
}

// DecodeSize reverses a size category code.
func (e *Encoder) DecodeSize(code int) (model.SizeCategory, bool) {
	s, ok := e.scheme.sizeByCode[code]
	return s, ok
}

// DecodeQuality reverses an ordinal quality rank.
func (e *Encoder) DecodeQuality(rank int) (model.QualityLevel, bool) {
	q, ok := e.scheme.qualityByRank[rank]
	return q, ok
}
