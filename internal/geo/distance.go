// Package geo resolves origin countries to centroids and computes
// great-circle distances for transport legs.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

const earthRadiusKM = 6371.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// HaversineKM returns the great-circle distance in kilometers between two
// points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// CountryDistanceKM returns the centroid-to-centroid great-circle distance
// between two ISO 3166-1 alpha-2 country codes. Same-country legs are zero.
func CountryDistanceKM(origin, dest string) (float64, error) {
	if origin == dest {
		return 0, nil
	}
	from, ok := LookupCentroid(origin)
	if !ok {
		return 0, eris.Errorf("geo: unknown origin country %q", origin)
	}
	to, ok := LookupCentroid(dest)
	if !ok {
		return 0, eris.Errorf("geo: unknown destination country %q", dest)
	}
	return HaversineKM(from.Lat, from.Lon, to.Lat, to.Lon), nil
}
