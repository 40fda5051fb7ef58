package geo

import "sort"

// countryCentroids maps ISO 3166-1 alpha-2 codes to geographic centroids in
// decimal degrees. Values are land centroids, not trade-weighted port
// positions; centroid-to-centroid distance is a deliberate simplification of
// the transport leg.
var countryCentroids = map[string]Point{
	"AE": {23.9, 54.3},
	"AR": {-34.0, -64.0},
	"AT": {47.6, 14.1},
	"AU": {-25.7, 134.5},
	"BD": {23.9, 90.2},
	"BE": {50.6, 4.7},
	"BG": {42.8, 25.2},
	"BR": {-10.8, -53.1},
	"CA": {56.1, -106.3},
	"CH": {46.8, 8.2},
	"CL": {-35.7, -71.5},
	"CN": {35.9, 104.2},
	"CO": {3.9, -73.1},
	"CZ": {49.8, 15.5},
	"DE": {51.2, 10.4},
	"DK": {56.0, 9.5},
	"EC": {-1.4, -78.8},
	"EG": {26.6, 29.9},
	"ES": {40.2, -3.6},
	"ET": {8.6, 39.6},
	"FI": {64.5, 26.0},
	"FR": {46.6, 2.5},
	"GB": {54.0, -2.5},
	"GH": {7.9, -1.2},
	"GR": {39.1, 22.9},
	"HR": {45.1, 16.4},
	"HU": {47.2, 19.4},
	"ID": {-2.2, 117.4},
	"IE": {53.4, -8.0},
	"IL": {31.4, 35.0},
	"IN": {22.9, 79.6},
	"IT": {42.8, 12.8},
	"JO": {31.3, 36.8},
	"JP": {36.5, 138.0},
	"KE": {0.5, 37.9},
	"KH": {12.7, 104.9},
	"KR": {36.4, 127.8},
	"LB": {33.9, 35.9},
	"LK": {7.6, 80.7},
	"MA": {31.9, -6.9},
	"MM": {21.2, 96.5},
	"MX": {23.9, -102.5},
	"MY": {4.1, 109.5},
	"NG": {9.6, 8.1},
	"NL": {52.2, 5.3},
	"NO": {64.5, 11.5},
	"NZ": {-41.8, 172.8},
	"PE": {-9.2, -74.4},
	"PH": {12.9, 122.9},
	"PK": {30.0, 69.3},
	"PL": {52.1, 19.4},
	"PT": {39.6, -8.0},
	"QA": {25.3, 51.2},
	"RO": {45.9, 25.0},
	"RS": {44.2, 20.8},
	"RU": {61.5, 99.7},
	"SA": {24.1, 44.5},
	"SE": {62.8, 16.7},
	"SI": {46.1, 14.8},
	"SK": {48.7, 19.7},
	"TH": {15.1, 101.0},
	"TN": {34.1, 9.6},
	"TR": {39.0, 35.3},
	"TW": {23.7, 121.0},
	"UA": {49.0, 31.4},
	"US": {39.8, -98.6},
	"VN": {16.6, 106.3},
	"ZA": {-29.0, 25.1},
}

// LookupCentroid returns the centroid for an ISO country code.
func LookupCentroid(code string) (Point, bool) {
	p, ok := countryCentroids[code]
	return p, ok
}

// Countries returns all known country codes in sorted order.
func Countries() []string {
	codes := make([]string, 0, len(countryCentroids))
	for code := range countryCentroids {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
