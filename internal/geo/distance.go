// Package geo provides the great-circle distance primitive used by
// alternative-pharmacy ranking and cart dispersion checks.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371.0

// Distance computes the Haversine distance in kilometers between two
// coordinate pairs given in degrees, rounded to 2 decimal places.
// The second return value is false when either coordinate is missing;
// callers must treat that as "distance unknown", not zero.
func Distance(lat1, lon1, lat2, lon2 *float64) (float64, bool) {
	if lat1 == nil || lon1 == nil || lat2 == nil || lon2 == nil {
		return 0, false
	}

	la1 := radians(*lat1)
	lo1 := radians(*lon1)
	la2 := radians(*lat2)
	lo2 := radians(*lon2)

	dLat := la2 - la1
	dLon := lo2 - lo1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return round2(earthRadiusKm * c), true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ptr is a convenience for building optional coordinates.
func Ptr(v float64) *float64 { return &v }
