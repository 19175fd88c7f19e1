package match

import (
	"math"

	"github.com/example/lifelink/internal/donor/domain"
)

const earthRadiusKM = 6371.0

// DistanceKM returns the Haversine great-circle distance between two points
// in kilometres, unrounded. This is the canonical distance for the whole
// service; storage-level geo searches only pre-narrow candidates and their
// distances are discarded.
func DistanceKM(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlng := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlng := math.Sin(dlng / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlng*sinDlng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// roundKM rounds to one decimal for presentation on match results.
func roundKM(km float64) float64 {
	return math.Round(km*10) / 10
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
