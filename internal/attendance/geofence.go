package attendance

import (
	"fmt"
	"math"

	"github.com/kozaktomas/facegate/internal/database"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// HaversineDistance returns the great-circle distance in meters between two points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, a)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidateCoordinates checks that a reported point is finite and in range.
func ValidateCoordinates(lat, lon float64) error {
	if !finite(lat) || !finite(lon) {
		return fmt.Errorf("%w: non-finite value (%v, %v)", ErrInvalidCoordinates, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinates, lon)
	}
	return nil
}

// ValidateLocation returns the closest active site whose radius contains the point,
// together with the distance to its center. No containing site yields a nil site and
// a nil error; the caller records the event as an invalid location.
func ValidateLocation(lat, lon float64, sites []database.Site) (*database.Site, float64, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, 0, err
	}

	var best *database.Site
	bestDistance := math.Inf(1)
	for i := range sites {
		s := sites[i]
		if !s.Active || s.RadiusMeters <= 0 {
			continue
		}
		d := HaversineDistance(lat, lon, s.Latitude, s.Longitude)
		if d <= s.RadiusMeters && d < bestDistance {
			best = &s
			bestDistance = d
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestDistance, nil
}
