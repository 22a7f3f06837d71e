package attendance

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/facegate/internal/database"
)

// offsetNorth returns the latitude the given number of meters north of lat.
func offsetNorth(lat, meters float64) float64 {
	return lat + meters/EarthRadiusMeters*180/math.Pi
}

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		expected               float64
		tolerance              float64
	}{
		{"same point", 50.08, 14.42, 50.08, 14.42, 0, 1e-9},
		{"one degree of longitude on the equator", 0, 0, 0, 1, 2 * math.Pi * EarthRadiusMeters / 360, 1e-6},
		{"one degree of latitude", 10, 20, 11, 20, 2 * math.Pi * EarthRadiusMeters / 360, 1e-6},
		{"antipodal points", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1e-6},
		{"40 meters north", 50.08, 14.42, offsetNorth(50.08, 40), 14.42, 40, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("HaversineDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateLocation_Center(t *testing.T) {
	for _, radius := range []float64{0.001, 1, 100, 50000} {
		sites := []database.Site{{ID: "s1", Latitude: 50.08, Longitude: 14.42, RadiusMeters: radius, Active: true}}
		site, distance, err := ValidateLocation(50.08, 14.42, sites)
		if err != nil {
			t.Fatalf("radius %v: unexpected error %v", radius, err)
		}
		if site == nil || site.ID != "s1" {
			t.Errorf("radius %v: center did not validate", radius)
		}
		if distance != 0 {
			t.Errorf("radius %v: distance = %v, want 0", radius, distance)
		}
	}
}

func TestValidateLocation(t *testing.T) {
	const lat, lon = 50.08, 14.42

	tests := []struct {
		name      string
		pointLat  float64
		sites     []database.Site
		wantSite  string
		wantDistM float64
	}{
		{
			name:      "inside radius",
			pointLat:  offsetNorth(lat, 40),
			sites:     []database.Site{{ID: "s1", Latitude: lat, Longitude: lon, RadiusMeters: 100, Active: true}},
			wantSite:  "s1",
			wantDistM: 40,
		},
		{
			name:     "beyond radius",
			pointLat: offsetNorth(lat, 100.5),
			sites:    []database.Site{{ID: "s1", Latitude: lat, Longitude: lon, RadiusMeters: 100, Active: true}},
		},
		{
			name:     "inactive site never validates",
			pointLat: lat,
			sites:    []database.Site{{ID: "s1", Latitude: lat, Longitude: lon, RadiusMeters: 100, Active: false}},
		},
		{
			name:     "zero radius never validates",
			pointLat: lat,
			sites:    []database.Site{{ID: "s1", Latitude: lat, Longitude: lon, RadiusMeters: 0, Active: true}},
		},
		{
			name:     "closest wins over first listed",
			pointLat: offsetNorth(lat, 60),
			sites: []database.Site{
				{ID: "far", Latitude: lat, Longitude: lon, RadiusMeters: 500, Active: true},
				{ID: "near", Latitude: offsetNorth(lat, 50), Longitude: lon, RadiusMeters: 500, Active: true},
			},
			wantSite:  "near",
			wantDistM: 10,
		},
		{
			name:     "no sites",
			pointLat: lat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site, distance, err := ValidateLocation(tt.pointLat, lon, tt.sites)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantSite == "" {
				if site != nil {
					t.Errorf("expected no site, got %s", site.ID)
				}
				return
			}
			if site == nil || site.ID != tt.wantSite {
				t.Fatalf("site = %v, want %s", site, tt.wantSite)
			}
			if math.Abs(distance-tt.wantDistM) > 1e-3 {
				t.Errorf("distance = %v, want %v", distance, tt.wantDistM)
			}
		})
	}
}

func TestValidateLocation_InvalidCoordinates(t *testing.T) {
	sites := []database.Site{{ID: "s1", Latitude: 0, Longitude: 0, RadiusMeters: 100, Active: true}}
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude above 90", 90.0001, 0},
		{"latitude below -90", -91, 0},
		{"longitude above 180", 0, 180.5},
		{"longitude below -180", 0, -181},
		{"NaN latitude", math.NaN(), 0},
		{"infinite longitude", 0, math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ValidateLocation(tt.lat, tt.lon, sites)
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("error = %v, want ErrInvalidCoordinates", err)
			}
		})
	}

	// The extremes themselves are valid
	if err := ValidateCoordinates(90, -180); err != nil {
		t.Errorf("ValidateCoordinates(90, -180) = %v, want nil", err)
	}
}
