package geo

import (
	"math"

	"github.com/hanizaheer02/impact-tracker/internal/domain"
)

const (
	// DefaultArcPoints is the number of segments used when callers pass a non-positive count.
	DefaultArcPoints = 50

	curvaturePerDegree = 0.15
	maxCurvature       = 25.0
)

// Interpolate returns pointCount+1 coordinates curving from origin to destination.
// Latitude and longitude are interpolated linearly; latitude receives a sin(πt)
// lift proportional to the longitude delta, capped at maxCurvature degrees.
// Both endpoints are returned exactly as given.
func Interpolate(origin, destination domain.LatLng, pointCount int) []domain.LatLng {
	if pointCount <= 0 {
		pointCount = DefaultArcPoints
	}
	curvature := Curvature(origin, destination)

	points := make([]domain.LatLng, pointCount+1)
	points[0] = origin
	for i := 1; i < pointCount; i++ {
		t := float64(i) / float64(pointCount)
		lat := origin.Lat*(1-t) + destination.Lat*t
		lng := origin.Lng*(1-t) + destination.Lng*t
		points[i] = domain.LatLng{Lat: lat + curvature*math.Sin(math.Pi*t), Lng: lng}
	}
	points[pointCount] = destination
	return points
}

// Curvature is the peak latitude offset, in degrees, of the arc between two points.
func Curvature(origin, destination domain.LatLng) float64 {
	return math.Min(math.Abs(destination.Lng-origin.Lng)*curvaturePerDegree, maxCurvature)
}
