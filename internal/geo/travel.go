// Package geo converts coordinates into courier travel times.
package geo

import (
	"fmt"
	"math"

	"dashroute/internal/model"
)

const EarthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// TravelModel turns distance into time at a constant courier speed.
type TravelModel struct {
	SpeedMPS float64
}

func NewTravelModel(speedMPS float64) (TravelModel, error) {
	if speedMPS <= 0 || math.IsNaN(speedMPS) || math.IsInf(speedMPS, 0) {
		return TravelModel{}, fmt.Errorf("travel model: speed must be positive, got %v", speedMPS)
	}
	return TravelModel{SpeedMPS: speedMPS}, nil
}

// Seconds is the travel time from a to b. It is symmetric.
func (m TravelModel) Seconds(a, b model.GeoPoint) float64 {
	return HaversineMeters(a, b) / m.SpeedMPS
}

// WholeSeconds is Seconds rounded to the nearest second, the resolution used
// in routing graphs.
func (m TravelModel) WholeSeconds(a, b model.GeoPoint) float64 {
	return math.Round(m.Seconds(a, b))
}
