package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashroute/internal/model"
)

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of latitude along a meridian.
	d := HaversineMeters(model.GeoPoint{Lat: 0, Lng: 0}, model.GeoPoint{Lat: 1, Lng: 0})
	assert.InDelta(t, EarthRadiusMeters*math.Pi/180, d, 1e-6)
	assert.Zero(t, HaversineMeters(model.GeoPoint{Lat: 37.7, Lng: -122.4}, model.GeoPoint{Lat: 37.7, Lng: -122.4}))
}

func TestSecondsSymmetric(t *testing.T) {
	m, err := NewTravelModel(4.5)
	require.NoError(t, err)

	pts := []model.GeoPoint{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.8044, Lng: -122.2712},
		{Lat: 37.3382, Lng: -121.8863},
		{Lat: -33.8688, Lng: 151.2093},
	}
	for _, a := range pts {
		for _, b := range pts {
			assert.Equal(t, m.Seconds(a, b), m.Seconds(b, a))
			assert.GreaterOrEqual(t, m.Seconds(a, b), 0.0)
		}
	}
}

func TestSecondsUsesSpeed(t *testing.T) {
	slow, _ := NewTravelModel(1)
	fast, _ := NewTravelModel(4.5)
	a := model.GeoPoint{Lat: 37.77, Lng: -122.41}
	b := model.GeoPoint{Lat: 37.78, Lng: -122.40}
	assert.InDelta(t, slow.Seconds(a, b)/4.5, fast.Seconds(a, b), 1e-9)
	assert.Equal(t, math.Round(fast.Seconds(a, b)), fast.WholeSeconds(a, b))
}

func TestNewTravelModelRejectsBadSpeed(t *testing.T) {
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewTravelModel(v)
		assert.Error(t, err)
	}
}
