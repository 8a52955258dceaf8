package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"dashroute/internal/config"
	"dashroute/internal/geo"
	"dashroute/internal/model"
)

var (
	epoch  = config.DefaultEpoch
	base   = epoch.Unix()
	travel = geo.TravelModel{SpeedMPS: 4.5}
)

func samePlace() []model.Delivery {
	p := model.GeoPoint{Lat: 37.77, Lng: -122.41}
	return []model.Delivery{{ID: 1, CreatedAt: 0, FoodReadyTime: 600, Pickup: p, Dropoff: p}}
}

func TestEvaluateClean(t *testing.T) {
	rows := []model.RoutePoint{
		{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
		{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: base + 600},
	}
	ev := Evaluate(rows, samePlace(), travel, epoch)
	assert.True(t, ev.OK(), ev.Violations)
	assert.Equal(t, 1, ev.Routes)
	assert.InDelta(t, 10.0, ev.AvgDeliveryMinutes, 1e-9)
	assert.InDelta(t, 6.0, ev.Efficiency, 1e-9)
}

func TestEvaluateViolations(t *testing.T) {
	far := []model.Delivery{{
		ID: 1, CreatedAt: 0, FoodReadyTime: 600,
		Pickup:  model.GeoPoint{Lat: 37.77, Lng: -122.41},
		Dropoff: model.GeoPoint{Lat: 37.80, Lng: -122.41},
	}}
	cases := map[string]struct {
		ds   []model.Delivery
		rows []model.RoutePoint
		want string
	}{
		"missing rows": {
			ds:   samePlace(),
			rows: []model.RoutePoint{{RouteID: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600}},
			want: "not fully routed",
		},
		"before ready": {
			ds: samePlace(),
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 300},
				{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: base + 900},
			},
			want: "before food ready",
		},
		"too fast": {
			ds: far,
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
				{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: base + 660},
			},
			want: "need",
		},
		"drop first": {
			ds: samePlace(),
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.DropOff, Time: base + 600},
				{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
			},
			want: "dropped before pickup",
		},
		"split routes": {
			ds: samePlace(),
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
				{RouteID: 1, PointIndex: 0, DeliveryID: 1, Type: model.DropOff, Time: base + 600},
			},
			want: "never dropped off",
		},
		"slow": {
			ds: samePlace(),
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
				{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: base + 3600},
			},
			want: "average delivery time",
		},
		"unknown delivery": {
			ds: samePlace(),
			rows: []model.RoutePoint{
				{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: base + 600},
				{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: base + 600},
				{RouteID: 0, PointIndex: 2, DeliveryID: 9, Type: model.DropOff, Time: base + 600},
			},
			want: "unknown delivery 9",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ev := Evaluate(tc.rows, tc.ds, travel, epoch)
			assert.False(t, ev.OK())
			assert.Contains(t, strings.Join(ev.Violations, "\n"), tc.want)
		})
	}
}
