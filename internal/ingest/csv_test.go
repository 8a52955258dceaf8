package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashroute/internal/model"
)

var epoch = time.Date(2015, time.February, 3, 2, 0, 0, 0, time.UTC)

const sample = `delivery_id,created_at,food_ready_time,pickup_lat,pickup_long,dropoff_lat,dropoff_long,region_id
1,2/3/15 2:00,2/3/15 2:10,37.7749,-122.4194,37.7849,-122.4094,2
2, 02/03/15 02:05 ,2015-02-03 02:20:00,37.70,-122.40,37.71,-122.41,
`

func TestReadDeliveries(t *testing.T) {
	ds, err := ReadDeliveries(strings.NewReader(sample), epoch)
	require.NoError(t, err)
	require.Len(t, ds, 2)

	assert.Equal(t, model.Delivery{
		ID: 1, CreatedAt: 0, FoodReadyTime: 600,
		Pickup:   model.GeoPoint{Lat: 37.7749, Lng: -122.4194},
		Dropoff:  model.GeoPoint{Lat: 37.7849, Lng: -122.4094},
		RegionID: 2,
	}, ds[0])
	assert.Equal(t, int64(300), ds[1].CreatedAt)
	assert.Equal(t, int64(1200), ds[1].FoodReadyTime)
	assert.Zero(t, ds[1].RegionID)
}

func TestReadDeliveriesColumnOrderFromHeader(t *testing.T) {
	in := "pickup_lat,pickup_long,dropoff_lat,dropoff_long,food_ready_time,created_at,delivery_id\n" +
		"1,2,3,4,2/3/15 3:00,2/3/15 2:30,77\n"
	ds, err := ReadDeliveries(strings.NewReader(in), epoch)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, int64(77), ds[0].ID)
	assert.Equal(t, int64(3600), ds[0].FoodReadyTime)
	assert.Equal(t, model.GeoPoint{Lat: 3, Lng: 4}, ds[0].Dropoff)
}

func TestReadDeliveriesMalformed(t *testing.T) {
	head := "delivery_id,created_at,food_ready_time,pickup_lat,pickup_long,dropoff_lat,dropoff_long\n"
	cases := map[string]struct {
		in     string
		column string
	}{
		"missing column": {in: "delivery_id,created_at\n1,2/3/15 2:00\n"},
		"bad time":       {in: head + "1,yesterday,2/3/15 2:10,1,2,3,4\n", column: "created_at"},
		"missing lat":    {in: head + "1,2/3/15 2:00,2/3/15 2:10,,2,3,4\n", column: "pickup_lat"},
		"bad lng":        {in: head + "1,2/3/15 2:00,2/3/15 2:10,1,east,3,4\n", column: "pickup_long"},
		"out of range":   {in: head + "1,2/3/15 2:00,2/3/15 2:10,1,2,95,4\n", column: "dropoff_lat"},
		"duplicate id":   {in: head + "1,2/3/15 2:00,2/3/15 2:10,1,2,3,4\n1,2/3/15 2:00,2/3/15 2:10,1,2,3,4\n", column: "delivery_id"},
		"short row":      {in: head + "1,2/3/15 2:00\n", column: "food_ready_time"},
		"empty":          {in: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadDeliveries(strings.NewReader(tc.in), epoch)
			require.ErrorIs(t, err, ErrMalformedInput)
			if tc.column != "" {
				var re *RowError
				require.True(t, errors.As(err, &re))
				assert.Equal(t, tc.column, re.Column)
			}
		})
	}
}

func TestReadDeliveriesHeaderOnly(t *testing.T) {
	ds, err := ReadDeliveries(strings.NewReader("delivery_id,created_at,food_ready_time,pickup_lat,pickup_long,dropoff_lat,dropoff_long\n"), epoch)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestRoutePointsRoundTrip(t *testing.T) {
	rows := []model.RoutePoint{
		{RouteID: 0, PointIndex: 0, DeliveryID: 1, Type: model.Pickup, Time: 1422929400},
		{RouteID: 0, PointIndex: 1, DeliveryID: 1, Type: model.DropOff, Time: 1422929700},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRoutePoints(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "Route ID,Route Point Index,Delivery ID,Route Point Type,Route Point Time\n"))
	assert.Contains(t, buf.String(), "0,1,1,DropOff,1422929700\n")

	got, err := ReadRoutePoints(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadRoutePointsRejectsUnknownType(t *testing.T) {
	in := "Route ID,Route Point Index,Delivery ID,Route Point Type,Route Point Time\n0,0,1,Teleport,5\n"
	_, err := ReadRoutePoints(strings.NewReader(in))
	assert.ErrorIs(t, err, ErrMalformedInput)
}
