// Package ingest reads delivery CSVs and writes route point CSVs.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"dashroute/internal/model"
)

var ErrMalformedInput = errors.New("malformed input")

// RowError locates a bad field. Row is 1-based and counts the header.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d column %s: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrMalformedInput, e.Err} }

var requiredColumns = []string{
	"delivery_id", "created_at", "food_ready_time",
	"pickup_lat", "pickup_long", "dropoff_lat", "dropoff_long",
}

// Accepted timestamp layouts, tried in order. The first is the export format
// of the dispatch system (%m/%d/%y %H:%M).
var timeLayouts = []string{
	"1/2/06 15:04",
	"1/2/2006 15:04",
	time.DateTime,
	time.RFC3339,
}

// ReadDeliveries parses a delivery CSV. Columns are located by header name;
// region_id is optional. Times become seconds relative to epoch. Any bad row
// fails the whole read.
func ReadDeliveries(r io.Reader, epoch time.Time) ([]model.Delivery, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedInput, err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", ErrMalformedInput, c)
		}
	}
	regionCol, hasRegion := col["region_id"]

	var out []model.Delivery
	seen := map[int64]int{}
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &RowError{Row: row, Err: err}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		field := func(name string) (string, error) {
			i := col[name]
			if i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				return "", &RowError{Row: row, Column: name, Err: errors.New("missing value")}
			}
			return strings.TrimSpace(rec[i]), nil
		}

		var d model.Delivery
		s, err := field("delivery_id")
		if err != nil {
			return nil, err
		}
		if d.ID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, &RowError{Row: row, Column: "delivery_id", Err: err}
		}
		if prev, dup := seen[d.ID]; dup {
			return nil, &RowError{Row: row, Column: "delivery_id", Err: fmt.Errorf("duplicate of row %d", prev)}
		}
		seen[d.ID] = row

		for _, tf := range []struct {
			name string
			dst  *int64
		}{{"created_at", &d.CreatedAt}, {"food_ready_time", &d.FoodReadyTime}} {
			s, err := field(tf.name)
			if err != nil {
				return nil, err
			}
			ts, err := ParseTime(s)
			if err != nil {
				return nil, &RowError{Row: row, Column: tf.name, Err: err}
			}
			*tf.dst = ts.Unix() - epoch.Unix()
		}

		for _, cf := range []struct {
			name  string
			dst   *float64
			limit float64
		}{
			{"pickup_lat", &d.Pickup.Lat, 90}, {"pickup_long", &d.Pickup.Lng, 180},
			{"dropoff_lat", &d.Dropoff.Lat, 90}, {"dropoff_long", &d.Dropoff.Lng, 180},
		} {
			s, err := field(cf.name)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, &RowError{Row: row, Column: cf.name, Err: err}
			}
			if math.IsNaN(v) || math.Abs(v) > cf.limit {
				return nil, &RowError{Row: row, Column: cf.name, Err: fmt.Errorf("%v out of range", v)}
			}
			*cf.dst = v
		}

		if hasRegion && regionCol < len(rec) && strings.TrimSpace(rec[regionCol]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[regionCol]), 64)
			if err != nil {
				return nil, &RowError{Row: row, Column: "region_id", Err: err}
			}
			d.RegionID = int(v)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseTime accepts any of the supported layouts, interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

var routeHeader = []string{"Route ID", "Route Point Index", "Delivery ID", "Route Point Type", "Route Point Time"}

// WriteRoutePoints writes rows in the order given.
func WriteRoutePoints(w io.Writer, rows []model.RoutePoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(routeHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.RouteID),
			strconv.Itoa(r.PointIndex),
			strconv.FormatInt(r.DeliveryID, 10),
			string(r.Type),
			strconv.FormatInt(r.Time, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRoutePoints parses a file written by WriteRoutePoints.
func ReadRoutePoints(r io.Reader) ([]model.RoutePoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
	}
	var out []model.RoutePoint
	for i, rec := range recs[1:] {
		row := i + 2
		if len(rec) < len(routeHeader) {
			return nil, &RowError{Row: row, Err: fmt.Errorf("want %d fields, got %d", len(routeHeader), len(rec))}
		}
		var rp model.RoutePoint
		var err error
		if rp.RouteID, err = strconv.Atoi(strings.TrimSpace(rec[0])); err != nil {
			return nil, &RowError{Row: row, Column: routeHeader[0], Err: err}
		}
		if rp.PointIndex, err = strconv.Atoi(strings.TrimSpace(rec[1])); err != nil {
			return nil, &RowError{Row: row, Column: routeHeader[1], Err: err}
		}
		if rp.DeliveryID, err = strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 64); err != nil {
			return nil, &RowError{Row: row, Column: routeHeader[2], Err: err}
		}
		switch typ := model.StopType(strings.TrimSpace(rec[3])); typ {
		case model.Pickup, model.DropOff:
			rp.Type = typ
		default:
			return nil, &RowError{Row: row, Column: routeHeader[3], Err: fmt.Errorf("unknown type %q", typ)}
		}
		if rp.Time, err = strconv.ParseInt(strings.TrimSpace(rec[4]), 10, 64); err != nil {
			return nil, &RowError{Row: row, Column: routeHeader[4], Err: err}
		}
		out = append(out, rp)
	}
	return out, nil
}
