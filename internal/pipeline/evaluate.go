package pipeline

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"dashroute/internal/geo"
	"dashroute/internal/model"
)

// TravelToleranceSeconds is the slack allowed between consecutive stops.
const TravelToleranceSeconds = 3

// MaxAvgDeliveryMinutes is the acceptance threshold for average delivery time.
const MaxAvgDeliveryMinutes = 45

// Evaluate checks a route point table against the deliveries it claims to
// serve and computes the two summary numbers used to compare plans. It never
// fails; every problem found is listed in Violations.
func Evaluate(rows []model.RoutePoint, ds []model.Delivery, tm geo.TravelModel, epoch time.Time) model.Evaluation {
	ev := model.Evaluation{Deliveries: len(ds)}
	violate := func(format string, args ...any) {
		ev.Violations = append(ev.Violations, fmt.Sprintf(format, args...))
	}
	base := epoch.Unix()

	if len(rows) != 2*len(ds) {
		violate("expected %d route points for %d deliveries, got %d", 2*len(ds), len(ds), len(rows))
	}
	byID := make(map[int64]model.Delivery, len(ds))
	for _, d := range ds {
		byID[d.ID] = d
	}
	type stopKey struct {
		id  int64
		typ model.StopType
	}
	seen := map[stopKey]int{}
	for _, r := range rows {
		k := stopKey{r.DeliveryID, r.Type}
		seen[k]++
		switch _, known := byID[r.DeliveryID]; {
		case !known && seen[k] == 1:
			violate("route points reference unknown delivery %d", r.DeliveryID)
		case known && seen[k] == 2:
			violate("delivery %d has more than one %s point", r.DeliveryID, r.Type)
		}
	}
	for _, d := range ds {
		if seen[stopKey{d.ID, model.Pickup}] == 0 || seen[stopKey{d.ID, model.DropOff}] == 0 {
			violate("delivery %d is not fully routed", d.ID)
		}
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b model.RoutePoint) int {
		return cmp.Or(cmp.Compare(a.RouteID, b.RouteID), cmp.Compare(a.PointIndex, b.PointIndex))
	})

	latest := map[int64]int64{}
	routeEnd := map[int]int64{}
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].RouteID == sorted[i].RouteID {
			j++
		}
		route := sorted[i:j]
		onBoard := map[int64]bool{}
		var prev *model.RoutePoint
		for k := range route {
			rp := &route[k]
			d, ok := byID[rp.DeliveryID]
			if !ok {
				continue
			}
			if rp.Time < base+d.FoodReadyTime {
				violate("route %d: %s of delivery %d at %d before food ready at %d", rp.RouteID, rp.Type, d.ID, rp.Time, base+d.FoodReadyTime)
			}
			if prev != nil {
				need := math.Floor(tm.Seconds(stopPoint(byID, *prev), stopPoint(byID, *rp))) - TravelToleranceSeconds
				if got := float64(rp.Time - prev.Time); got < need {
					violate("route %d: %.0fs from point %d to %d, need %.0fs", rp.RouteID, got, prev.PointIndex, rp.PointIndex, need)
				}
			}
			switch rp.Type {
			case model.Pickup:
				onBoard[d.ID] = true
			case model.DropOff:
				if !onBoard[d.ID] {
					violate("route %d: delivery %d dropped before pickup", rp.RouteID, d.ID)
				}
				delete(onBoard, d.ID)
			}
			latest[d.ID] = max(latest[d.ID], rp.Time)
			routeEnd[rp.RouteID] = max(routeEnd[rp.RouteID], rp.Time)
			prev = rp
		}
		if len(onBoard) > 0 {
			violate("route %d: %d deliveries picked up but never dropped off", route[0].RouteID, len(onBoard))
		}
		i = j
	}
	ev.Routes = len(routeEnd)

	if len(latest) > 0 {
		total := 0.0
		for id, t := range latest {
			total += float64(t - (base + byID[id].CreatedAt))
		}
		ev.AvgDeliveryMinutes = total / float64(len(latest)) / 60
		if ev.AvgDeliveryMinutes > MaxAvgDeliveryMinutes {
			violate("average delivery time %.2f min exceeds %d min", ev.AvgDeliveryMinutes, MaxAvgDeliveryMinutes)
		}
	}

	hours := 0.0
	for _, end := range routeEnd {
		hours += float64(end-base) / 3600
	}
	if hours > 0 {
		ev.Efficiency = float64(len(ds)) / hours
	}
	return ev
}

func stopPoint(byID map[int64]model.Delivery, rp model.RoutePoint) model.GeoPoint {
	d := byID[rp.DeliveryID]
	if rp.Type == model.Pickup {
		return d.Pickup
	}
	return d.Dropoff
}
