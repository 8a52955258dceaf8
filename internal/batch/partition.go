// Package batch groups deliveries into the independent slices that are solved
// one model at a time.
package batch

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"dashroute/internal/model"
)

type Policy string

const (
	Sequential Policy = "sequential"
	Clustered  Policy = "clustered"
)

var ErrInvalidSize = errors.New("batch size must be positive")

type Batch struct {
	Index      int
	Deliveries []model.Delivery
}

// Partitioner decides batch membership and order.
type Partitioner struct {
	Policy   Policy
	Size     int
	Clusters int
	// Iterations caps Lloyd rounds for the clustered policy. 0 uses the default.
	Iterations int
}

// Partition returns ceil(len(ds)/Size) batches covering ds exactly once. The
// sequential policy keeps input order; the clustered policy first orders by
// region and pickup cluster so nearby orders share a batch.
func (p Partitioner) Partition(ds []model.Delivery) ([]Batch, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("partition: %w (got %d)", ErrInvalidSize, p.Size)
	}
	if len(ds) == 0 {
		return nil, nil
	}
	switch p.Policy {
	case Sequential, "":
		return chunk(ds, p.Size), nil
	case Clustered:
		return chunk(p.clusterOrder(ds), p.Size), nil
	default:
		return nil, fmt.Errorf("partition: unknown policy %q", p.Policy)
	}
}

func (p Partitioner) clusterOrder(ds []model.Delivery) []model.Delivery {
	points := make([]model.GeoPoint, len(ds))
	for i, d := range ds {
		points[i] = d.Pickup
	}
	labels := KMeans(points, p.Clusters, p.Iterations)

	idx := make([]int, len(ds))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		da, db := ds[a], ds[b]
		return cmp.Or(
			cmp.Compare(da.RegionID, db.RegionID),
			cmp.Compare(labels[a], labels[b]),
			cmp.Compare(da.CreatedAt, db.CreatedAt),
			cmp.Compare(da.ID, db.ID),
		)
	})
	out := make([]model.Delivery, len(ds))
	for i, j := range idx {
		out[i] = ds[j]
	}
	return out
}

func chunk(ds []model.Delivery, size int) []Batch {
	n := (len(ds) + size - 1) / size
	out := make([]Batch, 0, n)
	for start := 0; start < len(ds); start += size {
		end := min(start+size, len(ds))
		part := make([]model.Delivery, end-start)
		copy(part, ds[start:end])
		out = append(out, Batch{Index: len(out), Deliveries: part})
	}
	return out
}
