package pipeline

import (
	"fmt"

	"dashroute/internal/artifact"
	"dashroute/internal/milp"
	"dashroute/internal/model"
	"dashroute/internal/opt"
)

// Replay decodes a persisted solution of batch index against ds without
// calling the engine. ds and the runner settings must match the run that
// wrote the solution; the model is rebuilt and every stored value is mapped
// back by variable name. When stored is non-nil the rebuilt model must equal
// it, which catches a changed configuration or input.
func (r *Runner) Replay(ds []model.Delivery, index int, sol *artifact.Solution, stored *milp.Model) ([]model.RoutePoint, *opt.Assignment, error) {
	batches, err := r.Partitioner.Partition(ds)
	if err != nil {
		return nil, nil, fmt.Errorf("partition: %w", err)
	}
	if index < 0 || index >= len(batches) {
		return nil, nil, fmt.Errorf("replay: batch %d out of range [0,%d)", index, len(batches))
	}
	routeBase := 0
	for _, b := range batches[:index] {
		routeBase += r.dashers(len(b.Deliveries))
	}

	f, err := r.formulate(batches[index])
	if err != nil {
		return nil, nil, err
	}
	if stored != nil {
		if err := f.Model.Diff(stored); err != nil {
			return nil, nil, fmt.Errorf("replay batch %d: %w", index, err)
		}
	}
	res, err := sol.Result(f.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("replay: %w", err)
	}
	a, err := opt.Interpret(f, res)
	if err != nil {
		return nil, nil, err
	}
	return a.RoutePoints(r.Epoch.Unix(), routeBase), a, nil
}
