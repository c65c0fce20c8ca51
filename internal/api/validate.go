package api

import (
	"fmt"

	"revlog/internal/cvrp"
	"revlog/internal/model"
)

// validateInstanceIn checks request shape only. Demand-versus-capacity
// feasibility is deliberately left to solve time, so an infeasible instance
// can still be stored and inspected.
func validateInstanceIn(req *model.InstanceIn) error {
	if len(req.Locations) < 2 {
		return fmt.Errorf("need a depot and at least one shop, got %d locations", len(req.Locations))
	}
	if req.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", req.Capacity)
	}
	if req.Locations[0].Demand != 0 {
		return fmt.Errorf("depot (location 0) must have zero demand, got %d", req.Locations[0].Demand)
	}
	for i, loc := range req.Locations[1:] {
		if loc.Demand <= 0 {
			return fmt.Errorf("shop %d demand must be positive, got %d", i+1, loc.Demand)
		}
	}
	if req.Alpha != nil && *req.Alpha < 0 {
		return fmt.Errorf("alpha must be >= 0")
	}
	if req.Beta != nil && *req.Beta < 0 {
		return fmt.Errorf("beta must be >= 0")
	}
	return nil
}

func validateGenerateRequest(req *model.GenerateRequest) error {
	if req.NumShops < 1 || req.NumShops > 10000 {
		return fmt.Errorf("numShops must be in [1,10000], got %d", req.NumShops)
	}
	if req.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", req.Capacity)
	}
	return nil
}

func validateSolveRequest(req *model.SolveRequest) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if req.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0")
	}
	if req.TimeLimitMs < 0 {
		return fmt.Errorf("timeLimitMs must be >= 0")
	}
	if req.Alpha != nil && *req.Alpha < 0 {
		return fmt.Errorf("alpha must be >= 0")
	}
	if req.Beta != nil && *req.Beta < 0 {
		return fmt.Errorf("beta must be >= 0")
	}
	if req.Variant != "" {
		known := false
		for _, v := range cvrp.Variants() {
			if v == req.Variant {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown variant %q", req.Variant)
		}
	}
	return nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	allowed := map[string]struct{}{"solve.completed": {}, "solve.failed": {}, "solve.stopped": {}}
	for _, e := range req.Events {
		if _, ok := allowed[e]; !ok {
			return fmt.Errorf("unknown event type %q (allowed: solve.completed, solve.failed, solve.stopped)", e)
		}
	}
	return nil
}
