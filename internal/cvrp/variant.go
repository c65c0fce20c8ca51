package cvrp

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Status is the lifecycle state of a solver.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Variant is a solving strategy over one instance. Build validates the
// instance, Solve produces a result under the given parameters, and Status
// reports lifecycle state while a Solve is in flight.
type Variant interface {
	Build() error
	Solve(ctx context.Context, p Params) (*Result, error)
	Status() Status
}

// ErrVariantUnavailable marks a known strategy name whose backing solver is
// not linked into this build. Exact MIP and constraint formulations need an
// external solver process and are exposed only as names.
var ErrVariantUnavailable = fmt.Errorf("solver variant not available in this build")

// Variants lists the strategy names accepted by NewVariant, available first.
func Variants() []string {
	return []string{"ils", "greedy", "exact", "cp", "cp_emissions"}
}

// NewVariant returns a solver for the named strategy.
func NewVariant(name string, in *Instance) (Variant, error) {
	switch name {
	case "", "ils":
		return NewSearcher(in), nil
	case "greedy":
		return NewGreedy(in), nil
	case "exact", "cp", "cp_emissions":
		return nil, fmt.Errorf("%q: %w", name, ErrVariantUnavailable)
	default:
		return nil, fmt.Errorf("unknown solver variant %q", name)
	}
}

// Greedy is the one-shot baseline: a single randomized nearest-neighbor
// construction split into feasible routes, no improvement loop. Useful as a
// fast lower bar and for sanity-checking instances.
type Greedy struct {
	inst *Instance

	mu     sync.Mutex
	status Status
}

// NewGreedy returns a construction-only solver for the instance.
func NewGreedy(in *Instance) *Greedy {
	return &Greedy{inst: in, status: StatusIdle}
}

func (g *Greedy) Build() error {
	if g.inst == nil {
		return ErrNoInstance
	}
	return g.inst.Validate()
}

func (g *Greedy) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *Greedy) setStatus(st Status) {
	g.mu.Lock()
	g.status = st
	g.mu.Unlock()
}

func (g *Greedy) Solve(ctx context.Context, p Params) (*Result, error) {
	if err := g.Build(); err != nil {
		g.setStatus(StatusFailed)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		g.setStatus(StatusStopped)
		return nil, err
	}
	g.setStatus(StatusRunning)

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	start := time.Now()
	routes := splitTour(constructTour(g.inst, rng), g.inst)
	cost := routeSetCost(routes, g.inst)
	stats := SearchStats{Iterations: 1, InitialCost: cost, BestCost: cost, Runtime: time.Since(start)}

	g.setStatus(StatusCompleted)
	return &Result{Routes: routes, Arcs: routes.Arcs(), Cost: cost, Stats: stats}, nil
}
