package cvrp

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Acceptance and restart policy of the ILS loop.
const (
	diversifyProb  = 0.1 // chance of adopting a non-improving candidate
	stagnationCap  = 20  // non-improving iterations before a restart
	defaultIters   = 100
	defaultTimeout = 60 * time.Second
)

// Params controls one solve invocation.
type Params struct {
	TimeLimit  time.Duration // wall-clock budget, default 60s
	Iterations int           // iteration cap, default 100
	Seed       int64         // 0 means seed from the clock
	Verbose    bool
	// OnProgress, when set, is called after iterations that improve the best
	// solution and on restarts. It runs on the solving goroutine.
	OnProgress func(Progress)
}

// Progress is a point-in-time snapshot emitted during a search.
type Progress struct {
	Iteration int     `json:"iteration"`
	BestCost  float64 `json:"bestCost"`
	NumRoutes int     `json:"numRoutes"`
	Restart   bool    `json:"restart,omitempty"`
}

// SearchStats summarizes one finished search.
type SearchStats struct {
	Iterations    int           `json:"iterations"`
	Improvements  int           `json:"improvements"`
	AcceptedWorse int           `json:"acceptedWorse"`
	Restarts      int           `json:"restarts"`
	InitialCost   float64       `json:"initialCost"`
	BestCost      float64       `json:"bestCost"`
	Runtime       time.Duration `json:"runtime"`
}

// Result is the output of any solver variant: the best capacity-feasible
// route set found, its arc form, and the total distance objective.
type Result struct {
	Routes RouteSet    `json:"routes"`
	Arcs   ArcSet      `json:"-"`
	Cost   float64     `json:"cost"`
	Stats  SearchStats `json:"stats"`
}

// Searcher is the iterated local search solver: construct, then repeatedly
// perturb, improve with randomized 2-opt, accept or restart, under a
// time-or-iteration budget. The loop is single-threaded; a stop request or
// context cancellation is honored between iterations, never mid-iteration.
type Searcher struct {
	inst *Instance
	stop atomic.Bool

	mu     sync.Mutex
	status Status
}

// NewSearcher returns an ILS solver for the instance.
func NewSearcher(in *Instance) *Searcher {
	return &Searcher{inst: in, status: StatusIdle}
}

// Build validates the instance once, so infeasible demand is surfaced as a
// configuration error before any iteration runs instead of failing every
// split inside the loop.
func (s *Searcher) Build() error {
	if s.inst == nil {
		return ErrNoInstance
	}
	return s.inst.Validate()
}

// Status reports the current lifecycle state.
func (s *Searcher) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Searcher) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// RequestStop asks a running search to terminate at the next iteration
// boundary. Best-so-far is kept.
func (s *Searcher) RequestStop() { s.stop.Store(true) }

// Solve runs the ILS loop. The random source is owned exclusively by this
// call; concurrent solves must use distinct Searcher values to stay
// reproducible.
func (s *Searcher) Solve(ctx context.Context, p Params) (*Result, error) {
	if err := s.Build(); err != nil {
		s.setStatus(StatusFailed)
		return nil, err
	}
	s.setStatus(StatusRunning)

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	iterations := p.Iterations
	if iterations <= 0 {
		iterations = defaultIters
	}
	budget := p.TimeLimit
	if budget <= 0 {
		budget = defaultTimeout
	}

	start := time.Now()
	deadline := start.Add(budget)

	tour := constructTour(s.inst, rng)
	currentRoutes := splitTour(tour, s.inst)
	currentCost := routeSetCost(currentRoutes, s.inst)

	bestRoutes := currentRoutes
	bestCost := currentCost

	stats := SearchStats{InitialCost: currentCost, BestCost: bestCost}
	if p.Verbose {
		log.Printf("ils: initial cost %.2f over %d routes", currentCost, len(currentRoutes))
	}

	stagnation := 0
	stopped := false
	for stats.Iterations < iterations && time.Now().Before(deadline) {
		if s.stop.Load() || ctx.Err() != nil {
			stopped = true
			break
		}
		stats.Iterations++

		cand := perturbTour(tour, rng)
		cand = twoOpt(cand, s.inst, rng)
		candRoutes := splitTour(cand, s.inst)
		candCost := routeSetCost(candRoutes, s.inst)

		if candCost < currentCost {
			tour, currentRoutes, currentCost = cand, candRoutes, candCost
			stagnation = 0
			if candCost < bestCost {
				bestRoutes, bestCost = candRoutes, candCost
				stats.Improvements++
				stats.BestCost = bestCost
				if p.Verbose {
					log.Printf("ils: iteration %d new best %.2f (%d routes)", stats.Iterations, bestCost, len(bestRoutes))
				}
				if p.OnProgress != nil {
					p.OnProgress(Progress{Iteration: stats.Iterations, BestCost: bestCost, NumRoutes: len(bestRoutes)})
				}
			}
		} else {
			if rng.Float64() < diversifyProb {
				tour, currentRoutes, currentCost = cand, candRoutes, candCost
				stats.AcceptedWorse++
			}
			stagnation++
		}

		if stagnation >= stagnationCap {
			tour = constructTour(s.inst, rng)
			currentRoutes = splitTour(tour, s.inst)
			currentCost = routeSetCost(currentRoutes, s.inst)
			stagnation = 0
			stats.Restarts++
			if p.Verbose {
				log.Printf("ils: iteration %d restart, current reset to %.2f", stats.Iterations, currentCost)
			}
			if p.OnProgress != nil {
				p.OnProgress(Progress{Iteration: stats.Iterations, BestCost: bestCost, NumRoutes: len(bestRoutes), Restart: true})
			}
		}
	}

	stats.Runtime = time.Since(start)
	if stopped {
		s.setStatus(StatusStopped)
	} else {
		s.setStatus(StatusCompleted)
	}
	if p.Verbose {
		log.Printf("ils: done after %d iterations in %s, best %.2f", stats.Iterations, stats.Runtime, bestCost)
	}

	return &Result{Routes: bestRoutes, Arcs: bestRoutes.Arcs(), Cost: bestCost, Stats: stats}, nil
}
