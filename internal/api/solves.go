package api

import (
	"context"
	"sync"
	"time"

	"revlog/internal/cvrp"
	"revlog/internal/metrics"
	"revlog/internal/model"
	"revlog/internal/store"
	"revlog/internal/webhooks"
)

// SolveManager owns the asynchronous solve lifecycle: it launches variant
// tasks, streams their progress through the broker, persists outcomes and
// emits webhooks when a solve reaches a terminal state.
type SolveManager struct {
	store  store.Store
	pub    *webhooks.Publisher
	broker EventBroker

	mu      sync.Mutex
	running map[string]*cvrp.Task
}

func NewSolveManager(s store.Store, pub *webhooks.Publisher, broker EventBroker) *SolveManager {
	return &SolveManager{store: s, pub: pub, broker: broker, running: map[string]*cvrp.Task{}}
}

// Start launches the variant on its own goroutine. The variant must already
// be built; validation failures belong to the caller, before a solve record
// exists.
func (m *SolveManager) Start(solveID string, v cvrp.Variant, inst *cvrp.Instance, p cvrp.Params) {
	p.OnProgress = func(pr cvrp.Progress) {
		typ := "progress"
		if pr.Restart {
			typ = "restart"
		}
		m.broker.Publish(solveID, SSEEvent{Type: typ, Data: map[string]any{
			"solveId":   solveID,
			"iteration": pr.Iteration,
			"bestCost":  pr.BestCost,
			"numRoutes": pr.NumRoutes,
			"ts":        time.Now().UTC().Format(time.RFC3339),
		}})
	}

	ctx := context.Background()
	_ = m.store.SetSolveStatus(ctx, solveID, store.SolveRunning)
	task := cvrp.StartTask(ctx, v, p)
	m.mu.Lock()
	m.running[solveID] = task
	m.mu.Unlock()

	go m.finish(solveID, task, inst)
}

func (m *SolveManager) finish(solveID string, task *cvrp.Task, inst *cvrp.Instance) {
	res, err := task.Result()
	m.mu.Lock()
	delete(m.running, solveID)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	solve, gerr := m.store.GetSolve(ctx, solveID)
	variant := solve.Variant
	if gerr != nil {
		variant = "ils"
	}

	out := model.SolveOut{Status: statusOf(task, err)}
	if err != nil {
		out.Error = err.Error()
	}
	if res != nil {
		sol := cvrp.FromRoutes(inst, res.Routes)
		sm := sol.Metrics()
		out.Cost = res.Cost
		out.Emissions = sm.Emissions
		out.Routes = routesOut(sm)
		out.Stats = &model.SolveStatsOut{
			Iterations:    res.Stats.Iterations,
			Improvements:  res.Stats.Improvements,
			AcceptedWorse: res.Stats.AcceptedWorse,
			Restarts:      res.Stats.Restarts,
			InitialCost:   res.Stats.InitialCost,
			RuntimeMs:     res.Stats.Runtime.Milliseconds(),
		}
		metrics.SolveDuration.WithLabelValues(variant).Observe(res.Stats.Runtime.Seconds())
		metrics.SolveIterations.WithLabelValues(variant).Observe(float64(res.Stats.Iterations))
		cvrp.RecordStats(solve.InstanceID, variant, res.Stats)
		_ = m.store.SaveSolveMetrics(ctx, solve.InstanceID, variant, map[string]any{
			"iterations":    res.Stats.Iterations,
			"improvements":  res.Stats.Improvements,
			"acceptedWorse": res.Stats.AcceptedWorse,
			"restarts":      res.Stats.Restarts,
			"initialCost":   res.Stats.InitialCost,
			"bestCost":      res.Cost,
			"runtimeMs":     res.Stats.Runtime.Milliseconds(),
		})
	}
	_ = m.store.FinishSolve(ctx, solveID, out)
	metrics.Solves.WithLabelValues(variant, out.Status).Inc()

	m.broker.Publish(solveID, SSEEvent{Type: out.Status, Data: map[string]any{
		"solveId": solveID,
		"status":  out.Status,
		"cost":    out.Cost,
		"error":   out.Error,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}})

	event := webhooks.EventSolveCompleted
	switch out.Status {
	case store.SolveFailed:
		event = webhooks.EventSolveFailed
	case store.SolveStopped:
		event = webhooks.EventSolveStopped
	}
	m.pub.Emit(ctx, event, map[string]any{
		"solveId":    solveID,
		"instanceId": solve.InstanceID,
		"variant":    variant,
		"status":     out.Status,
		"cost":       out.Cost,
	})
}

// Stop requests a running solve to stop. Returns false when the solve is not
// running on this replica.
func (m *SolveManager) Stop(solveID string) bool {
	m.mu.Lock()
	task := m.running[solveID]
	m.mu.Unlock()
	if task == nil {
		return false
	}
	task.Stop()
	return true
}

func statusOf(task *cvrp.Task, err error) string {
	if err != nil {
		return store.SolveFailed
	}
	switch task.Status() {
	case cvrp.StatusStopped:
		return store.SolveStopped
	case cvrp.StatusFailed:
		return store.SolveFailed
	default:
		return store.SolveCompleted
	}
}

func routesOut(m *cvrp.Metrics) []model.RouteOut {
	out := make([]model.RouteOut, 0, len(m.Routes))
	for _, r := range m.Routes {
		out = append(out, model.RouteOut{
			RouteID:   r.RouteID,
			Sequence:  r.Sequence,
			Distance:  r.Distance,
			Load:      r.Load,
			Capacity:  r.Capacity,
			NumShops:  r.NumShops,
			Emissions: r.Emissions,
		})
	}
	return out
}
