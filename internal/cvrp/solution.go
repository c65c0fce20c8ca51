package cvrp

import "sort"

// Default emissions coefficients when an instance carries none.
const (
	DefaultAlpha = 0.15 // base kg CO2 per distance unit
	DefaultBeta  = 0.02 // extra kg CO2 per distance unit per load unit
)

// RouteMetrics describes one route of a solution.
type RouteMetrics struct {
	RouteID   int     `json:"routeId"`
	Sequence  []int   `json:"sequence"`
	Distance  float64 `json:"distance"`
	Load      int     `json:"load"`
	Capacity  int     `json:"capacity"`
	NumShops  int     `json:"numShops"`
	Emissions float64 `json:"emissionsKg"`
}

// Metrics aggregates a full solution.
type Metrics struct {
	Method        string         `json:"method,omitempty"`
	NumRoutes     int            `json:"numRoutes"`
	TotalDistance float64        `json:"totalDistance"`
	TotalLoad     int            `json:"totalLoad"`
	TotalShops    int            `json:"totalShops"`
	Emissions     float64        `json:"emissionsKg"`
	Routes        []RouteMetrics `json:"routes"`
}

// Solution is a read view over a set of used arcs. Route reconstruction and
// metrics are computed lazily and cached; a Solution is therefore not safe
// for concurrent use, callers share the derived values instead.
type Solution struct {
	inst *Instance
	arcs ArcSet

	routes  RouteSet
	metrics *Metrics
}

// NewSolution wraps an instance and its solved arc set.
func NewSolution(in *Instance, arcs ArcSet) *Solution {
	return &Solution{inst: in, arcs: arcs}
}

// FromRoutes builds a Solution directly from a route set.
func FromRoutes(in *Instance, rs RouteSet) *Solution {
	return &Solution{inst: in, arcs: rs.Arcs(), routes: rs}
}

// ActiveArcs returns the used arcs sorted by (from, to) for stable output.
func (s *Solution) ActiveArcs() []Arc {
	out := make([]Arc, 0, len(s.arcs))
	for a, v := range s.arcs {
		if v > 0 {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Routes reconstructs depot-bracketed routes by walking the active arcs from
// the depot. A walk that dead-ends away from the depot is closed by force
// with a final depot hop, so a slightly inconsistent arc set still yields
// usable routes. Walks shorter than one real shop are dropped.
func (s *Solution) Routes() RouteSet {
	if s.routes != nil {
		return s.routes
	}

	next := map[int][]int{}
	for _, a := range s.ActiveArcs() {
		next[a.From] = append(next[a.From], a.To)
	}

	routes := RouteSet{}
	routeID := 1
	for len(next[Depot]) > 0 {
		route := []int{Depot}
		cur := Depot
		for {
			succ := next[cur]
			if len(succ) == 0 {
				if cur != Depot {
					route = append(route, Depot)
				}
				break
			}
			to := succ[0]
			next[cur] = succ[1:]
			route = append(route, to)
			if to == Depot {
				break
			}
			cur = to
		}
		if len(route) > 2 {
			routes[routeID] = route
			routeID++
		}
	}
	s.routes = routes
	return routes
}

// Emissions computes total CO2 with explicit coefficients.
func (s *Solution) Emissions(alpha, beta float64) float64 {
	return routeSetEmissions(s.Routes(), s.inst, alpha, beta)
}

// Metrics returns the cached per-route and aggregate figures. Emissions use
// the instance coefficients when present, otherwise the defaults.
func (s *Solution) Metrics() *Metrics {
	if s.metrics != nil {
		return s.metrics
	}

	alpha, beta := DefaultAlpha, DefaultBeta
	if s.inst.Alpha != nil {
		alpha = *s.inst.Alpha
	}
	if s.inst.Beta != nil {
		beta = *s.inst.Beta
	}

	routes := s.Routes()
	ids := make([]int, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	m := &Metrics{Method: s.inst.Method, NumRoutes: len(routes)}
	for _, id := range ids {
		seq := routes[id]
		dist, load := 0.0, 0
		for i := 0; i+1 < len(seq); i++ {
			dist += s.inst.Cost[seq[i]][seq[i+1]]
		}
		for _, loc := range seq {
			if loc != Depot {
				load += s.inst.Demand[loc]
			}
		}
		rm := RouteMetrics{
			RouteID:   id,
			Sequence:  seq,
			Distance:  dist,
			Load:      load,
			Capacity:  s.inst.Capacity,
			NumShops:  len(seq) - 2,
			Emissions: routeEmissions(seq, s.inst, alpha, beta),
		}
		m.Routes = append(m.Routes, rm)
		m.TotalDistance += dist
		m.TotalLoad += load
		m.TotalShops += rm.NumShops
		m.Emissions += rm.Emissions
	}
	s.metrics = m
	return m
}
