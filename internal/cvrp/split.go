package cvrp

// splitTour partitions a tour into capacity-feasible depot-to-depot routes
// with a single greedy scan: whenever the next shop would overflow the
// running load, the current route is closed and a new one is opened with
// that shop. Assuming every single demand fits the capacity (checked once
// by Instance.Validate), the result is feasible by construction.
func splitTour(tour Tour, in *Instance) RouteSet {
	routes := RouteSet{}
	routeID := 1
	current := []int{Depot}
	load := 0

	for _, shop := range tour {
		if shop == Depot {
			continue
		}
		d := in.Demand[shop]
		if load+d > in.Capacity {
			current = append(current, Depot)
			routes[routeID] = current
			routeID++
			current = []int{Depot, shop}
			load = d
		} else {
			current = append(current, shop)
			load += d
		}
	}
	if len(current) > 1 {
		current = append(current, Depot)
		routes[routeID] = current
	}
	return routes
}
