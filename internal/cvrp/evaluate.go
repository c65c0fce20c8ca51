package cvrp

// routeSetCost sums arc costs over all routes.
func routeSetCost(rs RouteSet, in *Instance) float64 {
	total := 0.0
	for _, route := range rs {
		for i := 0; i+1 < len(route); i++ {
			total += in.Cost[route[i]][route[i+1]]
		}
	}
	return total
}

// routeEmissions estimates CO2 for one route under a load-dependent model.
// The vehicle leaves the depot empty and accumulates each shop's demand as
// it collects returns, so an arc leaving a shop is charged
// distance * (alpha + beta*load) with the load picked up so far.
func routeEmissions(route []int, in *Instance, alpha, beta float64) float64 {
	total := 0.0
	load := 0
	for i := 0; i+1 < len(route); i++ {
		from, to := route[i], route[i+1]
		if from != Depot {
			load += in.Demand[from]
		}
		total += in.Cost[from][to] * (alpha + beta*float64(load))
	}
	return total
}

// routeSetEmissions sums routeEmissions over all routes.
func routeSetEmissions(rs RouteSet, in *Instance, alpha, beta float64) float64 {
	total := 0.0
	for _, route := range rs {
		total += routeEmissions(route, in, alpha, beta)
	}
	return total
}

// tourCost evaluates a tour by splitting it into feasible routes first.
func tourCost(tour Tour, in *Instance) float64 {
	return routeSetCost(splitTour(tour, in), in)
}
