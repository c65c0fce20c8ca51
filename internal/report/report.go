// Package report renders solved route sets as operator-facing text and as an
// arc CSV for downstream tooling.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"revlog/internal/cvrp"
)

// WriteText renders the solution analysis: header, aggregate figures, then a
// block per route.
func WriteText(w io.Writer, in *cvrp.Instance, sol *cvrp.Solution, generatedAt time.Time) error {
	m := sol.Metrics()
	method := in.Method
	if method == "" {
		method = "unknown"
	}

	var b strings.Builder
	b.WriteString("REVERSE LOGISTICS SOLUTION ANALYSIS\n")
	b.WriteString("===================================\n")
	fmt.Fprintf(&b, "Solver: %s\n", method)
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Problem size: %d shops\n", in.NumShops())
	fmt.Fprintf(&b, "Vehicle capacity: %d units\n\n", in.Capacity)

	fmt.Fprintf(&b, "Number of routes: %d\n", m.NumRoutes)
	fmt.Fprintf(&b, "Total distance: %.2f units\n", m.TotalDistance)
	fmt.Fprintf(&b, "Estimated emissions: %.2f kg CO2\n\n", m.Emissions)

	for _, r := range m.Routes {
		fmt.Fprintf(&b, "Route %d:\n", r.RouteID)
		fmt.Fprintf(&b, "  Sequence: %s\n", joinSequence(r.Sequence))
		fmt.Fprintf(&b, "  Distance: %.2f units\n", r.Distance)
		fmt.Fprintf(&b, "  Load: %d / %d units\n", r.Load, r.Capacity)
		fmt.Fprintf(&b, "  Shops visited: %d\n", r.NumShops)
		fmt.Fprintf(&b, "  Emissions: %.2f kg CO2\n\n", r.Emissions)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func joinSequence(seq []int) string {
	parts := make([]string, len(seq))
	for i, loc := range seq {
		parts[i] = strconv.Itoa(loc)
	}
	return strings.Join(parts, " -> ")
}

// WriteArcsCSV emits the active arcs as a two-column CSV.
func WriteArcsCSV(w io.Writer, sol *cvrp.Solution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"from", "to"}); err != nil {
		return err
	}
	for _, a := range sol.ActiveArcs() {
		if err := cw.Write([]string{strconv.Itoa(a.From), strconv.Itoa(a.To)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
