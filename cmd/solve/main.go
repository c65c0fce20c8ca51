// Command solve runs the CVRP solver from the command line against a CSV
// instance file or a randomly generated one, then writes the solution report
// and arc list to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"revlog/internal/cvrp"
	"revlog/internal/dataset"
	"revlog/internal/report"
)

func main() {
	var (
		file          = flag.String("file", "", "path to a problem instance CSV")
		shops         = flag.Int("shops", 10, "number of shops for a generated instance")
		capacity      = flag.Int("capacity", 10, "vehicle capacity")
		seed          = flag.Int64("seed", 42, "random seed")
		timeLimit     = flag.Int("time-limit", 30, "solver time limit in seconds")
		iterations    = flag.Int("iterations", 100, "max iterations")
		variant       = flag.String("variant", "ils", "solver variant (see below)")
		alpha         = flag.Float64("alpha", cvrp.DefaultAlpha, "base CO2 per km (kg/km)")
		beta          = flag.Float64("beta", cvrp.DefaultBeta, "load-dependent emission factor (kg/km/kg)")
		verbose       = flag.Bool("verbose", false, "log search progress")
		createSamples = flag.Bool("create-samples", false, "write sample instance files and exit")
		arcsFile      = flag.String("arcs-out", "reverse_logistics_solution.csv", "arc list output file")
		reportFile    = flag.String("report-out", "solution_details.txt", "report output file")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nVariants: %v\n", cvrp.Variants())
	}
	flag.Parse()

	if *createSamples {
		if err := dataset.WriteSamples("."); err != nil {
			log.Fatalf("create samples: %v", err)
		}
		fmt.Println("Sample instances written")
		return
	}

	var (
		inst *cvrp.Instance
		err  error
	)
	if *file != "" {
		inst, err = dataset.Load(*file)
		if err != nil {
			log.Fatalf("load instance: %v", err)
		}
		fmt.Printf("Loaded problem instance from %s\n", *file)
	} else {
		inst, err = dataset.Generate(*shops, *capacity, *seed)
		if err != nil {
			log.Fatalf("generate instance: %v", err)
		}
		fmt.Printf("Created random problem instance with %d shops\n", *shops)
	}
	if inst.Alpha == nil {
		inst.Alpha = alpha
	}
	if inst.Beta == nil {
		inst.Beta = beta
	}
	inst.Method = *variant

	v, err := cvrp.NewVariant(*variant, inst)
	if err != nil {
		log.Fatalf("solver: %v", err)
	}
	if err := v.Build(); err != nil {
		log.Fatalf("instance: %v", err)
	}

	res, err := v.Solve(context.Background(), cvrp.Params{
		TimeLimit:  time.Duration(*timeLimit) * time.Second,
		Iterations: *iterations,
		Seed:       *seed,
		Verbose:    *verbose,
	})
	if err != nil {
		log.Fatalf("solve: %v", err)
	}

	sol := cvrp.FromRoutes(inst, res.Routes)
	if err := report.WriteText(os.Stdout, inst, sol, time.Now()); err != nil {
		log.Fatalf("report: %v", err)
	}
	fmt.Printf("\nIterations: %d  improvements: %d  restarts: %d  runtime: %v\n",
		res.Stats.Iterations, res.Stats.Improvements, res.Stats.Restarts, res.Stats.Runtime.Round(time.Millisecond))

	rf, err := os.Create(*reportFile)
	if err != nil {
		log.Fatalf("write report: %v", err)
	}
	defer rf.Close()
	if err := report.WriteText(rf, inst, sol, time.Now()); err != nil {
		log.Fatalf("write report: %v", err)
	}

	af, err := os.Create(*arcsFile)
	if err != nil {
		log.Fatalf("write arcs: %v", err)
	}
	defer af.Close()
	if err := report.WriteArcsCSV(af, sol); err != nil {
		log.Fatalf("write arcs: %v", err)
	}
	fmt.Printf("Solution files written to %s and %s\n", *reportFile, *arcsFile)
}
