// Package dataset reads, writes and generates routing instances. An instance
// on disk is a CSV of locations plus a sidecar "_meta.txt" holding vehicle
// capacity and optional emissions coefficients.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"revlog/internal/cvrp"
)

// MetaPath maps an instance CSV path to its metadata sidecar.
func MetaPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, ".csv") + "_meta.txt"
}

// Load reads an instance CSV (columns id, x_coord, y_coord, demand, depot on
// the first data row) together with its metadata sidecar.
func Load(path string) (*cvrp.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instance: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse instance csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("instance %s has no locations", path)
	}

	header := rows[0]
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, want := range []string{"x_coord", "y_coord", "demand"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("instance %s missing column %q", path, want)
		}
	}

	var x, y []float64
	var demand []int
	for i, row := range rows[1:] {
		xv, err := strconv.ParseFloat(strings.TrimSpace(row[col["x_coord"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d x_coord: %w", i+1, err)
		}
		yv, err := strconv.ParseFloat(strings.TrimSpace(row[col["y_coord"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d y_coord: %w", i+1, err)
		}
		dv, err := strconv.Atoi(strings.TrimSpace(row[col["demand"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d demand: %w", i+1, err)
		}
		x = append(x, xv)
		y = append(y, yv)
		demand = append(demand, dv)
	}

	meta, err := readMeta(MetaPath(path))
	if err != nil {
		return nil, err
	}
	capacity := 10
	if v, ok := meta["capacity"]; ok {
		capacity = int(v)
	}

	in, err := cvrp.NewInstance(x, y, demand, capacity)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", path, err)
	}
	if v, ok := meta["alpha"]; ok {
		alpha := v
		in.Alpha = &alpha
	}
	if v, ok := meta["beta"]; ok {
		beta := v
		in.Beta = &beta
	}
	return in, nil
}

func readMeta(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	out := map[string]float64{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("metadata %s: bad value for %q: %w", path, k, err)
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}

// Save writes the instance CSV and its metadata sidecar next to it.
func Save(in *cvrp.Instance, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "x_coord", "y_coord", "demand"}); err != nil {
		return err
	}
	for i := range in.X {
		rec := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(in.X[i], 'g', -1, 64),
			strconv.FormatFloat(in.Y[i], 'g', -1, 64),
			strconv.Itoa(in.Demand[i]),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write instance csv: %w", err)
	}

	var meta strings.Builder
	fmt.Fprintf(&meta, "capacity=%d\n", in.Capacity)
	if in.Alpha != nil {
		fmt.Fprintf(&meta, "alpha=%s\n", strconv.FormatFloat(*in.Alpha, 'g', -1, 64))
	}
	if in.Beta != nil {
		fmt.Fprintf(&meta, "beta=%s\n", strconv.FormatFloat(*in.Beta, 'g', -1, 64))
	}
	return os.WriteFile(MetaPath(path), []byte(meta.String()), 0o644)
}

// Generate builds a random instance: shops scattered over a 200x100 plane,
// each holding one or two return units.
func Generate(numShops, capacity int, seed int64) (*cvrp.Instance, error) {
	rng := rand.New(rand.NewSource(seed))
	n := numShops + 1
	x := make([]float64, n)
	y := make([]float64, n)
	demand := make([]int, n)
	for i := 0; i < n; i++ {
		x[i] = rng.Float64() * 200
		y[i] = rng.Float64() * 100
	}
	for i := 1; i < n; i++ {
		demand[i] = 1 + rng.Intn(2)
	}
	return cvrp.NewInstance(x, y, demand, capacity)
}

// WriteSamples drops the three stock instances into dir, with emissions
// coefficients graduated by fleet size.
func WriteSamples(dir string) error {
	samples := []struct {
		name        string
		shops, cap  int
		seed        int64
		alpha, beta float64
	}{
		{"small_instance.csv", 10, 10, 42, 0.15, 0.02},
		{"medium_instance.csv", 20, 15, 43, 0.18, 0.025},
		{"large_instance.csv", 50, 20, 44, 0.2, 0.03},
	}
	for _, s := range samples {
		in, err := Generate(s.shops, s.cap, s.seed)
		if err != nil {
			return fmt.Errorf("generate %s: %w", s.name, err)
		}
		alpha, beta := s.alpha, s.beta
		in.Alpha, in.Beta = &alpha, &beta
		if err := Save(in, filepath.Join(dir, s.name)); err != nil {
			return fmt.Errorf("save %s: %w", s.name, err)
		}
	}
	return nil
}
