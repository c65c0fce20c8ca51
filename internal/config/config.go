// Package config loads service configuration from environment variables and
// an optional YAML file holding solver defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SolverDefaults are the parameters applied to solve requests that omit them.
type SolverDefaults struct {
	Variant     string  `yaml:"variant"`
	Iterations  int     `yaml:"iterations"`
	TimeLimitMs int     `yaml:"timeLimitMs"`
	Alpha       float64 `yaml:"alpha"`
	Beta        float64 `yaml:"beta"`
}

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	RateRPS     float64
	RateBurst   int
	Solver      SolverDefaults
}

// Load reads configuration. Environment variables: PORT, DATABASE_URL,
// REDIS_URL, RATE_RPS, RATE_BURST, SOLVER_CONFIG (path to a YAML file).
func Load() (Config, error) {
	cfg := Config{
		Port:        envOr("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		RateRPS:     envFloat("RATE_RPS", 20),
		RateBurst:   envInt("RATE_BURST", 40),
		Solver: SolverDefaults{
			Variant:     "ils",
			Iterations:  100,
			TimeLimitMs: 60000,
			Alpha:       0.15,
			Beta:        0.02,
		},
	}
	if path := os.Getenv("SOLVER_CONFIG"); path != "" {
		if err := loadSolverYAML(path, &cfg.Solver); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func loadSolverYAML(path string, out *SolverDefaults) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("solver config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("solver config %s: %w", path, err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
