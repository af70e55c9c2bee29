/*
Package configs reads and writes the JSON run configuration: solver
parameters, transport layout for distributed runs, and output paths.
*/
package configs

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/solver"
)

// Host is one machine a worker rank runs on. Password auth mirrors the
// closed-lab deployment model; these files must not leave the cluster.
type Host struct {
	Address  string
	Username string
	Password string
}

// Config is the on-disk configuration. Fields omitted from the file
// keep the defaults.
type Config struct {
	Noise         float32
	Threshold     float32
	MaxIterations int
	Workers       int

	BasePort int
	Hosts    []Host // one per rank, collector first; empty for local runs

	Output     string // result image path
	Chart      string // convergence chart path, empty to skip
	Movie      string // MJPEG movie path, empty to skip
	FrameEvery int    // iterations between movie frames
}

// Defaults mirrors the reference constants.
func Defaults() Config {
	return Config{
		Noise:         solver.DefaultNoise,
		Threshold:     solver.DefaultThreshold,
		MaxIterations: solver.DefaultMaxIterations,
		Workers:       1,
		BasePort:      6464,
		Output:        "resultat.png",
		FrameEvery:    50,
	}
}

// Read loads a configuration file over the defaults.
func Read(path string) (Config, error) {
	c := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("configs: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("configs: parsing %s: %w", path, err)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c, nil
}

// Write saves the configuration, indented so it can be hand-edited.
func Write(path string, c Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("configs: encoding: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("configs: %w", err)
	}
	return nil
}
