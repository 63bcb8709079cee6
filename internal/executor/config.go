package executor

import "time"

// Config holds the Docker executor settings. It is resolved by the caller
// (flags, .env) and passed in explicitly.
type Config struct {
	Image     string        // Python image to run cells in
	CPU       string        // CPU limit, e.g. "2"
	Memory    string        // memory limit, e.g. "1g"
	Timeout   time.Duration // per-cell wall clock limit
	Workspace string        // host directory bind-mounted into the container
}

// DefaultConfig returns executor defaults suitable for data analysis work.
func DefaultConfig(workspace string) Config {
	return Config{
		Image:     "python:3.11-slim",
		CPU:       "2",
		Memory:    "1g",
		Timeout:   2 * time.Minute,
		Workspace: workspace,
	}
}
