package config

import (
	"os"
	"path/filepath"
)

// RunConfig holds configuration for one workflow run.
type RunConfig struct {
	OutDir      string // Run output directory (default "./run")
	CatalogPath string // Replica catalog to load and persist
	Parallel    bool   // Run independent steps concurrently
	Jobs        int    // Concurrent step cap when Parallel (0 = unlimited)
	ReportDB    string // SQLite status database path ("" disables persistence)
	LogLevel    string // Log level: debug, info, warn, error
	LogFormat   string // Log format: text, json
}

// DefaultRunConfig returns sensible defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		OutDir:      "./run",
		CatalogPath: "replica_catalog.json",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// ServeConfig holds configuration for the status API server.
type ServeConfig struct {
	Addr      string // Listen address (default ":8080")
	ReportDB  string // SQLite status database path
	LogLevel  string
	LogFormat string
}

// DefaultServeConfig returns sensible defaults.
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Addr:      ":8080",
		ReportDB:  DefaultReportDB(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// SandboxConfig holds configuration for the sandbox store.
type SandboxConfig struct {
	Backend  string // "local" or "s3"
	Dir      string // local store directory
	Bucket   string // s3 bucket
	Region   string // s3 region
	Endpoint string // optional custom s3 endpoint
	Prefix   string // optional s3 key prefix
}

// DefaultSandboxConfig returns a local store under the user's data dir.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Backend: "local",
		Dir:     filepath.Join(dataDir(), "sandboxstore"),
	}
}

// DefaultReportDB returns the default status database path.
func DefaultReportDB() string {
	return filepath.Join(dataDir(), "runs.db")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gridcwl"
	}
	return filepath.Join(home, ".gridcwl")
}
