// Package config provides configuration loading from environment variables
// and an optional YAML file.
package config

import (
	"time"
)

// Store drivers.
const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// ServiceConfig holds configuration for the jobs service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	StoreDriver       string        // "file" or "sqlite"
	StorePath         string        // Snapshot file or SQLite database path
	EventSource       string        // CloudEvents source attribute of lifecycle events
}

// LoadServiceConfig loads service configuration. Environment variables take
// precedence over values from the file behind src (src may be nil).
func LoadServiceConfig(src *Source) *ServiceConfig {
	return &ServiceConfig{
		Port:              src.String("PORT", "8080"),
		MetricsPort:       src.String("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(src.String("API_KEY_FILE", "")),
		ShutdownDrainWait: src.Duration("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		StoreDriver:       src.String("STORE_DRIVER", StoreDriverFile),
		StorePath:         src.String("STORE_PATH", "data/jobstore.json"),
		EventSource:       src.String("EVENT_SOURCE", "jobkernel"),
	}
}
