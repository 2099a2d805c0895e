package docker

import (
	"time"

	"jobkernel/internal/config"
)

// Config holds configuration for the Docker engine adapter.
type Config struct {
	ManagedBy     string        // value of the managed-by label put on created containers
	PullIfMissing bool          // pull images that are not present locally before create
	StopTimeout   time.Duration // used when a stop request carries no timeout
}

// LoadConfig loads Docker adapter configuration. src may be nil.
func LoadConfig(src *config.Source) Config {
	return Config{
		ManagedBy:     src.String("DOCKER_MANAGED_BY", "jobkernel"),
		PullIfMissing: src.Bool("DOCKER_PULL_IF_MISSING", true),
		StopTimeout:   src.Duration("DOCKER_STOP_TIMEOUT", 10*time.Second),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ManagedBy == "" {
		c.ManagedBy = "jobkernel"
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	return c
}
