package delivery

import (
	"time"

	"jobkernel/internal/config"
	"jobkernel/pkg/backoff"
)

// Config holds configuration for the webhook queue.
type Config struct {
	BufferSize  int           // pending deliveries (default: 10000)
	Workers     int           // concurrent delivery goroutines (default: 10)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)
	MaxRetries  int           // retries after the first attempt (default: 3, negative disables)

	// Retry spaces attempts to the same destination.
	Retry backoff.Policy
	// BreakerThreshold consecutive failures open a destination's breaker
	// for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// MaxRequeues bounds how often a delivery is parked behind an open breaker.
	MaxRequeues int
}

// LoadConfig loads queue configuration. src may be nil.
func LoadConfig(src *config.Source) Config {
	return Config{
		BufferSize:  src.Int("DELIVERY_BUFFER_SIZE", 10000),
		Workers:     src.Int("DELIVERY_WORKERS", 10),
		HTTPTimeout: src.Duration("DELIVERY_HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:  src.Int("DELIVERY_MAX_RETRIES", 3),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.Retry == (backoff.Policy{}) {
		c.Retry = backoff.Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = 10
	}
	return c
}
