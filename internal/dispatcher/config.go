package dispatcher

import (
	"time"

	"jobkernel/internal/config"
)

// Config holds configuration for the command dispatcher.
type Config struct {
	InboxSize      int           // accepted requests not yet started (default: 256)
	CommandTimeout time.Duration // per-command deadline, except WatchEvents (default: 2m)
}

// LoadConfig loads dispatcher configuration. src may be nil.
func LoadConfig(src *config.Source) Config {
	return Config{
		InboxSize:      src.Int("DISPATCHER_INBOX_SIZE", 256),
		CommandTimeout: src.Duration("DISPATCHER_COMMAND_TIMEOUT", 2*time.Minute),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 2 * time.Minute
	}
	return c
}
