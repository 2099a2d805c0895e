package eventbus

import "jobkernel/internal/config"

// Config holds configuration for a bus.
type Config struct {
	InboxSize int // pending messages before Publish blocks (default: 1024)
}

// LoadConfig loads bus configuration. src may be nil.
func LoadConfig(src *config.Source) Config {
	return Config{
		InboxSize: src.Int("BUS_INBOX_SIZE", 1024),
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	return c
}
