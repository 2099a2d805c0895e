// Package engine defines the container engine the command dispatcher drives.
package engine

import (
	"context"
	"time"

	"jobkernel/internal/containerevent"
)

// Image is an image available on the engine.
type Image struct {
	ID      string    `json:"id"`
	Tags    []string  `json:"tags"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name     string            `json:"name,omitempty"`
	Image    string            `json:"image"`
	Command  []string          `json:"command,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
	CPU      float64           `json:"cpu,omitempty"`      // cores
	MemoryMB int               `json:"memoryMb,omitempty"` // megabytes
}

// LogOptions selects which log lines to fetch.
type LogOptions struct {
	Tail  int       // last N lines, 0 for all
	Since time.Time // zero for no lower bound
}

// LogEntry is one line of container output.
type LogEntry struct {
	Stream string `json:"stream"` // "stdout" or "stderr"
	Line   string `json:"line"`
}

// Engine is an asynchronous container API. Every call may block on the
// network and must honour ctx.
type Engine interface {
	ListImages(ctx context.Context) ([]Image, error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	// StartContainer reports alreadyStarted when the container was running.
	StartContainer(ctx context.Context, id string) (alreadyStarted bool, err error)
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	ContainerLogs(ctx context.Context, id string, opts LogOptions) ([]LogEntry, error)
	// Events streams container lifecycle events until ctx is done. The
	// error channel yields at most one value.
	Events(ctx context.Context) (<-chan containerevent.Event, <-chan error)
	Ping(ctx context.Context) error
	Close() error
}
