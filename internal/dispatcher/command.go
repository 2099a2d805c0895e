package dispatcher

import (
	"strings"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/engine"
)

// Command is one unit of work against the engine. The set is closed: the
// dispatcher performs each variant itself.
type Command interface {
	// Name identifies the command in logs, metrics and failures.
	Name() string
	// Validate reports malformed commands before any engine call.
	Validate() error
	isCommand()
}

type (
	// ListImages lists the images present on the engine.
	ListImages struct{}

	// CreateContainer creates, but does not start, a container.
	CreateContainer struct {
		Spec engine.ContainerSpec
	}

	// StartContainer starts a container. Starting a running container succeeds
	// with AlreadyStarted set.
	StartContainer struct {
		ContainerID string
	}

	// StopContainer stops a container, killing it after Timeout.
	StopContainer struct {
		ContainerID string
		Timeout     time.Duration
	}

	// RemoveContainer deletes a container.
	RemoveContainer struct {
		ContainerID string
		Force       bool
	}

	// GetContainerLogs fetches the output of a container.
	GetContainerLogs struct {
		ContainerID string
		Options     engine.LogOptions
	}

	// WatchEvents opens a container event stream. The stream outlives the
	// command and ends when the request context is done, the dispatcher is
	// closed or the stream is stopped.
	WatchEvents struct{}

	// Ping checks that the engine answers.
	Ping struct{}
)

func (ListImages) Name() string       { return "ListImages" }
func (CreateContainer) Name() string  { return "CreateContainer" }
func (StartContainer) Name() string   { return "StartContainer" }
func (StopContainer) Name() string    { return "StopContainer" }
func (RemoveContainer) Name() string  { return "RemoveContainer" }
func (GetContainerLogs) Name() string { return "GetContainerLogs" }
func (WatchEvents) Name() string      { return "WatchEvents" }
func (Ping) Name() string             { return "Ping" }

func (ListImages) Validate() error  { return nil }
func (WatchEvents) Validate() error { return nil }
func (Ping) Validate() error        { return nil }

func (c CreateContainer) Validate() error {
	if strings.TrimSpace(c.Spec.Image) == "" {
		return apperrors.Validation("image", "image is required")
	}
	if c.Spec.CPU < 0 {
		return apperrors.Validation("cpu", "cpu must not be negative")
	}
	if c.Spec.MemoryMB < 0 {
		return apperrors.Validation("memoryMb", "memory must not be negative")
	}
	return nil
}

func (c StartContainer) Validate() error { return validateContainerID(c.ContainerID) }

func (c StopContainer) Validate() error {
	if c.Timeout < 0 {
		return apperrors.Validation("timeout", "timeout must not be negative")
	}
	return validateContainerID(c.ContainerID)
}

func (c RemoveContainer) Validate() error { return validateContainerID(c.ContainerID) }

func (c GetContainerLogs) Validate() error {
	if c.Options.Tail < 0 {
		return apperrors.Validation("tail", "tail must not be negative")
	}
	return validateContainerID(c.ContainerID)
}

func (ListImages) isCommand()       {}
func (CreateContainer) isCommand()  {}
func (StartContainer) isCommand()   {}
func (StopContainer) isCommand()    {}
func (RemoveContainer) isCommand()  {}
func (GetContainerLogs) isCommand() {}
func (WatchEvents) isCommand()      {}
func (Ping) isCommand()             {}

func validateContainerID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.Validation("containerId", "container ID is required")
	}
	return nil
}
