package facade

import (
	"time"

	"jobkernel/internal/dispatcher"
	"jobkernel/internal/engine"
)

// Request is a client request. Each request maps to exactly one dispatcher
// command.
type Request interface {
	command() (dispatcher.Command, error)
}

type (
	ListImages struct{}

	CreateContainer struct {
		Name     string            `json:"name,omitempty"`
		Image    string            `json:"image"`
		Command  []string          `json:"command,omitempty"`
		Env      map[string]string `json:"env,omitempty"`
		Labels   map[string]string `json:"labels,omitempty"`
		CPU      float64           `json:"cpu,omitempty"`
		MemoryMB int               `json:"memoryMb,omitempty"`
	}

	StartContainer struct {
		ContainerID string `json:"containerId"`
	}

	StopContainer struct {
		ContainerID string        `json:"containerId"`
		Timeout     time.Duration `json:"timeout,omitempty"`
	}

	RemoveContainer struct {
		ContainerID string `json:"containerId"`
		Force       bool   `json:"force,omitempty"`
	}

	GetContainerLogs struct {
		ContainerID string    `json:"containerId"`
		Tail        int       `json:"tail,omitempty"`
		Since       time.Time `json:"since,omitempty"`
	}

	WatchEvents struct{}

	Ping struct{}
)

func (ListImages) command() (dispatcher.Command, error) { return dispatcher.ListImages{}, nil }

func (r CreateContainer) command() (dispatcher.Command, error) {
	return validated(dispatcher.CreateContainer{Spec: engine.ContainerSpec{
		Name:     r.Name,
		Image:    r.Image,
		Command:  r.Command,
		Env:      r.Env,
		Labels:   r.Labels,
		CPU:      r.CPU,
		MemoryMB: r.MemoryMB,
	}})
}

func (r StartContainer) command() (dispatcher.Command, error) {
	return validated(dispatcher.StartContainer{ContainerID: r.ContainerID})
}

func (r StopContainer) command() (dispatcher.Command, error) {
	return validated(dispatcher.StopContainer{ContainerID: r.ContainerID, Timeout: r.Timeout})
}

func (r RemoveContainer) command() (dispatcher.Command, error) {
	return validated(dispatcher.RemoveContainer{ContainerID: r.ContainerID, Force: r.Force})
}

func (r GetContainerLogs) command() (dispatcher.Command, error) {
	return validated(dispatcher.GetContainerLogs{
		ContainerID: r.ContainerID,
		Options:     engine.LogOptions{Tail: r.Tail, Since: r.Since},
	})
}

func (WatchEvents) command() (dispatcher.Command, error) { return dispatcher.WatchEvents{}, nil }

func (Ping) command() (dispatcher.Command, error) { return dispatcher.Ping{}, nil }

func validated(c dispatcher.Command) (dispatcher.Command, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
