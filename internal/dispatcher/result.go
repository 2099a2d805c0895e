package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobkernel/internal/containerevent"
	"jobkernel/internal/engine"
)

// Result is the single reply to a Request: one of the success types below
// or *Failure. Every result carries the correlation identity of its request.
type Result interface {
	Correlation() string
	isResult()
}

// Envelope carries the correlation identity of a result.
type Envelope struct {
	CorrelationID string `json:"correlationId"`
}

// Correlation implements Result.
func (e Envelope) Correlation() string { return e.CorrelationID }

type ImageList struct {
	Envelope
	Images []engine.Image `json:"images"`
}

type ContainerCreated struct {
	Envelope
	ContainerID string `json:"containerId"`
}

type ContainerStarted struct {
	Envelope
	ContainerID    string `json:"containerId"`
	AlreadyStarted bool   `json:"alreadyStarted"`
}

type ContainerStopped struct {
	Envelope
	ContainerID string `json:"containerId"`
}

type ContainerRemoved struct {
	Envelope
	ContainerID string `json:"containerId"`
}

type ContainerLogs struct {
	Envelope
	ContainerID string            `json:"containerId"`
	Entries     []engine.LogEntry `json:"entries"`
}

// EventStream is an open container event stream. Callers must call Stop
// when they are done reading.
type EventStream struct {
	Envelope
	Events <-chan containerevent.Event
	Errors <-chan error

	stop     context.CancelFunc
	stopOnce sync.Once
}

// Stop ends the stream.
func (s *EventStream) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

type Pong struct {
	Envelope
	Latency time.Duration `json:"latency"`
}

// Failure reports a unit of work that did not succeed: an engine error, a
// timeout, a cancellation, an invalid command or a panic.
type Failure struct {
	Envelope
	Command string `json:"command"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s failed: %s", f.Command, f.Reason)
	}
	return fmt.Sprintf("%s failed: %s: %v", f.Command, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (ImageList) isResult()        {}
func (ContainerCreated) isResult() {}
func (ContainerStarted) isResult() {}
func (ContainerStopped) isResult() {}
func (ContainerRemoved) isResult() {}
func (ContainerLogs) isResult()    {}
func (*EventStream) isResult()     {}
func (Pong) isResult()             {}
func (*Failure) isResult()         {}
