// Package dispatcher owns the connection to the container engine. Requests
// are accepted by a single loop goroutine; each command then runs in its own
// goroutine so a slow engine call never holds up the loop. Every accepted
// request gets exactly one Result on its reply channel.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/engine"
)

// Request asks the dispatcher to perform Command. The result is sent on
// ReplyTo, which the caller must keep draining until it arrives.
type Request struct {
	CorrelationID string
	Command       Command
	ReplyTo       chan<- Result
}

// MetricsRecorder is an optional interface for recording dispatcher metrics.
type MetricsRecorder interface {
	RecordCommand(ctx context.Context, command string, success bool, durationSeconds float64)
	RecordCommandsInFlight(ctx context.Context, delta int64)
}

type envelope struct {
	ctx context.Context
	req Request
}

// Dispatcher is the command dispatcher actor.
type Dispatcher struct {
	engine  engine.Engine
	cfg     Config
	metrics MetricsRecorder
	logger  *slog.Logger

	inbox chan envelope
	quit  chan struct{}
	done  chan struct{}

	// mu orders sends into inbox before Close stops the loop; closed is set
	// under the write lock so no send can land after the final drain.
	mu     sync.RWMutex
	closed bool

	// lifetime is cancelled by Close and bounds every unit of work.
	lifetime context.Context
	cancel   context.CancelFunc
	// abandon releases reply sends nobody will read once Close gives up.
	abandon chan struct{}

	work      sync.WaitGroup
	inFlight  atomic.Int64
	closeOnce sync.Once
}

// New starts a dispatcher that owns eng.
func New(eng engine.Engine, cfg Config, metrics MetricsRecorder) *Dispatcher {
	cfg = cfg.withDefaults()
	lifetime, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		engine:   eng,
		cfg:      cfg,
		metrics:  metrics,
		logger:   slog.With("component", "dispatcher"),
		inbox:    make(chan envelope, cfg.InboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		lifetime: lifetime,
		cancel:   cancel,
		abandon:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch hands req to the dispatcher. ctx bounds both the hand-off and the
// unit of work. Once Dispatch returns nil, exactly one Result is sent on
// req.ReplyTo; a non-nil error means none will be.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	if req.ReplyTo == nil {
		return apperrors.Validation("replyTo", "reply channel is required")
	}
	if req.Command == nil {
		return apperrors.Validation("command", "command is required")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return apperrors.Unavailable("dispatcher")
	}

	select {
	case d.inbox <- envelope{ctx: ctx, req: req}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of commands currently executing.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Close stops accepting requests, cancels in-flight work and waits, bounded
// by ctx, until every accepted request has been answered. The engine is
// closed afterwards.
func (d *Dispatcher) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.quit)
		d.cancel()
		<-d.done

		finished := make(chan struct{})
		go func() {
			d.work.Wait()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			close(d.abandon)
			err = ctx.Err()
			d.logger.Warn("Dispatcher shutdown timed out", "inFlight", d.inFlight.Load())
		}

		if cerr := d.engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
		d.logger.Info("Dispatcher stopped")
	})
	return err
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.quit:
			d.rejectPending()
			return
		case env := <-d.inbox:
			d.work.Add(1)
			go d.execute(env)
		}
	}
}

// rejectPending answers requests that were accepted but never started.
func (d *Dispatcher) rejectPending() {
	for {
		select {
		case env := <-d.inbox:
			d.work.Add(1)
			go func() {
				defer d.work.Done()
				d.reply(env.req, &Failure{
					Envelope: Envelope{CorrelationID: env.req.CorrelationID},
					Command:  env.req.Command.Name(),
					Reason:   "dispatcher closed",
					Err:      apperrors.Unavailable("dispatcher"),
				})
			}()
		default:
			return
		}
	}
}

func (d *Dispatcher) execute(env envelope) {
	defer d.work.Done()

	req := env.req
	name := req.Command.Name()
	logger := d.logger.With("correlationId", req.CorrelationID, "command", name)

	d.inFlight.Add(1)
	if d.metrics != nil {
		d.metrics.RecordCommandsInFlight(context.Background(), 1)
	}
	defer func() {
		d.inFlight.Add(-1)
		if d.metrics != nil {
			d.metrics.RecordCommandsInFlight(context.Background(), -1)
		}
	}()

	_, streaming := req.Command.(WatchEvents)
	ctx, cancel := d.unitContext(env.ctx, streaming)

	start := time.Now()
	result := d.perform(ctx, cancel, req)
	failure, failed := result.(*Failure)
	if !streaming || failed {
		cancel()
	}

	if d.metrics != nil {
		d.metrics.RecordCommand(context.Background(), name, !failed, time.Since(start).Seconds())
	}
	if failed {
		logger.Warn("Command failed", "reason", failure.Reason, "error", failure.Err)
	} else {
		logger.Debug("Command completed", "duration", time.Since(start))
	}

	d.reply(req, result)
}

// unitContext derives the context of one unit of work from the request
// context and the dispatcher lifetime. Streams get no deadline.
func (d *Dispatcher) unitContext(parent context.Context, streaming bool) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(d.lifetime, cancel)

	if !streaming {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, d.cfg.CommandTimeout)
		return ctx, func() {
			cancelTimeout()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// perform runs the engine call for req. A panic becomes a Failure.
func (d *Dispatcher) perform(ctx context.Context, cancel context.CancelFunc, req Request) (result Result) {
	corr := Envelope{CorrelationID: req.CorrelationID}
	name := req.Command.Name()

	defer func() {
		if r := recover(); r != nil {
			result = &Failure{
				Envelope: corr,
				Command:  name,
				Reason:   "panic",
				Err:      apperrors.Internal("dispatcher."+name, fmt.Errorf("%v", r)),
			}
		}
	}()

	if err := req.Command.Validate(); err != nil {
		return &Failure{Envelope: corr, Command: name, Reason: "invalid command", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return d.failure(ctx, corr, name, err)
	}

	switch c := req.Command.(type) {
	case ListImages:
		images, err := d.engine.ListImages(ctx)
		if err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ImageList{Envelope: corr, Images: images}

	case CreateContainer:
		id, err := d.engine.CreateContainer(ctx, c.Spec)
		if err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ContainerCreated{Envelope: corr, ContainerID: id}

	case StartContainer:
		already, err := d.engine.StartContainer(ctx, c.ContainerID)
		if err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ContainerStarted{Envelope: corr, ContainerID: c.ContainerID, AlreadyStarted: already}

	case StopContainer:
		if err := d.engine.StopContainer(ctx, c.ContainerID, c.Timeout); err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ContainerStopped{Envelope: corr, ContainerID: c.ContainerID}

	case RemoveContainer:
		if err := d.engine.RemoveContainer(ctx, c.ContainerID, c.Force); err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ContainerRemoved{Envelope: corr, ContainerID: c.ContainerID}

	case GetContainerLogs:
		entries, err := d.engine.ContainerLogs(ctx, c.ContainerID, c.Options)
		if err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return ContainerLogs{Envelope: corr, ContainerID: c.ContainerID, Entries: entries}

	case WatchEvents:
		events, errs := d.engine.Events(ctx)
		return &EventStream{Envelope: corr, Events: events, Errors: errs, stop: cancel}

	case Ping:
		start := time.Now()
		if err := d.engine.Ping(ctx); err != nil {
			return d.failure(ctx, corr, name, err)
		}
		return Pong{Envelope: corr, Latency: time.Since(start)}

	default:
		return &Failure{Envelope: corr, Command: name, Reason: "unsupported command"}
	}
}

// failure classifies err using the state of the unit's context.
func (d *Dispatcher) failure(ctx context.Context, corr Envelope, name string, err error) *Failure {
	reason := "engine error"
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = "timed out"
		err = errors.Join(context.DeadlineExceeded, err)
	case d.lifetime.Err() != nil:
		reason = "dispatcher closed"
		err = errors.Join(apperrors.Unavailable("dispatcher"), err)
	case errors.Is(ctx.Err(), context.Canceled):
		reason = "cancelled"
		err = errors.Join(context.Canceled, err)
	}
	return &Failure{Envelope: corr, Command: name, Reason: reason, Err: err}
}

func (d *Dispatcher) reply(req Request, result Result) {
	select {
	case req.ReplyTo <- result:
	case <-d.abandon:
		d.logger.Warn("Reply abandoned", "correlationId", req.CorrelationID, "command", req.Command.Name())
	}
}
