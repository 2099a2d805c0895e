// Package facade is the client-facing side of the kernel. Every request is
// tracked by the facade goroutine through Received, Dispatched and finally
// Completed or Failed, and is handed to the command dispatcher exactly once.
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/dispatcher"
)

// State is the lifecycle state of a request.
type State string

const (
	StateReceived   State = "received"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Dispatcher is the command dispatcher as seen by the facade.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) error
}

// MetricsRecorder is an optional interface for recording facade metrics.
type MetricsRecorder interface {
	RecordFacadeTransition(ctx context.Context, request string, state string)
}

// Stats counts requests by state. Pending requests are in StateDispatched.
type Stats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

type tracked struct {
	correlationID string
	command       string
	state         State
	out           chan dispatcher.Result
}

type submitMsg struct {
	ctx           context.Context
	correlationID string
	command       dispatcher.Command
	ack           chan submitAck
}

type submitAck struct {
	out <-chan dispatcher.Result
	err error
}

type completionMsg struct {
	seq    uint64
	result dispatcher.Result
}

// Facade is the orchestration facade actor.
type Facade struct {
	dispatcher Dispatcher
	metrics    MetricsRecorder
	logger     *slog.Logger

	submits     chan submitMsg
	completions chan completionMsg
	stats       chan chan Stats
	quit        chan struct{}
	abandon     chan struct{}
	done        chan struct{}

	closeOnce sync.Once
}

// New starts a facade in front of d.
func New(d Dispatcher, metrics MetricsRecorder) *Facade {
	f := &Facade{
		dispatcher:  d,
		metrics:     metrics,
		logger:      slog.With("component", "facade"),
		submits:     make(chan submitMsg),
		completions: make(chan completionMsg),
		stats:       make(chan chan Stats),
		quit:        make(chan struct{}),
		abandon:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go f.run()
	return f
}

// Submit validates req and dispatches it. The returned channel receives the
// dispatcher's result, carrying correlationID, and is then closed. Validation
// errors are returned before the request is received.
func (f *Facade) Submit(ctx context.Context, correlationID string, req Request) (<-chan dispatcher.Result, error) {
	if req == nil {
		return nil, apperrors.Validation("request", "request is required")
	}
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}

	msg := submitMsg{ctx: ctx, correlationID: correlationID, command: cmd, ack: make(chan submitAck, 1)}
	select {
	case f.submits <- msg:
	case <-f.quit:
		return nil, apperrors.Unavailable("facade")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ack := <-msg.ack
	return ack.out, ack.err
}

// Stats returns the current request counts.
func (f *Facade) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case f.stats <- reply:
		return <-reply
	case <-f.done:
		return Stats{}
	}
}

// Close stops accepting requests and waits for pending ones to complete,
// bounded by ctx. Requests still pending when ctx expires fail.
func (f *Facade) Close(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		close(f.quit)
		select {
		case <-f.done:
		case <-ctx.Done():
			close(f.abandon)
			<-f.done
			err = ctx.Err()
		}
	})
	return err
}

func (f *Facade) run() {
	defer close(f.done)

	var (
		seq      uint64
		pending  = make(map[uint64]*tracked)
		stats    Stats
		quit     = f.quit
		draining bool
	)

	for {
		if draining && len(pending) == 0 {
			f.logger.Info("Facade stopped", "completed", stats.Completed, "failed", stats.Failed)
			return
		}

		select {
		case <-quit:
			draining = true
			quit = nil

		case <-f.abandon:
			for _, t := range pending {
				f.finish(t, &dispatcher.Failure{
					Envelope: dispatcher.Envelope{CorrelationID: t.correlationID},
					Command:  t.command,
					Reason:   "facade closed",
					Err:      apperrors.Unavailable("facade"),
				}, &stats)
			}
			return

		case msg := <-f.submits:
			if draining {
				msg.ack <- submitAck{err: apperrors.Unavailable("facade")}
				continue
			}
			seq++
			t := &tracked{
				correlationID: msg.correlationID,
				command:       msg.command.Name(),
				out:           make(chan dispatcher.Result, 1),
			}
			f.transition(t, StateReceived)

			if err := f.dispatch(msg, seq, t); err != nil {
				stats.Rejected++
				msg.ack <- submitAck{err: err}
				continue
			}
			pending[seq] = t
			msg.ack <- submitAck{out: t.out}

		case c := <-f.completions:
			t, ok := pending[c.seq]
			if !ok {
				// Only reachable if the dispatcher replied twice.
				f.logger.Error("Completion for unknown request", "seq", c.seq, "correlationId", c.result.Correlation())
				continue
			}
			delete(pending, c.seq)
			f.finish(t, c.result, &stats)

		case reply := <-f.stats:
			s := stats
			s.Pending = len(pending)
			reply <- s
		}
	}
}

// dispatch hands the request to the dispatcher and starts relaying its reply
// back into the facade loop.
func (f *Facade) dispatch(msg submitMsg, seq uint64, t *tracked) error {
	reply := make(chan dispatcher.Result, 1)
	err := f.dispatcher.Dispatch(msg.ctx, dispatcher.Request{
		CorrelationID: msg.correlationID,
		Command:       msg.command,
		ReplyTo:       reply,
	})
	if err != nil {
		f.logger.Warn("Dispatch rejected", "correlationId", t.correlationID, "command", t.command, "error", err)
		return err
	}
	f.transition(t, StateDispatched)

	go func() {
		r := <-reply
		select {
		case f.completions <- completionMsg{seq: seq, result: r}:
		case <-f.done:
			// Abandoned; release an open stream nobody will read.
			if s, ok := r.(*dispatcher.EventStream); ok {
				s.Stop()
			}
		}
	}()
	return nil
}

func (f *Facade) finish(t *tracked, r dispatcher.Result, stats *Stats) {
	if _, failed := r.(*dispatcher.Failure); failed {
		stats.Failed++
		f.transition(t, StateFailed)
	} else {
		stats.Completed++
		f.transition(t, StateCompleted)
	}
	t.out <- r
	close(t.out)
}

func (f *Facade) transition(t *tracked, to State) {
	if to == StateDispatched && t.state != StateReceived {
		panic(fmt.Sprintf("facade: %s request %s dispatched from state %q", t.command, t.correlationID, t.state))
	}
	if (to == StateCompleted || to == StateFailed) && t.state != StateDispatched {
		panic(fmt.Sprintf("facade: %s request %s completed from state %q", t.command, t.correlationID, t.state))
	}
	t.state = to
	if f.metrics != nil {
		f.metrics.RecordFacadeTransition(context.Background(), t.command, string(to))
	}
}

// newCorrelationID is used for requests the facade issues on its own behalf.
func newCorrelationID() string {
	return "facade-" + uuid.NewString()
}
