// Package jobstore owns the job table. A Store is a single goroutine that
// allocates job ids, persists every mutation before acknowledging it and
// announces new jobs on an event bus.
package jobstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/eventbus"
	"jobkernel/internal/job"
)

// Bus is the event bus a Store publishes to.
type Bus interface {
	Subscribe(sub eventbus.Subscriber[job.Event]) error
	Unsubscribe(sub eventbus.Subscriber[job.Event]) error
	Publish(event job.Event) error
}

// MetricsRecorder is an optional interface for recording store metrics.
type MetricsRecorder interface {
	RecordJobCreated(ctx context.Context)
	RecordStorePersist(ctx context.Context, success bool, durationSeconds float64)
}

// Config holds the collaborators of a Store.
type Config struct {
	Persister Persister       // required
	Bus       Bus             // required
	Metrics   MetricsRecorder // optional
	InboxSize int             // default: 64
}

type createMsg struct {
	ctx           context.Context
	correlationID string
	targetURL     string
	reply         chan createReply
}

type createReply struct {
	created *job.Created
	err     error
}

type queryMsg struct {
	reply chan *job.Snapshot
}

// Store is the job store actor.
type Store struct {
	persister Persister
	bus       Bus
	metrics   MetricsRecorder
	logger    *slog.Logger

	creates chan createMsg
	queries chan queryMsg
	quit    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

// Open loads the persisted snapshot and starts the store. A missing snapshot
// initializes an empty store and persists it immediately. An unreadable or
// invalid snapshot fails with apperrors.ErrCorrupt.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Persister == nil {
		return nil, errors.New("jobstore: persister is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("jobstore: bus is required")
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}

	logger := slog.With("component", "jobstore")

	snap, err := cfg.Persister.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		snap = job.NewSnapshot()
		if err := cfg.Persister.Save(ctx, snap); err != nil {
			return nil, apperrors.Persistence("jobstore.init", "", err)
		}
		logger.Info("Initialized empty job store")
	case errors.Is(err, apperrors.ErrCorrupt):
		return nil, err
	case err != nil:
		return nil, apperrors.Corrupt("jobstore.load", err)
	default:
		logger.Info("Loaded job store", "jobs", len(snap.Jobs), "nextJobId", snap.NextJobID)
	}

	s := &Store{
		persister: cfg.Persister,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		logger:    logger,
		creates:   make(chan createMsg, cfg.InboxSize),
		queries:   make(chan queryMsg),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run(snap)
	return s, nil
}

// CreateJob registers a job for targetURL. The returned event has already
// been persisted and published when CreateJob returns. On persistence failure
// nothing changes and no event is published.
func (s *Store) CreateJob(ctx context.Context, correlationID, targetURL string) (*job.Created, error) {
	msg := createMsg{
		ctx:           ctx,
		correlationID: correlationID,
		targetURL:     targetURL,
		reply:         make(chan createReply, 1),
	}

	select {
	case s.creates <- msg:
	case <-s.quit:
		return nil, apperrors.Unavailable("job store")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-msg.reply:
		return r.created, r.err
	case <-s.done:
		// The actor may have answered just before stopping.
		select {
		case r := <-msg.reply:
			return r.created, r.err
		default:
			return nil, apperrors.Unavailable("job store")
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot(ctx context.Context) (*job.Snapshot, error) {
	msg := queryMsg{reply: make(chan *job.Snapshot, 1)}

	select {
	case s.queries <- msg:
	case <-s.quit:
		return nil, apperrors.Unavailable("job store")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case snap := <-msg.reply:
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Job returns the job with id.
func (s *Store) Job(ctx context.Context, id int64) (*job.Job, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	j, ok := snap.Jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	return &j, nil
}

// Subscribe adds sub to the store's event bus.
func (s *Store) Subscribe(sub eventbus.Subscriber[job.Event]) error {
	return s.bus.Subscribe(sub)
}

// Unsubscribe removes sub from the store's event bus.
func (s *Store) Unsubscribe(sub eventbus.Subscriber[job.Event]) error {
	return s.bus.Unsubscribe(sub)
}

// Close stops the store after the mutation in progress, if any, and closes
// the persister. Queued creates are answered with apperrors.ErrUnavailable.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		err = s.persister.Close()
	})
	return err
}

func (s *Store) run(snap *job.Snapshot) {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			s.rejectPending()
			s.logger.Info("Job store stopped", "nextJobId", snap.NextJobID)
			return
		case msg := <-s.creates:
			created, err := s.create(snap, msg)
			msg.reply <- createReply{created: created, err: err}
		case msg := <-s.queries:
			msg.reply <- snap.Clone()
		}
	}
}

// create performs one allocation. snap is only modified in place when the
// new state has been saved.
func (s *Store) create(snap *job.Snapshot, msg createMsg) (*job.Created, error) {
	if err := msg.ctx.Err(); err != nil {
		return nil, err
	}

	id := snap.NextJobID
	next := snap.Clone()
	next.NextJobID = id + 1
	next.Jobs[id] = job.Job{ID: id, TargetURL: msg.targetURL}

	logger := s.logger.With("correlationId", msg.correlationID, "jobId", id)

	start := time.Now()
	err := s.persister.Save(msg.ctx, next)
	if s.metrics != nil {
		s.metrics.RecordStorePersist(context.Background(), err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		logger.Error("Failed to persist snapshot, rolled back", "error", err)
		return nil, apperrors.Persistence("jobstore.save", msg.correlationID, err)
	}

	snap.NextJobID = next.NextJobID
	snap.Jobs[id] = next.Jobs[id]

	created := &job.Created{
		CorrelationID: msg.correlationID,
		JobID:         id,
		TargetURL:     msg.targetURL,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.bus.Publish(*created); err != nil {
		logger.Warn("Failed to publish job event", "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordJobCreated(context.Background())
	}
	logger.Debug("Job persisted")
	return created, nil
}

func (s *Store) rejectPending() {
	for {
		select {
		case msg := <-s.creates:
			msg.reply <- createReply{err: apperrors.Unavailable("job store")}
		default:
			return
		}
	}
}
