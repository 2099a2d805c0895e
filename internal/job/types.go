// Package job defines jobs, the persisted job-store snapshot and job lifecycle events.
package job

import (
	"fmt"
	"maps"
)

// Job is a unit of work registered with the job store. Jobs are immutable
// once created.
type Job struct {
	ID        int64  `json:"id"`
	TargetURL string `json:"targetUrl"`
}

// Snapshot is the full persisted state of the job store.
type Snapshot struct {
	NextJobID int64         `json:"nextJobId"`
	Jobs      map[int64]Job `json:"jobs"`
}

// NewSnapshot returns the state of an empty store.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		NextJobID: 1,
		Jobs:      make(map[int64]Job),
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{NextJobID: s.NextJobID, Jobs: maps.Clone(s.Jobs)}
	if c.Jobs == nil {
		c.Jobs = make(map[int64]Job)
	}
	return c
}

// Validate checks the snapshot invariants: nextJobId is at least 1 and
// greater than every job id, and every job is stored under its own id.
func (s *Snapshot) Validate() error {
	if s.NextJobID < 1 {
		return fmt.Errorf("nextJobId must be at least 1, got %d", s.NextJobID)
	}
	for key, j := range s.Jobs {
		if j.ID != key {
			return fmt.Errorf("job stored under key %d has id %d", key, j.ID)
		}
		if j.ID < 1 {
			return fmt.Errorf("job id must be positive, got %d", j.ID)
		}
		if j.ID >= s.NextJobID {
			return fmt.Errorf("job id %d is not below nextJobId %d", j.ID, s.NextJobID)
		}
	}
	return nil
}

// CreateRequest asks the job store to register a new job.
type CreateRequest struct {
	CorrelationID string `json:"correlationId"`
	TargetURL     string `json:"targetUrl"`
}

// ListResponse represents the response for listing jobs
type ListResponse struct {
	NextJobID int64 `json:"nextJobId"`
	Jobs      []Job `json:"jobs"`
}
