package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/job"
)

// ErrNoSnapshot is returned by Persister.Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Persister loads and saves whole snapshots. Save must replace the previous
// snapshot atomically: a failed Save leaves the last good snapshot in place.
type Persister interface {
	Load(ctx context.Context) (*job.Snapshot, error)
	Save(ctx context.Context, snap *job.Snapshot) error
	Close() error
}

// Codec encodes snapshots as JSON documents.
type Codec struct {
	Indent string // empty for compact output
}

// DefaultCodec writes two-space indented documents.
func DefaultCodec() Codec {
	return Codec{Indent: "  "}
}

// Encode serializes snap. Job keys come out in ascending order.
func (c Codec) Encode(snap *job.Snapshot) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if c.Indent != "" {
		data, err = json.MarshalIndent(snap, "", c.Indent)
	} else {
		data, err = json.Marshal(snap)
	}
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a snapshot document. Any failure is reported
// as apperrors.ErrCorrupt.
func (c Codec) Decode(data []byte) (*job.Snapshot, error) {
	snap := &job.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, apperrors.Corrupt("jobstore.decode", err)
	}
	if snap.Jobs == nil {
		snap.Jobs = make(map[int64]job.Job)
	}
	if err := snap.Validate(); err != nil {
		return nil, apperrors.Corrupt("jobstore.decode", err)
	}
	return snap, nil
}
