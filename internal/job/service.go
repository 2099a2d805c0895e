package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"jobkernel/internal/apperrors"
)

// Validation limits
const (
	maxTargetURLLength     = 2048
	maxCorrelationIDLength = 128
)

// Store is the job store as seen by the service.
type Store interface {
	CreateJob(ctx context.Context, correlationID, targetURL string) (*Created, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
	Job(ctx context.Context, id int64) (*Job, error)
}

// Service validates job requests before they reach the job store. The store
// itself never re-validates.
type Service struct {
	store Store
}

// NewService creates a new job service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates req and registers a new job.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Created, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	logger := slog.With("correlationId", req.CorrelationID)

	created, err := s.store.CreateJob(ctx, req.CorrelationID, req.TargetURL)
	if err != nil {
		logger.Error("Job creation failed", "error", err)
		return nil, err
	}

	logger.Info("Job created", "jobId", created.JobID)
	return created, nil
}

// Get returns a single job.
func (s *Service) Get(ctx context.Context, id int64) (*Job, error) {
	return s.store.Job(ctx, id)
}

// List returns all jobs ordered by id.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })

	return &ListResponse{NextJobID: snap.NextJobID, Jobs: jobs}, nil
}

// validate validates a create request. Does not modify the request.
func validate(req *CreateRequest) error {
	if req.CorrelationID == "" {
		return apperrors.Validation("correlationId", "correlation ID is required")
	}
	if len(req.CorrelationID) > maxCorrelationIDLength {
		return apperrors.Validation("correlationId", fmt.Sprintf("correlation ID exceeds maximum length of %d", maxCorrelationIDLength))
	}

	if req.TargetURL == "" {
		return apperrors.Validation("targetUrl", "target URL is required")
	}
	if len(req.TargetURL) > maxTargetURLLength {
		return apperrors.Validation("targetUrl", fmt.Sprintf("target URL exceeds maximum length of %d", maxTargetURLLength))
	}
	if err := ValidateURL(req.TargetURL); err != nil {
		return apperrors.Validation("targetUrl", fmt.Sprintf("invalid target URL: %v", err))
	}
	return nil
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
