package facade

import (
	"context"
	"fmt"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/dispatcher"
)

// await submits req and waits for its result. A *dispatcher.Failure is
// returned as an apperrors.ErrDispatch error wrapping the failure.
func await[T dispatcher.Result](ctx context.Context, f *Facade, correlationID string, req Request) (T, error) {
	var zero T

	out, err := f.Submit(ctx, correlationID, req)
	if err != nil {
		return zero, err
	}

	select {
	case r := <-out:
		if failure, ok := r.(*dispatcher.Failure); ok {
			return zero, apperrors.Dispatch(failure.Command, failure.CorrelationID, failure.Reason, failure)
		}
		v, ok := r.(T)
		if !ok {
			return zero, apperrors.Internal("facade.await", fmt.Errorf("unexpected result %T for %T", r, req))
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ListImages lists engine images.
func (f *Facade) ListImages(ctx context.Context, correlationID string) (*dispatcher.ImageList, error) {
	r, err := await[dispatcher.ImageList](ctx, f, correlationID, ListImages{})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateContainer creates a container.
func (f *Facade) CreateContainer(ctx context.Context, correlationID string, req CreateContainer) (*dispatcher.ContainerCreated, error) {
	r, err := await[dispatcher.ContainerCreated](ctx, f, correlationID, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StartContainer starts a container.
func (f *Facade) StartContainer(ctx context.Context, correlationID string, req StartContainer) (*dispatcher.ContainerStarted, error) {
	r, err := await[dispatcher.ContainerStarted](ctx, f, correlationID, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StopContainer stops a container.
func (f *Facade) StopContainer(ctx context.Context, correlationID string, req StopContainer) (*dispatcher.ContainerStopped, error) {
	r, err := await[dispatcher.ContainerStopped](ctx, f, correlationID, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RemoveContainer removes a container.
func (f *Facade) RemoveContainer(ctx context.Context, correlationID string, req RemoveContainer) (*dispatcher.ContainerRemoved, error) {
	r, err := await[dispatcher.ContainerRemoved](ctx, f, correlationID, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ContainerLogs fetches container output.
func (f *Facade) ContainerLogs(ctx context.Context, correlationID string, req GetContainerLogs) (*dispatcher.ContainerLogs, error) {
	r, err := await[dispatcher.ContainerLogs](ctx, f, correlationID, req)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// WatchEvents opens a container event stream bound to ctx. The caller must
// Stop the stream.
func (f *Facade) WatchEvents(ctx context.Context, correlationID string) (*dispatcher.EventStream, error) {
	return await[*dispatcher.EventStream](ctx, f, correlationID, WatchEvents{})
}

// Ready pings the engine through the dispatcher.
func (f *Facade) Ready(ctx context.Context) error {
	_, err := await[dispatcher.Pong](ctx, f, newCorrelationID(), Ping{})
	return err
}
