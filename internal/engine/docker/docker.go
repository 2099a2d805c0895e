// Package docker implements engine.Engine on top of the Docker API.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/containerevent"
	"jobkernel/internal/engine"
)

// LabelManagedBy marks containers created through this adapter.
const LabelManagedBy = "managed-by"

// Engine talks to the host Docker daemon.
type Engine struct {
	client *client.Client
	cfg    Config
	logger *slog.Logger
}

// New connects to the daemon configured by the DOCKER_* environment.
func New(cfg Config) (*Engine, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Engine{
		client: dockerClient,
		cfg:    cfg.withDefaults(),
		logger: slog.With("component", "engine", "engine", "docker"),
	}, nil
}

// ListImages implements engine.Engine.
func (e *Engine) ListImages(ctx context.Context) ([]engine.Image, error) {
	summaries, err := e.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, err
	}
	images := make([]engine.Image, 0, len(summaries))
	for _, s := range summaries {
		images = append(images, engine.Image{
			ID:      s.ID,
			Tags:    s.RepoTags,
			Size:    s.Size,
			Created: time.Unix(s.Created, 0).UTC(),
		})
	}
	return images, nil
}

// CreateContainer implements engine.Engine.
func (e *Engine) CreateContainer(ctx context.Context, spec engine.ContainerSpec) (string, error) {
	if e.cfg.PullIfMissing {
		if err := e.pullImageIfNeeded(ctx, spec.Image); err != nil {
			return "", fmt.Errorf("pull image %s: %w", spec.Image, err)
		}
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[LabelManagedBy] = e.cfg.ManagedBy

	containerConfig := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Env:    env,
		Labels: labels,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(spec.CPU * 1e9),
			Memory:   int64(spec.MemoryMB) * 1024 * 1024,
		},
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		e.logger.Warn("Container created with warning", "container", resp.ID, "warning", w)
	}
	return resp.ID, nil
}

// StartContainer implements engine.Engine.
func (e *Engine) StartContainer(ctx context.Context, id string) (bool, error) {
	inspect, err := e.inspect(ctx, id)
	if err != nil {
		return false, err
	}
	if inspect.State != nil && inspect.State.Running {
		return true, nil
	}
	if err := e.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return false, translate(err, id)
	}
	return false, nil
}

// StopContainer implements engine.Engine.
func (e *Engine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.StopTimeout
	}
	seconds := int(timeout.Seconds())
	return translate(e.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}), id)
}

// RemoveContainer implements engine.Engine.
func (e *Engine) RemoveContainer(ctx context.Context, id string, force bool) error {
	return translate(e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}), id)
}

// ContainerLogs implements engine.Engine.
func (e *Engine) ContainerLogs(ctx context.Context, id string, opts engine.LogOptions) ([]engine.LogEntry, error) {
	inspect, err := e.inspect(ctx, id)
	if err != nil {
		return nil, err
	}

	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	}
	if opts.Tail > 0 {
		logOpts.Tail = strconv.Itoa(opts.Tail)
	}
	if !opts.Since.IsZero() {
		logOpts.Since = strconv.FormatInt(opts.Since.Unix(), 10)
	}

	logs, err := e.client.ContainerLogs(ctx, id, logOpts)
	if err != nil {
		return nil, translate(err, id)
	}
	defer logs.Close()

	var entries []engine.LogEntry
	stdout := &lineCollector{stream: "stdout", entries: &entries}
	stderr := &lineCollector{stream: "stderr", entries: &entries}

	// TTY containers have no multiplexing header.
	if inspect.Config != nil && inspect.Config.Tty {
		_, err = io.Copy(stdout, logs)
	} else {
		_, err = stdcopy.StdCopy(stdout, stderr, logs)
	}
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	return entries, nil
}

// Events implements engine.Engine. Messages that do not map to a known
// container action are skipped.
func (e *Engine) Events(ctx context.Context) (<-chan containerevent.Event, <-chan error) {
	out := make(chan containerevent.Event)
	errOut := make(chan error, 1)

	msgs, errs := e.client.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(filters.Arg("type", string(events.ContainerEventType))),
	})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				if err != nil && ctx.Err() == nil {
					errOut <- err
				}
				return
			case msg := <-msgs:
				ev, err := Convert(msg)
				if err != nil {
					e.logger.Debug("Skipping engine event", "action", msg.Action, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errOut
}

// Ping implements engine.Engine.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Close releases the client connection.
func (e *Engine) Close() error {
	return e.client.Close()
}

func (e *Engine) inspect(ctx context.Context, id string) (container.InspectResponse, error) {
	inspect, err := e.client.ContainerInspect(ctx, id)
	if err != nil {
		return container.InspectResponse{}, translate(err, id)
	}
	return inspect, nil
}

func (e *Engine) pullImageIfNeeded(ctx context.Context, imageName string) error {
	if _, err := e.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}

	e.logger.Info("Pulling image", "image", imageName)
	reader, err := e.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// translate maps daemon errors the API surfaces by status onto apperrors.
func translate(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case client.IsErrNotFound(err):
		return &apperrors.Error{
			Sentinel: apperrors.ErrNotFound,
			Message:  fmt.Sprintf("container %s not found", id),
			Resource: "container",
			Cause:    err,
		}
	case cerrdefs.IsConflict(err):
		return &apperrors.Error{
			Sentinel: apperrors.ErrConflict,
			Message:  fmt.Sprintf("container %s: %v", id, err),
			Resource: "container",
			Cause:    err,
		}
	default:
		return err
	}
}

var _ engine.Engine = (*Engine)(nil)
