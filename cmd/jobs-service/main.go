// jobs-service runs the job kernel: the job store, the event bus, the
// command dispatcher over the Docker engine and the orchestration facade,
// behind an HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobkernel/internal/api"
	"jobkernel/internal/config"
	"jobkernel/internal/containerevent"
	"jobkernel/internal/delivery"
	"jobkernel/internal/dispatcher"
	"jobkernel/internal/engine/docker"
	"jobkernel/internal/eventbus"
	"jobkernel/internal/facade"
	"jobkernel/internal/health"
	"jobkernel/internal/job"
	"jobkernel/internal/jobstore"
	"jobkernel/internal/observability"
	"jobkernel/pkg/backoff"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration; environment variables override the optional file
	src, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	svcCfg := config.LoadServiceConfig(src)

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// The dispatcher is the only owner of the engine connection
	eng, err := docker.New(docker.LoadConfig(src))
	if err != nil {
		return err
	}
	commands := dispatcher.New(eng, dispatcher.LoadConfig(src), metrics)
	kernel := facade.New(commands, metrics)

	// Job store: a corrupt snapshot is fatal
	bus := eventbus.New[job.Event]("jobs", eventbus.LoadConfig(src), metrics)
	persister, err := jobstore.OpenPersister(ctx, svcCfg.StoreDriver, svcCfg.StorePath)
	if err != nil {
		return err
	}
	store, err := jobstore.Open(ctx, jobstore.Config{
		Persister: persister,
		Bus:       bus,
		Metrics:   metrics,
	})
	if err != nil {
		_ = persister.Close()
		return err
	}
	slog.Info("Job store opened", "driver", svcCfg.StoreDriver, "path", svcCfg.StorePath)

	// Webhook delivery
	builder := job.NewEventBuilder(svcCfg.EventSource)
	queue := delivery.NewQueue(delivery.LoadConfig(src), metrics)
	webhooks := delivery.NewRegistry(store, queue, builder)

	// Create health checker
	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"engine": kernel,
		"jobstore": health.CheckFunc(func(ctx context.Context) error {
			_, err := store.Snapshot(ctx)
			return err
		}),
	})

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Jobs:          job.NewService(store),
		Events:        store,
		EventBuilder:  builder,
		Webhooks:      webhooks,
		Kernel:        kernel,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Log engine container events until shutdown
	watchCtx, stopWatching := context.WithCancel(ctx)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watchContainerEvents(watchCtx, kernel)
	}()

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)

		// Phase 1: Mark service as unhealthy for load balancer draining
		healthChecker.SetShuttingDown()

		if svcCfg.ShutdownDrainWait > 0 {
			slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
			time.Sleep(svcCfg.ShutdownDrainWait)
		}

		// Phase 2: Stop accepting new connections, finish in-flight requests.
		// Event streams end with their connections.
		slog.Info("Starting graceful shutdown")
		shutdown(25 * time.Second)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		runErr = err
	}

	// Phase 3: Stop the kernel, outermost component first
	stopWatching()
	<-watcherDone

	kernelCtx, kernelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer kernelCancel()
	if err := kernel.Close(kernelCtx); err != nil {
		slog.Warn("Facade shutdown error", "error", err)
	}
	if err := commands.Close(kernelCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}
	facadeStats := kernel.Stats()
	slog.Info("Facade stats",
		"completed", facadeStats.Completed,
		"failed", facadeStats.Failed,
		"rejected", facadeStats.Rejected,
	)

	if err := store.Close(); err != nil {
		slog.Warn("Job store close error", "error", err)
	}
	bus.Close()

	// Phase 4: Drain webhook deliveries
	slog.Info("Draining webhook deliveries")
	deliveryCtx, deliveryCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer deliveryCancel()
	if err := queue.Close(deliveryCtx); err != nil {
		slog.Warn("Delivery queue shutdown error", "error", err)
	}

	stats := queue.Stats()
	slog.Info("Delivery stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
		"requeued", stats.Requeued,
	)

	slog.Info("Shutdown complete")
	return runErr
}

// watchContainerEvents logs engine container events until ctx is done. A
// broken stream is re-opened with backoff.
func watchContainerEvents(ctx context.Context, kernel *facade.Facade) {
	logger := slog.With("component", "container-events")
	retry := backoff.Policy{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.2}

	for attempt := 1; ; attempt++ {
		stream, err := kernel.WatchEvents(ctx, "container-events")
		if err == nil {
			attempt = 1
			err = logEvents(ctx, logger, stream)
			stream.Stop()
		}
		if ctx.Err() != nil {
			return
		}
		logger.Warn("Container event stream interrupted", "error", err, "attempt", attempt)
		if retry.Wait(ctx, attempt) != nil {
			return
		}
	}
}

func logEvents(ctx context.Context, logger *slog.Logger, stream *dispatcher.EventStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-stream.Errors:
			if err == nil {
				return errors.New("event stream closed")
			}
			return err
		case ev, ok := <-stream.Events:
			if !ok {
				return errors.New("event stream closed")
			}
			meta := ev.Meta()
			attrs := []any{"action", ev.Action(), "containerId", meta.ContainerID, "time", meta.Time}
			if name, err := meta.Name(); err == nil {
				attrs = append(attrs, "name", name)
			}
			if died, ok := ev.(containerevent.Died); ok {
				if code, err := died.ExitCode(); err == nil {
					attrs = append(attrs, "exitCode", code)
				}
			}
			logger.Info("Container event", attrs...)
		}
	}
}
