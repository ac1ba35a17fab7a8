package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// WorkerCtx runs the event worker: the outbox poller plus a small HTTP
// listener for health and metrics.
type WorkerCtx struct {
	deps *Dependencies

	shutdownChannel chan os.Signal

	backgroundActorCtx      context.Context
	backgroundActorStopFunc context.CancelFunc
}

func NewWorker(opt ...WorkerOption) *WorkerCtx {
	wCtx := &WorkerCtx{
		shutdownChannel: make(chan os.Signal, 1),
	}

	for i := range opt {
		opt[i](wCtx)
	}

	return wCtx
}

func (c *WorkerCtx) Run() {
	c.build()
	c.start()
	c.shutdownHook()
	c.shutdown()
}

func (c *WorkerCtx) build() {
	c.backgroundActorCtx, c.backgroundActorStopFunc = context.WithCancel(context.Background())

	deps, err := initializeDependencies(WithOutboxPoller())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	c.deps = deps
}

func (c *WorkerCtx) start() {
	go func() {
		c.deps.logger.Info().Msg("starting device event worker")

		if err := c.deps.OutboxPoller.Start(c.backgroundActorCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.deps.logger.Fatal().Err(err).Msg("outbox poller failed")
		}
	}()

	go c.serveOps()
}

// serveOps exposes health and metrics on the worker process.
func (c *WorkerCtx) serveOps() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(c.deps))

	if c.deps.cfg.Metrics.Enabled {
		mux.Handle("/metrics", c.deps.Infra.Metrics.Handler())
	}

	server := &http.Server{
		Addr:        net.JoinHostPort(c.deps.cfg.HTTPServer.Host, fmt.Sprintf("%d", c.deps.cfg.HTTPServer.Port)),
		Handler:     mux,
		ReadTimeout: c.deps.cfg.HTTPServer.ReadTimeout,
	}

	go func() {
		<-c.backgroundActorCtx.Done()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.deps.logger.Error().Err(err).Msg("ops listener failed")
	}
}

func (c *WorkerCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *WorkerCtx) shutdown() {
	select {
	case <-c.backgroundActorCtx.Done():
	case <-c.shutdownChannel:
		defer close(c.shutdownChannel)
	}

	c.deps.logger.Info().Msg("received shutdown signal")

	c.backgroundActorStopFunc()

	c.cleanup()

	c.deps.logger.Info().Msg("device event worker stopped")
}

func (c *WorkerCtx) cleanup() {
	c.deps.logger.Info().Msg("cleaning up resources...")

	if err := c.deps.Infra.StorageClient.Close(); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to close storage")
	}

	c.deps.logger.Info().Msg("cleanup completed")
}
