package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// ServiceCtx runs the command service: the HTTP surface that accepts device
// commands and appends their events to the outbox.
type ServiceCtx struct {
	deps *Dependencies

	shutdownChannel chan os.Signal

	backgroundActorCtx      context.Context
	backgroundActorStopFunc context.CancelFunc
}

func NewService(opt ...ServiceOption) *ServiceCtx {
	sCtx := &ServiceCtx{
		shutdownChannel: make(chan os.Signal, 1),
	}

	for i := range opt {
		opt[i](sCtx)
	}

	return sCtx
}

func (c *ServiceCtx) Run() {
	c.build()
	c.start()
	c.shutdownHook()
	c.shutdown()
}

func (c *ServiceCtx) build() {
	c.backgroundActorCtx, c.backgroundActorStopFunc = context.WithCancel(context.Background())

	deps, err := initializeDependencies(WithHTTPServer())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	c.deps = deps
}

func (c *ServiceCtx) start() {
	go func() {
		c.deps.logger.Info().Msg("starting device command service")

		if err := c.deps.Infra.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.deps.logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
}

func (c *ServiceCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *ServiceCtx) shutdown() {
	select {
	case <-c.backgroundActorCtx.Done():
	case <-c.shutdownChannel:
		defer close(c.shutdownChannel)
	}

	c.deps.logger.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.deps.cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := c.deps.Infra.HTTPServer.Shutdown(shutdownCtx); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to shut down HTTP server gracefully")
	}

	c.backgroundActorStopFunc()

	c.cleanup()

	c.deps.logger.Info().Msg("device command service stopped")
}

func (c *ServiceCtx) cleanup() {
	c.deps.logger.Info().Msg("cleaning up resources...")

	if err := c.deps.Infra.StorageClient.Close(); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to close storage")
	}

	c.deps.logger.Info().Msg("cleanup completed")
}
