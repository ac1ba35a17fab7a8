package runtime

import (
	"os"
)

type (
	ServiceOption func(*ServiceCtx)

	WorkerOption func(*WorkerCtx)

	DependencyOption func(*Dependencies) error
)

func WithServiceTermination(ch chan os.Signal) ServiceOption {
	return func(ctx *ServiceCtx) {
		ctx.shutdownChannel = ch
	}
}

func WithWorkerTermination(ch chan os.Signal) WorkerOption {
	return func(ctx *WorkerCtx) {
		ctx.shutdownChannel = ch
	}
}

// WithHTTPServer wires the command service's HTTP surface.
func WithHTTPServer() DependencyOption {
	return func(d *Dependencies) error {
		server, err := initHTTPServer(d)
		if err != nil {
			return err
		}

		d.Infra.HTTPServer = server

		return nil
	}
}

// WithOutboxPoller wires the event worker's polling pipeline.
func WithOutboxPoller() DependencyOption {
	return func(d *Dependencies) error {
		d.OutboxPoller = initOutboxPoller(d)

		return nil
	}
}
