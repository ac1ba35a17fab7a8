package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-device-manager/internal/config"
	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
	"github.com/architeacher/svc-device-manager/internal/ports"
	"github.com/architeacher/svc-device-manager/internal/shared/backoff"
)

type (
	// eventDispatcher is what the poller needs from the dispatch layer.
	eventDispatcher interface {
		Dispatch(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error
	}

	// Poller drains the outbox. Each tick claims a batch under row locks that
	// skip rows held by peers, so multiple poller processes share the outbox
	// without coordination.
	Poller struct {
		txRunner   ports.TxRunner
		outboxRepo ports.OutboxRepository
		dispatcher eventDispatcher
		strategy   backoff.Strategy
		workerCfg  config.WorkerConfig
		retryCfg   config.RetryConfig
		metrics    *infrastructure.Metrics
		logger     infrastructure.Logger
	}
)

func NewPoller(
	txRunner ports.TxRunner,
	outboxRepo ports.OutboxRepository,
	dispatcher eventDispatcher,
	strategy backoff.Strategy,
	workerCfg config.WorkerConfig,
	retryCfg config.RetryConfig,
	metrics *infrastructure.Metrics,
	logger infrastructure.Logger,
) *Poller {
	return &Poller{
		txRunner:   txRunner,
		outboxRepo: outboxRepo,
		dispatcher: dispatcher,
		strategy:   strategy,
		workerCfg:  workerCfg,
		retryCfg:   retryCfg,
		metrics:    metrics,
		logger:     logger.Component("outbox_poller"),
	}
}

// Start runs the poll loop until the context is canceled. The batch in
// flight when cancellation arrives is finished before returning.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("poll_interval", p.workerCfg.PollInterval()).
		Int("batch_size", p.workerCfg.BatchSize).
		Msg("starting outbox poller")

	ticker := time.NewTicker(p.workerCfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox poller shutting down")

			return ctx.Err()

		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch claims and processes one batch in a single transaction. Row
// outcomes are recorded per row; one row's failure never blocks the rest of
// the batch.
func (p *Poller) ProcessBatch(ctx context.Context) error {
	return p.txRunner.WithinTx(ctx, func(tx *sqlx.Tx) error {
		events, err := p.outboxRepo.ClaimBatchInTx(ctx, tx, p.workerCfg.BatchSize)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		p.logger.Debug().Int("count", len(events)).Msg("claimed outbox events")

		for _, event := range events {
			if err := p.processEvent(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

// processEvent dispatches one event and persists its outcome. The returned
// error is reserved for status-update failures, which poison the whole
// transaction; dispatch failures are absorbed into the row.
func (p *Poller) processEvent(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	dispatchErr := p.dispatcher.Dispatch(ctx, tx, event)
	if dispatchErr == nil {
		p.metrics.OutboxProcessedTotal.Inc()

		return p.outboxRepo.MarkProcessedInTx(ctx, tx, event.ID, time.Now().UTC())
	}

	if errors.Is(dispatchErr, domain.ErrCircuitOpen) {
		p.metrics.OutboxCircuitOpenTotal.Inc()
		p.logger.Info().
			Str("event_id", event.ID.String()).
			Msg("breaker open, skipping event without consuming an attempt")

		return nil
	}

	attempts := event.Attempts + 1
	if attempts >= p.retryCfg.MaxAttempts {
		p.metrics.OutboxDeadLetteredTotal.Inc()
		p.logger.Error().
			Err(dispatchErr).
			Str("event_id", event.ID.String()).
			Int("attempts", attempts).
			Msg("retry budget exhausted, dead-lettering event")

		return p.outboxRepo.MarkDeadLetteredInTx(ctx, tx, event.ID, attempts, dispatchErr.Error(), time.Now().UTC())
	}

	p.metrics.OutboxFailedTotal.Inc()
	p.logger.Warn().
		Err(dispatchErr).
		Str("event_id", event.ID.String()).
		Int("attempts", attempts).
		Dur("next_retry_in", p.strategy.Backoff(attempts)).
		Msg("event processing failed, will retry")

	return p.outboxRepo.RecordFailureInTx(ctx, tx, event.ID, attempts, dispatchErr.Error())
}
