package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

// Worker pulls units from the tasks channel one at a time, processes them and
// publishes the results. It stops once the tasks channel stays empty for the
// configured number of fetch attempts.
type Worker struct {
	logger    *zap.Logger
	conn      domain.Connection
	processor domain.Processor
	codec     domain.UnitCodec
	telemetry *Telemetry
	tasks     string
	results   string
	retries   int
	interval  time.Duration
}

func NewWorker(logger *zap.Logger, conn domain.Connection, processor domain.Processor, codec domain.UnitCodec,
	telemetry *Telemetry, broker domain.BrokerConfig, cfg domain.WorkerConfig) *Worker {
	return &Worker{
		logger:    logger,
		conn:      conn,
		processor: processor,
		codec:     codec,
		telemetry: telemetry,
		tasks:     broker.TasksQueue,
		results:   broker.ResultsQueue,
		retries:   max(cfg.FetchRetries, 1),
		interval:  cfg.FetchInterval,
	}
}

// Run processes tasks until none are left. It returns nil on a clean exit and
// an error only when the transport fails.
func (w *Worker) Run(ctx context.Context) error {
	for _, channel := range []string{w.tasks, w.results} {
		if err := w.conn.Declare(ctx, channel); err != nil {
			return err
		}
	}

	for {
		d, err := w.fetch(ctx)
		if err != nil {
			return err
		}
		if d == nil {
			w.logger.Info("No tasks in queue, exiting", zap.Int("attempts", w.retries))
			return nil
		}
		if err := w.handle(ctx, d); err != nil {
			return err
		}
	}
}

func (w *Worker) fetch(ctx context.Context) (*domain.Delivery, error) {
	for attempt := 1; attempt <= w.retries; attempt++ {
		d, err := w.conn.TryReceive(ctx, w.tasks)
		if err != nil {
			return nil, fmt.Errorf("fetch task: %w", err)
		}
		if d != nil {
			return d, nil
		}
		if attempt == w.retries {
			break
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, nil
}

func (w *Worker) handle(ctx context.Context, d *domain.Delivery) error {
	unit, err := w.codec.Decode(d.Body)
	if err == nil && unit.HasResult() {
		err = fmt.Errorf("%w: task %s", domain.ErrResultAlreadySet, unit.ID)
	}
	if err != nil {
		// A malformed task fails the same way on every worker.
		w.telemetry.TasksRejected.Inc()
		w.logger.Error("Rejecting malformed task", zap.Uint64("tag", d.Tag), zap.Error(err))
		return w.conn.Nack(d, false)
	}

	payload, err := w.process(ctx, unit)
	if err != nil {
		w.telemetry.TasksNacked.Inc()
		w.logger.Error("Failed to process unit, requeueing",
			zap.String("unit_id", unit.ID),
			zap.String("group", unit.Group),
			zap.String("subgroup", unit.Subgroup),
			zap.Stringer("range", unit.Range),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err))
		return w.conn.Nack(d, true)
	}

	if err := w.conn.Publish(ctx, w.results, payload); err != nil {
		nackErr := w.conn.Nack(d, true)
		return errors.Join(fmt.Errorf("publish result of %s: %w", unit.ID, err), nackErr)
	}
	if err := w.conn.Ack(d); err != nil {
		return fmt.Errorf("ack task %s: %w", unit.ID, err)
	}

	w.telemetry.TasksOK.Inc()
	w.logger.Info("Unit processed",
		zap.String("unit_id", unit.ID),
		zap.String("subgroup", unit.Subgroup),
		zap.Stringer("range", unit.Range))
	return nil
}

func (w *Worker) process(ctx context.Context, unit domain.Unit) ([]byte, error) {
	processed, err := w.processor.Process(ctx, unit)
	if err != nil {
		return nil, err
	}
	if processed.ID != unit.ID || !processed.HasResult() {
		return nil, fmt.Errorf("%w: processor returned unit %s without result", domain.ErrProcessing, processed.ID)
	}
	return w.codec.Encode(processed)
}
