package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

// RunReport summarises one coordinator run.
type RunReport struct {
	Dispatched  []domain.Unit
	Retrieved   []domain.Unit
	Missing     []domain.Unit
	Collections map[string]*domain.Collection
}

// Coordinator drives one run: partition, dispatch, collect, reconcile,
// aggregate and report.
type Coordinator struct {
	logger      *zap.Logger
	cfg         *domain.Config
	dial        domain.Dialer
	partitioner *Partitioner
	dispatcher  *Dispatcher
	collector   *Collector
	aggregator  *Aggregator
	reporter    domain.Reporter
	telemetry   *Telemetry

	onDispatched func(ctx context.Context)
}

func NewCoordinator(logger *zap.Logger, cfg *domain.Config, dial domain.Dialer, codec domain.UnitCodec,
	catalog domain.SourceCatalog, info domain.InfoTable, reporter domain.Reporter, telemetry *Telemetry) *Coordinator {
	return &Coordinator{
		logger:      logger,
		cfg:         cfg,
		dial:        dial,
		partitioner: NewPartitioner(logger, cfg.Partition, cfg.Samples, info, catalog),
		dispatcher:  NewDispatcher(logger, codec, telemetry, cfg.Broker),
		collector:   NewCollector(logger, codec, telemetry, cfg.Broker.ResultsQueue, cfg.Collect),
		aggregator:  NewAggregator(logger, cfg.Aggregate),
		reporter:    reporter,
		telemetry:   telemetry,
	}
}

// OnDispatched registers f to be called once every unit has been published.
func (c *Coordinator) OnDispatched(f func(ctx context.Context)) {
	c.onDispatched = f
}

func (c *Coordinator) Run(ctx context.Context) (*RunReport, error) {
	defer func() {
		if err := c.telemetry.WriteFile(c.cfg.MetricsFile); err != nil {
			c.logger.Warn("Failed to write metrics", zap.Error(err))
		}
	}()

	conn, err := c.dial(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrConnectFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrConnectFailed, err)
		}
		return nil, err
	}
	closed := false
	closeConn := func() {
		if closed {
			return
		}
		closed = true
		if err := conn.Close(); err != nil {
			c.logger.Warn("Failed to close broker connection", zap.Error(err))
		}
	}
	defer closeConn()

	units, err := c.partitioner.Partition(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Units partitioned", zap.Int("units", len(units)))

	if err := c.dispatcher.Dispatch(ctx, conn, units); err != nil {
		return nil, err
	}
	if c.onDispatched != nil {
		c.onDispatched(ctx)
	}

	c.collector.ExpectUnits(units)
	retrieved, err := c.collector.Collect(ctx, conn, len(units))
	if err != nil {
		c.logger.Warn("Collection interrupted, continuing with partial results",
			zap.Int("retrieved", len(retrieved)),
			zap.Error(err))
	}
	closeConn()

	report := &RunReport{Dispatched: units, Retrieved: retrieved}
	if len(retrieved) == 0 {
		return report, domain.ErrNoResults
	}
	c.logger.Info("Results retrieved",
		zap.Int("retrieved", len(retrieved)),
		zap.Int("expected", len(units)))

	if missing := Reconcile(units, retrieved); missing != nil {
		report.Missing = MissingUnits(units, missing)
		c.telemetry.UnitsMissing.Add(len(missing))

		ratio := float64(len(missing)) / float64(len(units))
		if ratio > c.cfg.Collect.MissingThreshold() {
			return report, fmt.Errorf("%w: %d of %d units missing", domain.ErrExcessiveMissing, len(missing), len(units))
		}
		for _, u := range report.Missing {
			c.logger.Warn("Missing unit",
				zap.String("unit_id", u.ID),
				zap.String("group", u.Group),
				zap.String("subgroup", u.Subgroup),
				zap.Stringer("range", u.Range))
		}
		c.logger.Warn("Proceeding with partial data",
			zap.Int("missing", len(missing)),
			zap.Int("expected", len(units)))
	}

	groups := c.cfg.GroupNames()
	report.Collections, err = c.aggregator.Aggregate(retrieved, groups)
	if err != nil {
		return report, err
	}

	if c.reporter != nil {
		if err := c.reporter.Report(report.Collections, groups); err != nil {
			return report, err
		}
	}
	return report, nil
}
