package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

// Collector drains the results channel until the expected number of distinct
// units has arrived or the deadline has passed. Running out of time is not
// an error: the caller reconciles whatever was collected.
type Collector struct {
	logger       *zap.Logger
	codec        domain.UnitCodec
	telemetry    *Telemetry
	channel      string
	pollInterval time.Duration
	deadline     time.Duration
	expected     map[string]struct{}
}

func NewCollector(logger *zap.Logger, codec domain.UnitCodec, telemetry *Telemetry,
	channel string, cfg domain.CollectConfig) *Collector {
	return &Collector{
		logger:       logger,
		codec:        codec,
		telemetry:    telemetry,
		channel:      channel,
		pollInterval: cfg.PollInterval,
		deadline:     cfg.Deadline,
	}
}

// ExpectUnits restricts collection to the ids of units. Results for any
// other id, e.g. left in the durable queue by an earlier run, are dropped.
func (c *Collector) ExpectUnits(units []domain.Unit) {
	c.expected = make(map[string]struct{}, len(units))
	for _, u := range units {
		c.expected[u.ID] = struct{}{}
	}
}

func (c *Collector) Collect(ctx context.Context, conn domain.Connection, expectedCount int) ([]domain.Unit, error) {
	start := time.Now()
	collected := make([]domain.Unit, 0, max(expectedCount, 0))
	if expectedCount <= 0 {
		return collected, nil
	}

	if err := conn.Declare(ctx, c.channel); err != nil {
		return collected, fmt.Errorf("collect: %w", err)
	}

	seen := make(map[string]struct{}, expectedCount)
	for len(collected) < expectedCount {
		d, err := conn.TryReceive(ctx, c.channel)
		if err != nil {
			return collected, fmt.Errorf("collect: %w", err)
		}

		if d != nil {
			if u, ok := c.accept(conn, d, seen); ok {
				collected = append(collected, u)
				seen[u.ID] = struct{}{}
				c.telemetry.ResultsCollected.Inc()
				c.logger.Debug("Result collected",
					zap.String("unit_id", u.ID),
					zap.Int("collected", len(collected)),
					zap.Int("expected", expectedCount))
			}
		} else {
			timer := time.NewTimer(c.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return collected, ctx.Err()
			case <-timer.C:
			}
		}

		if elapsed := time.Since(start); elapsed > c.deadline && len(collected) < expectedCount {
			c.logger.Warn("Collection deadline reached",
				zap.Duration("elapsed", elapsed),
				zap.Int("collected", len(collected)),
				zap.Int("expected", expectedCount))
			break
		}
	}
	return collected, nil
}

// accept acknowledges d and decodes it. Lost or rejected results surface as
// missing units, never as redeliveries.
func (c *Collector) accept(conn domain.Connection, d *domain.Delivery, seen map[string]struct{}) (domain.Unit, bool) {
	if err := conn.Ack(d); err != nil {
		c.logger.Warn("Failed to acknowledge result", zap.Uint64("tag", d.Tag), zap.Error(err))
	}

	u, err := c.codec.Decode(d.Body)
	if err != nil {
		c.telemetry.ResultsDropped.Inc()
		c.logger.Warn("Dropping undecodable result", zap.Error(err))
		return u, false
	}
	if c.expected != nil {
		if _, ok := c.expected[u.ID]; !ok {
			c.telemetry.ResultsDropped.Inc()
			c.logger.Warn("Dropping result of unknown unit", zap.String("unit_id", u.ID))
			return u, false
		}
	}
	if _, ok := seen[u.ID]; ok {
		c.telemetry.ResultsDuplicate.Inc()
		c.logger.Warn("Dropping duplicate result", zap.String("unit_id", u.ID))
		return u, false
	}
	if !u.HasResult() {
		c.telemetry.ResultsDropped.Inc()
		c.logger.Warn("Dropping result without payload", zap.String("unit_id", u.ID))
		return u, false
	}
	return u, true
}
