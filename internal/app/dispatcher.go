package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/tevino/abool"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

// Dispatcher publishes the units of one run to the tasks channel. It accepts
// exactly one call per run.
type Dispatcher struct {
	logger     *zap.Logger
	codec      domain.UnitCodec
	telemetry  *Telemetry
	tasks      string
	results    string
	dispatched *abool.AtomicBool
}

func NewDispatcher(logger *zap.Logger, codec domain.UnitCodec, telemetry *Telemetry, broker domain.BrokerConfig) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		codec:      codec,
		telemetry:  telemetry,
		tasks:      broker.TasksQueue,
		results:    broker.ResultsQueue,
		dispatched: abool.New(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, conn domain.Connection, units []domain.Unit) error {
	if err := CheckUnique(units); err != nil {
		return err
	}
	if !d.dispatched.SetToIf(false, true) {
		return domain.ErrAlreadyDispatched
	}

	for _, channel := range []string{d.tasks, d.results} {
		if err := conn.Declare(ctx, channel); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err)
		}
	}

	for i, u := range units {
		payload, err := d.codec.Encode(u)
		if err != nil {
			return fmt.Errorf("%w: unit %s: %w", domain.ErrDispatchFailed, u.ID, err)
		}
		if err := conn.Publish(ctx, d.tasks, payload); err != nil {
			d.logger.Error("Publish failed, aborting dispatch",
				zap.String("unit_id", u.ID),
				zap.Int("published", i),
				zap.Int("total", len(units)),
				zap.Error(err))
			return fmt.Errorf("%w: unit %s: %w", domain.ErrDispatchFailed, u.ID, err)
		}
		d.telemetry.UnitsDispatched.Inc()
	}

	d.logger.Info("Units dispatched",
		zap.String("queue", d.tasks),
		zap.Int("units", len(units)))
	return nil
}

type subsampleKey struct {
	group, subgroup string
}

// CheckUnique fails on units sharing an id or on overlapping ranges within
// the same subsample.
func CheckUnique(units []domain.Unit) error {
	ids := make(map[string]struct{}, len(units))
	bySubsample := make(map[subsampleKey][]domain.Unit)
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
		if _, ok := ids[u.ID]; ok {
			return fmt.Errorf("%w: id %s", domain.ErrDuplicateUnit, u.ID)
		}
		ids[u.ID] = struct{}{}

		key := subsampleKey{u.Group, u.Subgroup}
		bySubsample[key] = append(bySubsample[key], u)
	}

	for key, group := range bySubsample {
		sorted := slices.Clone(group)
		slices.SortFunc(sorted, func(a, b domain.Unit) int {
			return cmp.Compare(a.Range.Start, b.Range.Start)
		})
		for i := 1; i < len(sorted); i++ {
			prev, cur := sorted[i-1], sorted[i]
			if cur.Range.Start < prev.Range.Stop {
				return fmt.Errorf("%w: %s %s and %s %s overlap in %s/%s",
					domain.ErrDuplicateUnit, prev.ID, prev.Range, cur.ID, cur.Range, key.group, key.subgroup)
			}
		}
	}
	return nil
}
