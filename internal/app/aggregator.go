package app

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

const DefaultMinPopulation = 50

// Aggregator concatenates unit results into per-group collections.
type Aggregator struct {
	logger        *zap.Logger
	minPopulation int
}

func NewAggregator(logger *zap.Logger, cfg domain.AggregateConfig) *Aggregator {
	minPopulation := cfg.MinPopulation
	if minPopulation <= 0 {
		minPopulation = DefaultMinPopulation
	}
	return &Aggregator{logger: logger, minPopulation: minPopulation}
}

// Aggregate groups the events of retrieved units by group name, keeping
// arrival order within a group. Every name in groups must end up with at
// least one event; all empty groups are reported together.
func (a *Aggregator) Aggregate(retrieved []domain.Unit, groups []string) (map[string]*domain.Collection, error) {
	collections := make(map[string]*domain.Collection, len(groups))
	for _, g := range groups {
		collections[g] = &domain.Collection{Group: g}
	}

	seen := make(map[string]struct{}, len(retrieved))
	for _, u := range retrieved {
		if _, ok := seen[u.ID]; ok {
			a.logger.Warn("Skipping repeated unit", zap.String("unit_id", u.ID))
			continue
		}
		seen[u.ID] = struct{}{}

		c, ok := collections[u.Group]
		if !ok {
			a.logger.Warn("Skipping unit of unknown group",
				zap.String("unit_id", u.ID),
				zap.String("group", u.Group))
			continue
		}
		r := u.Result()
		if r == nil {
			a.logger.Warn("Skipping unit without result", zap.String("unit_id", u.ID))
			continue
		}
		c.Units++
		c.Events = append(c.Events, r.Events...)
	}

	errs := new(multierror.Error)
	for _, g := range groups {
		c := collections[g]
		switch n := c.Population(); {
		case n == 0:
			errs = multierror.Append(errs, fmt.Errorf("%w: %s", domain.ErrEmptyGroup, g))
		case n < a.minPopulation:
			a.logger.Warn("Low population",
				zap.String("group", g),
				zap.Int("events", n),
				zap.Int("min", a.minPopulation))
		default:
			a.logger.Debug("Group aggregated",
				zap.String("group", g),
				zap.Int("units", c.Units),
				zap.Int("events", n),
				zap.Float64("weighted", c.WeightedPopulation()))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return collections, nil
}
