package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

// Partitioner decomposes the configured sample groups into units of at most
// BatchSize records each.
type Partitioner struct {
	logger  *zap.Logger
	cfg     domain.PartitionConfig
	samples []domain.SampleGroup
	info    domain.InfoTable
	catalog domain.SourceCatalog
	newID   func() string
}

func NewPartitioner(logger *zap.Logger, cfg domain.PartitionConfig, samples []domain.SampleGroup,
	info domain.InfoTable, catalog domain.SourceCatalog) *Partitioner {
	return &Partitioner{
		logger:  logger,
		cfg:     cfg,
		samples: samples,
		info:    info,
		catalog: catalog,
		newID:   newUnitID,
	}
}

func newUnitID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Partition returns all units of the run. Nothing is returned if any source
// cannot be queried.
func (p *Partitioner) Partition(ctx context.Context) ([]domain.Unit, error) {
	if p.cfg.Fraction <= 0 || p.cfg.Fraction > 1 {
		return nil, fmt.Errorf("%w: fraction %v not in (0, 1]", domain.ErrInvalidConfig, p.cfg.Fraction)
	}
	if p.cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", domain.ErrInvalidConfig, p.cfg.BatchSize)
	}

	var units []domain.Unit
	for _, sample := range p.samples {
		for _, subgroup := range sample.Subsamples {
			kind, source, err := p.ResolveSource(sample.Name, subgroup)
			if err != nil {
				return nil, err
			}

			total, err := p.catalog.RecordCount(ctx, source)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %w", domain.ErrSourceUnavailable, sample.Name, subgroup, err)
			}

			n := SampledCount(total, p.cfg.Fraction)
			ranges := SplitRange(n, p.cfg.BatchSize)
			if len(ranges) == 0 {
				p.logger.Warn("Subsample yields no units",
					zap.String("group", sample.Name),
					zap.String("subgroup", subgroup),
					zap.Int64("records", total))
				continue
			}

			for _, r := range ranges {
				units = append(units, domain.Unit{
					ID:       p.newID(),
					Group:    sample.Name,
					Subgroup: subgroup,
					Kind:     kind,
					Source:   source,
					Fraction: float64(r.Len()) / float64(n),
					Range:    r,
				})
			}

			p.logger.Debug("Subsample partitioned",
				zap.String("group", sample.Name),
				zap.String("subgroup", subgroup),
				zap.Int64("records", total),
				zap.Int64("sampled", n),
				zap.Int("units", len(ranges)))
		}
	}
	return units, nil
}

// ResolveSource determines the kind and the locator of a subsample.
func (p *Partitioner) ResolveSource(group, subgroup string) (domain.Kind, string, error) {
	kind := domain.KindSimulated
	pattern := p.cfg.SimulatedPattern
	if group == p.cfg.MeasuredGroup {
		kind = domain.KindMeasured
		pattern = p.cfg.MeasuredPattern
	}

	replacements := []string{"{subgroup}", subgroup}
	if strings.Contains(pattern, "{dsid}") {
		info, ok := p.info[subgroup]
		if !ok {
			return "", "", fmt.Errorf("%w: no info entry for %s", domain.ErrSourceUnavailable, subgroup)
		}
		replacements = append(replacements, "{dsid}", strconv.Itoa(info.DSID))
	}

	rel := strings.NewReplacer(replacements...).Replace(pattern)
	return kind, joinLocator(p.cfg.Root, rel), nil
}

func joinLocator(root, rel string) string {
	if root == "" || strings.HasSuffix(root, "/") {
		return root + rel
	}
	return root + "/" + rel
}

// SampledCount returns min(total, round(total*fraction)), rounding half to even.
func SampledCount(total int64, fraction float64) int64 {
	if total <= 0 {
		return 0
	}
	n := int64(math.RoundToEven(float64(total) * fraction))
	return min(total, n)
}

// SplitRange covers [0, n) with consecutive ranges of at most batch records.
func SplitRange(n, batch int64) []domain.Range {
	if n <= 0 || batch <= 0 {
		return nil
	}

	ranges := make([]domain.Range, 0, (n+batch-1)/batch)
	for start := int64(0); start < n; start += batch {
		ranges = append(ranges, domain.Range{Start: start, Stop: min(start+batch, n)})
	}
	return ranges
}
