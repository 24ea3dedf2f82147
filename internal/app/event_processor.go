package app

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
	"higgs-distributed/pkg/physics"
)

var (
	leptonFields = []string{"lep_pt", "lep_eta", "lep_phi", "lep_E", "lep_charge", "lep_type"}
	weightFields = []string{"mcWeight", "scaleFactor_PILEUP", "scaleFactor_ELE", "scaleFactor_MUON", "scaleFactor_LepTRIGGER"}
)

// EventProcessor selects four-lepton events of a unit's record range and
// computes their invariant mass and, for simulated data, their weight.
type EventProcessor struct {
	logger     *zap.Logger
	catalog    domain.SourceCatalog
	info       domain.InfoTable
	luminosity float64
}

func NewEventProcessor(logger *zap.Logger, catalog domain.SourceCatalog, info domain.InfoTable, cfg domain.PhysicsConfig) *EventProcessor {
	return &EventProcessor{
		logger:     logger,
		catalog:    catalog,
		info:       info,
		luminosity: cfg.Luminosity,
	}
}

func (p *EventProcessor) Process(ctx context.Context, unit domain.Unit) (domain.Unit, error) {
	var info domain.SubsampleInfo
	if unit.Kind == domain.KindSimulated {
		var ok bool
		if info, ok = p.info[unit.Subgroup]; !ok {
			return unit, fmt.Errorf("%w: no weighting info for %s", domain.ErrProcessing, unit.Subgroup)
		}
	}

	records, err := p.catalog.ReadRange(ctx, unit.Source, unit.Range)
	if err != nil {
		return unit, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}

	events := make([]domain.Event, 0, len(records))
	var weighted float64
	for i, rec := range records {
		ev, ok, err := p.processEvent(rec, unit.Kind, info)
		if err != nil {
			return unit, fmt.Errorf("%w: record %d of %s: %w",
				domain.ErrProcessing, unit.Range.Start+int64(i), unit.Source, err)
		}
		if ok {
			events = append(events, ev)
			weighted += ev.Weight
		}
	}

	p.logger.Debug("Events selected",
		zap.String("unit_id", unit.ID),
		zap.String("subgroup", unit.Subgroup),
		zap.String("kind", string(unit.Kind)),
		zap.Int("before", len(records)),
		zap.Float64("after", weighted))

	return unit.WithResult(&domain.Result{
		EventsBefore: len(records),
		Events:       events,
	})
}

func (p *EventProcessor) processEvent(rec []byte, kind domain.Kind, info domain.SubsampleInfo) (domain.Event, bool, error) {
	if !gjson.ValidBytes(rec) {
		return domain.Event{}, false, fmt.Errorf("malformed record")
	}

	fields := gjson.GetManyBytes(rec, leptonFields...)
	leptons := physics.Leptons{
		Pt:     floatArray(fields[0]),
		Eta:    floatArray(fields[1]),
		Phi:    floatArray(fields[2]),
		E:      floatArray(fields[3]),
		Charge: intArray(fields[4]),
		Type:   intArray(fields[5]),
	}

	if !physics.ValidLeptonType(leptons.Type) || !physics.ValidLeptonCharge(leptons.Charge) {
		return domain.Event{}, false, nil
	}

	mass, err := physics.InvariantMass(&leptons)
	if err != nil {
		return domain.Event{}, false, err
	}

	ev := domain.Event{Mass: mass, Weight: 1}
	if kind == domain.KindSimulated {
		factors := make([]float64, len(weightFields))
		for i, f := range gjson.GetManyBytes(rec, weightFields...) {
			if !f.Exists() {
				return domain.Event{}, false, fmt.Errorf("missing %s", weightFields[i])
			}
			factors[i] = f.Float()
		}
		if ev.Weight, err = physics.MCWeight(info, p.luminosity, factors); err != nil {
			return domain.Event{}, false, err
		}
	}
	return ev, true, nil
}

func floatArray(r gjson.Result) []float64 {
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		out[i] = v.Float()
	}
	return out
}

func intArray(r gjson.Result) []int {
	arr := r.Array()
	out := make([]int, len(arr))
	for i, v := range arr {
		out[i] = int(v.Int())
	}
	return out
}
