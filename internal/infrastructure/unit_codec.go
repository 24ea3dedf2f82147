package infrastructure

import (
	"fmt"

	"github.com/hashicorp/go-version"
	"github.com/vmihailenco/msgpack/v5"

	"higgs-distributed/internal/domain"
)

// WireVersion is the schema version written into every unit envelope.
// Decoders accept any minor version of the same major.
const WireVersion = "1.0"

var wireCompatible = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))

type unitEnvelope struct {
	Version string     `msgpack:"v"`
	Unit    unitRecord `msgpack:"unit"`
}

type unitRecord struct {
	ID       string         `msgpack:"id"`
	Group    string         `msgpack:"group"`
	Subgroup string         `msgpack:"subgroup"`
	Kind     domain.Kind    `msgpack:"kind"`
	Source   string         `msgpack:"source"`
	Fraction float64        `msgpack:"fraction"`
	Range    domain.Range   `msgpack:"range"`
	Result   *domain.Result `msgpack:"result"`
}

// MsgpackCodec encodes units as versioned msgpack envelopes.
type MsgpackCodec struct{}

func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{}
}

func (MsgpackCodec) Encode(u domain.Unit) ([]byte, error) {
	data, err := msgpack.Marshal(&unitEnvelope{
		Version: WireVersion,
		Unit: unitRecord{
			ID:       u.ID,
			Group:    u.Group,
			Subgroup: u.Subgroup,
			Kind:     u.Kind,
			Source:   u.Source,
			Fraction: u.Fraction,
			Range:    u.Range,
			Result:   u.Result(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode unit %s: %w", u.ID, err)
	}
	return data, nil
}

func (MsgpackCodec) Decode(data []byte) (domain.Unit, error) {
	var env unitEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return domain.Unit{}, fmt.Errorf("%w: %w", domain.ErrInvalidUnit, err)
	}
	v, err := version.NewVersion(env.Version)
	if err != nil || !wireCompatible.Check(v) {
		return domain.Unit{}, fmt.Errorf("%w: %q", domain.ErrWireVersion, env.Version)
	}

	rec := env.Unit
	if !rec.Kind.Valid() {
		return domain.Unit{}, fmt.Errorf("%w: unit %s has kind %q", domain.ErrInvalidUnit, rec.ID, rec.Kind)
	}

	u := domain.Unit{
		ID:       rec.ID,
		Group:    rec.Group,
		Subgroup: rec.Subgroup,
		Kind:     rec.Kind,
		Source:   rec.Source,
		Fraction: rec.Fraction,
		Range:    rec.Range,
	}
	if rec.Result == nil {
		return u, nil
	}
	return u.WithResult(rec.Result)
}
