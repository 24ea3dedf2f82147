package physics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"higgs-distributed/internal/domain"
)

const (
	MeV = 0.001
	GeV = 1.0

	// NumLeptons is the lepton multiplicity of the 4ℓ final state.
	NumLeptons = 4
)

var ErrLeptonCount = errors.New("expected four leptons")

// Leptons holds the per-lepton kinematics of one event, energies in MeV.
type Leptons struct {
	Pt, Eta, Phi, E []float64
	Charge          []int
	Type            []int
}

func (l *Leptons) validate() error {
	for _, n := range []int{len(l.Pt), len(l.Eta), len(l.Phi), len(l.E), len(l.Charge), len(l.Type)} {
		if n < NumLeptons {
			return ErrLeptonCount
		}
	}
	return nil
}

// ValidLeptonType accepts eeee (44), eeμμ (48) and μμμμ (52) by the sum of
// PDG lepton types.
func ValidLeptonType(types []int) bool {
	if len(types) < NumLeptons {
		return false
	}
	sum := types[0] + types[1] + types[2] + types[3]
	return sum == 44 || sum == 48 || sum == 52
}

// ValidLeptonCharge accepts neutral four-lepton systems.
func ValidLeptonCharge(charges []int) bool {
	if len(charges) < NumLeptons {
		return false
	}
	return charges[0]+charges[1]+charges[2]+charges[3] == 0
}

// InvariantMass returns the invariant mass of the four-lepton system in GeV.
func InvariantMass(l *Leptons) (float64, error) {
	if err := l.validate(); err != nil {
		return 0, err
	}

	var px, py, pz, e float64
	for i := 0; i < NumLeptons; i++ {
		px += l.Pt[i] * math.Cos(l.Phi[i])
		py += l.Pt[i] * math.Sin(l.Phi[i])
		pz += l.Pt[i] * math.Sinh(l.Eta[i])
		e += l.E[i]
	}

	m2 := e*e - px*px - py*py - pz*pz
	if m2 < 0 {
		// Spacelike due to rounding; treat as massless.
		m2 = 0
	}
	return math.Sqrt(m2) * MeV, nil
}

// MCWeight computes the event weight of simulated data: the cross-section
// normalisation to the integrated luminosity (fb^-1) times all scale factors.
func MCWeight(info domain.SubsampleInfo, luminosity float64, factors []float64) (float64, error) {
	denominator := info.RedEff * info.SumW
	if denominator == 0 {
		return 0, errors.New("zero sum of weights or efficiency")
	}

	weight := luminosity * 1000 * info.XSec / denominator
	if len(factors) > 0 {
		weight *= floats.Prod(factors)
	}
	return weight, nil
}
