package physics

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"higgs-distributed/internal/domain"
)

var ErrInvalidBinning = errors.New("invalid binning")

// BinEdges returns the edges of uniform bins covering [min, max].
func BinEdges(min, max, width float64) ([]float64, error) {
	if width <= 0 || max <= min {
		return nil, ErrInvalidBinning
	}

	n := int((max-min)/width + 0.5)
	if n < 1 {
		return nil, ErrInvalidBinning
	}
	edges := make([]float64, n+1)
	floats.Span(edges, min, min+float64(n)*width)
	return edges, nil
}

// WeightedHistogram bins masses with the given weights. Values outside the
// edges are ignored.
func WeightedHistogram(masses, weights, edges []float64) (domain.Histogram, error) {
	if len(edges) < 2 {
		return domain.Histogram{}, ErrInvalidBinning
	}
	if weights != nil && len(weights) != len(masses) {
		return domain.Histogram{}, errors.New("mass and weight lengths differ")
	}

	lo, hi := edges[0], edges[len(edges)-1]
	var x, w []float64
	for i, m := range masses {
		// stat.Histogram panics on values outside [lo, hi).
		if m < lo || m >= hi {
			continue
		}
		x = append(x, m)
		if weights != nil {
			w = append(w, weights[i])
		}
	}

	if weights != nil {
		sort.Sort(byValue{x, w})
	} else {
		sort.Float64s(x)
	}

	counts := stat.Histogram(nil, edges, x, w)
	return domain.Histogram{Edges: edges, Counts: counts}, nil
}

type byValue struct {
	x, w []float64
}

func (b byValue) Len() int           { return len(b.x) }
func (b byValue) Less(i, j int) bool { return b.x[i] < b.x[j] }
func (b byValue) Swap(i, j int) {
	b.x[i], b.x[j] = b.x[j], b.x[i]
	b.w[i], b.w[j] = b.w[j], b.w[i]
}
