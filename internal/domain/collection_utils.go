package domain

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

var ErrEmptyCollection = errors.New("empty collection")

// Columns splits the collection into parallel mass and weight slices.
func (c *Collection) Columns() (masses, weights []float64, err error) {
	if c == nil || len(c.Events) == 0 {
		return nil, nil, ErrEmptyCollection
	}

	masses = make([]float64, len(c.Events))
	weights = make([]float64, len(c.Events))
	for i, e := range c.Events {
		masses[i] = e.Mass
		weights[i] = e.Weight
	}
	return masses, weights, nil
}

// WeightedPopulation is the sum of event weights, equal to the event count
// for measured data.
func (c *Collection) WeightedPopulation() float64 {
	_, weights, err := c.Columns()
	if err != nil {
		return 0
	}
	return floats.Sum(weights)
}
