package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"higgs-distributed/internal/domain"
)

func TestReconcile_NothingMissing(t *testing.T) {
	units := makeUnits("a", 4)
	reversed := []domain.Unit{units[3], units[2], units[1], units[0]}

	assert.Nil(t, Reconcile(units, reversed))
	assert.Nil(t, Reconcile(nil, nil))
}

func TestReconcile_ReportsDifference(t *testing.T) {
	units := makeUnits("a", 5)
	missing := Reconcile(units, []domain.Unit{units[1], units[3], units[3]})

	assert.Equal(t, map[string]struct{}{"a-0": {}, "a-2": {}, "a-4": {}}, missing)

	ordered := MissingUnits(units, missing)
	ids := make([]string, len(ordered))
	for i, u := range ordered {
		ids[i] = u.ID
	}
	assert.Equal(t, []string{"a-0", "a-2", "a-4"}, ids)
}

func TestReconcile_IgnoresForeignRetrieved(t *testing.T) {
	units := makeUnits("a", 2)
	missing := Reconcile(units, append(makeUnits("b", 3), units[0]))
	assert.Equal(t, map[string]struct{}{"a-1": {}}, missing)
}
