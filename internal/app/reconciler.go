package app

import "higgs-distributed/internal/domain"

// Reconcile returns the ids of expected units absent from retrieved, or nil
// when nothing is missing.
func Reconcile(expected, retrieved []domain.Unit) map[string]struct{} {
	missing := make(map[string]struct{}, len(expected))
	for _, u := range expected {
		missing[u.ID] = struct{}{}
	}
	for _, u := range retrieved {
		delete(missing, u.ID)
	}

	if len(missing) == 0 {
		return nil
	}
	return missing
}

// MissingUnits maps missing ids back to the expected units, in dispatch order.
func MissingUnits(expected []domain.Unit, missing map[string]struct{}) []domain.Unit {
	var units []domain.Unit
	for _, u := range expected {
		if _, ok := missing[u.ID]; ok {
			units = append(units, u)
		}
	}
	return units
}
