package app

import (
	"errors"

	"higgs-distributed/internal/domain"
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitConnectFailed     = 2
	ExitSourceUnavailable = 3
	ExitDispatchFailed    = 4
	ExitNoResults         = 5
	ExitExcessiveMissing  = 6
	ExitEmptyGroup        = 7
	ExitReportFailed      = 8
)

// ExitCode classifies err by its sentinel.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrConnectFailed):
		return ExitConnectFailed
	case errors.Is(err, domain.ErrSourceUnavailable):
		return ExitSourceUnavailable
	case errors.Is(err, domain.ErrDispatchFailed):
		return ExitDispatchFailed
	case errors.Is(err, domain.ErrNoResults):
		return ExitNoResults
	case errors.Is(err, domain.ErrExcessiveMissing):
		return ExitExcessiveMissing
	case errors.Is(err, domain.ErrEmptyGroup):
		return ExitEmptyGroup
	case errors.Is(err, domain.ErrReportFailed):
		return ExitReportFailed
	}
	return ExitFailure
}
