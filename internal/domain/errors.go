package domain

import "errors"

var (
	ErrConnectFailed     = errors.New("connect failed")
	ErrDispatchFailed    = errors.New("dispatch failed")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrProcessing        = errors.New("processing failed")
	ErrEmptyGroup        = errors.New("empty group")
	ErrNoResults         = errors.New("no results retrieved")
	ErrExcessiveMissing  = errors.New("excessive missing data")
	ErrReportFailed      = errors.New("report failed")

	// ErrDuplicateUnit marks a unit set that would dispatch the same id or
	// the same source slice twice.
	ErrDuplicateUnit     = errors.New("duplicate unit")
	ErrAlreadyDispatched = errors.New("units already dispatched")

	ErrResultAlreadySet = errors.New("result already set")
	ErrInvalidUnit      = errors.New("invalid unit")
	ErrWireVersion      = errors.New("unsupported wire version")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrUnknownDelivery  = errors.New("unknown delivery")
)
