package domain

import "context"

// Processor applies the domain transformation to one unit and returns the
// unit with its result populated. Reprocessing the same unit must yield an
// equivalent result.
type Processor interface {
	Process(ctx context.Context, unit Unit) (Unit, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, unit Unit) (Unit, error)

func (f ProcessorFunc) Process(ctx context.Context, unit Unit) (Unit, error) {
	return f(ctx, unit)
}
