package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"higgs-distributed/internal/domain"
)

// WorkerFactory builds a worker bound to conn.
type WorkerFactory func(id int, conn domain.Connection) *Worker

// RunLocal runs the coordinator together with n workers in one process. The
// workers start once dispatch has completed, each with its own connection
// from dial. Worker failures are logged; the outcome of the run is decided by
// the coordinator alone.
func RunLocal(ctx context.Context, logger *zap.Logger, coordinator *Coordinator,
	dial domain.Dialer, newWorker WorkerFactory, n int) (*RunReport, error) {
	var g errgroup.Group
	coordinator.OnDispatched(func(ctx context.Context) {
		for i := 0; i < n; i++ {
			i := i
			logger.Info("Starting worker", zap.Int("id", i))
			g.Go(func() error {
				conn, err := dial(ctx)
				if err != nil {
					return fmt.Errorf("worker %d: %w", i, err)
				}
				defer conn.Close()

				if err := newWorker(i, conn).Run(ctx); err != nil {
					return fmt.Errorf("worker %d: %w", i, err)
				}
				return nil
			})
		}
	})

	report, err := coordinator.Run(ctx)
	if werr := g.Wait(); werr != nil {
		logger.Error("Worker failed", zap.Error(werr))
	}
	return report, err
}
