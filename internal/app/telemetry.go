package app

import (
	"bytes"
	"fmt"
	"os"

	"github.com/VictoriaMetrics/metrics"
)

// Telemetry holds the run counters of one process.
type Telemetry struct {
	set *metrics.Set

	UnitsDispatched  *metrics.Counter
	ResultsCollected *metrics.Counter
	ResultsDuplicate *metrics.Counter
	ResultsDropped   *metrics.Counter
	UnitsMissing     *metrics.Counter
	TasksOK          *metrics.Counter
	TasksNacked      *metrics.Counter
	TasksRejected    *metrics.Counter
}

func NewTelemetry() *Telemetry {
	set := metrics.NewSet()
	return &Telemetry{
		set:              set,
		UnitsDispatched:  set.NewCounter("units_dispatched_total"),
		ResultsCollected: set.NewCounter("results_collected_total"),
		ResultsDuplicate: set.NewCounter("results_duplicate_total"),
		ResultsDropped:   set.NewCounter("results_dropped_total"),
		UnitsMissing:     set.NewCounter("units_missing_total"),
		TasksOK:          set.NewCounter(`tasks_processed_total{status="ok"}`),
		TasksNacked:      set.NewCounter(`tasks_processed_total{status="nack"}`),
		TasksRejected:    set.NewCounter(`tasks_processed_total{status="rejected"}`),
	}
}

// Prometheus renders the counters in Prometheus text format.
func (t *Telemetry) Prometheus() []byte {
	var buf bytes.Buffer
	t.set.WritePrometheus(&buf)
	return buf.Bytes()
}

// WriteFile writes the counters to path. An empty path is a no-op.
func (t *Telemetry) WriteFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, t.Prometheus(), 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
