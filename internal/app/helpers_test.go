package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"higgs-distributed/internal/domain"
	"higgs-distributed/internal/infrastructure"
)

var errBroken = errors.New("broken")

// fakeCatalog serves record counts from a map and synthetic records.
type fakeCatalog struct {
	counts map[string]int64
	fail   map[string]bool
	delay  time.Duration
}

func (c *fakeCatalog) RecordCount(_ context.Context, source string) (int64, error) {
	time.Sleep(c.delay)
	if c.fail[source] {
		return 0, fmt.Errorf("%w: %s", domain.ErrSourceUnavailable, source)
	}
	n, ok := c.counts[source]
	if !ok {
		return 0, fmt.Errorf("%w: unknown %s", domain.ErrSourceUnavailable, source)
	}
	return n, nil
}

func (c *fakeCatalog) ReadRange(_ context.Context, source string, r domain.Range) ([][]byte, error) {
	records := make([][]byte, 0, r.Len())
	for i := r.Start; i < r.Stop; i++ {
		records = append(records, []byte(fmt.Sprintf(`{"i":%d}`, i)))
	}
	return records, nil
}

// flakyConn wraps a connection and fails Publish after a number of calls.
type flakyConn struct {
	domain.Connection
	mu        sync.Mutex
	publishes int
	failAfter int
}

func (c *flakyConn) Publish(ctx context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishes >= c.failAfter {
		return errBroken
	}
	c.publishes++
	return c.Connection.Publish(ctx, channel, payload)
}

func observedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func warnLogger() (*zap.Logger, *observer.ObservedLogs) {
	return observedLogger(zap.NewAtomicLevelAt(zap.WarnLevel))
}

// eventsResult returns a result with n events of unit weight.
func eventsResult(n int) *domain.Result {
	events := make([]domain.Event, n)
	for i := range events {
		events[i] = domain.Event{Mass: 125, Weight: 1}
	}
	return &domain.Result{EventsBefore: n, Events: events}
}

func withResult(u domain.Unit, r *domain.Result) domain.Unit {
	out, err := u.WithResult(r)
	if err != nil {
		panic(err)
	}
	return out
}

func makeUnits(group string, n int) []domain.Unit {
	units := make([]domain.Unit, n)
	for i := range units {
		units[i] = domain.Unit{
			ID:       fmt.Sprintf("%s-%d", group, i),
			Group:    group,
			Subgroup: group + "_sub",
			Kind:     domain.KindSimulated,
			Source:   group + ".jsonl",
			Fraction: 1 / float64(n),
			Range:    domain.Range{Start: int64(i * 10), Stop: int64(i*10 + 10)},
		}
	}
	return units
}

func publishResults(conn domain.Connection, channel string, units []domain.Unit) error {
	codec := infrastructure.NewMsgpackCodec()
	for _, u := range units {
		data, err := codec.Encode(u)
		if err != nil {
			return err
		}
		if err := conn.Publish(context.Background(), channel, data); err != nil {
			return err
		}
	}
	return nil
}
