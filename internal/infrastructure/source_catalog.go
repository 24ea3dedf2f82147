package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/bluele/gcache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"higgs-distributed/internal/domain"
)

const defaultCacheSize = 8

// SourceCatalog reads JSON Lines sources from local paths or http(s) URLs.
// Each non-empty line is one record. Parsed sources and record counts are
// kept in ARC caches; concurrent misses on one source share a single fetch.
type SourceCatalog struct {
	logger   *zap.Logger
	client   *http.Client
	bodies   gcache.Cache
	counts   gcache.Cache
	inflight singleflight.Group
}

func NewSourceCatalog(logger *zap.Logger, client *http.Client, cacheSize int) *SourceCatalog {
	if client == nil {
		client = http.DefaultClient
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &SourceCatalog{
		logger: logger,
		client: client,
		bodies: gcache.New(cacheSize).ARC().Build(),
		counts: gcache.New(cacheSize * 16).ARC().Build(),
	}
}

// RecordCount counts the records of source. Unless the source is already
// loaded, the body is streamed and not kept.
func (c *SourceCatalog) RecordCount(ctx context.Context, source string) (int64, error) {
	if records, err := c.bodies.GetIFPresent(source); err == nil {
		return int64(len(records.([][]byte))), nil
	}
	if n, err := c.counts.Get(source); err == nil {
		return n.(int64), nil
	}

	v, err, _ := c.inflight.Do("count:"+source, func() (interface{}, error) {
		body, err := c.open(ctx, source)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		var n int64
		err = scanRecords(body, func([]byte) { n++ })
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, source, err)
	}

	n := v.(int64)
	if err := c.counts.Set(source, n); err != nil {
		c.logger.Warn("Failed to cache record count", zap.String("source", source), zap.Error(err))
	}
	return n, nil
}

func (c *SourceCatalog) ReadRange(ctx context.Context, source string, r domain.Range) ([][]byte, error) {
	records, err := c.records(ctx, source)
	if err != nil {
		return nil, err
	}
	if r.Start < 0 || r.Start > r.Stop || r.Stop > int64(len(records)) {
		return nil, fmt.Errorf("%w: range %s outside %d records of %s",
			domain.ErrSourceUnavailable, r, len(records), source)
	}
	return records[r.Start:r.Stop], nil
}

func (c *SourceCatalog) records(ctx context.Context, source string) ([][]byte, error) {
	if cached, err := c.bodies.Get(source); err == nil {
		return cached.([][]byte), nil
	}

	v, err, shared := c.inflight.Do("body:"+source, func() (interface{}, error) {
		body, err := c.open(ctx, source)
		if err != nil {
			return nil, err
		}
		defer body.Close()

		var records [][]byte
		if err := scanRecords(body, func(line []byte) {
			records = append(records, append([]byte(nil), line...))
		}); err != nil {
			return nil, err
		}

		c.logger.Debug("Source loaded",
			zap.String("source", source),
			zap.Int("records", len(records)))
		if err := c.bodies.Set(source, records); err != nil {
			c.logger.Warn("Failed to cache source", zap.String("source", source), zap.Error(err))
		}
		return records, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, source, err)
	}
	if shared {
		c.logger.Debug("Shared source load", zap.String("source", source))
	}
	return v.([][]byte), nil
}

func (c *SourceCatalog) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return os.Open(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// scanRecords calls fn with every non-empty trimmed line of r. The slice
// passed to fn is only valid during the call.
func scanRecords(r io.Reader, fn func(line []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}
