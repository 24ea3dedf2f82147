package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
)

func jsonLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"i\":%d}\n", i)
		if i%3 == 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestSourceCatalog_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_A.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(jsonLines(10)), 0o644))

	catalog := NewSourceCatalog(zap.NewNop(), nil, 2)
	ctx := context.Background()

	n, err := catalog.RecordCount(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	records, err := catalog.ReadRange(ctx, path, domain.Range{Start: 3, Stop: 6})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, `{"i":3}`, string(records[0]))
	assert.Equal(t, `{"i":5}`, string(records[2]))

	_, err = catalog.ReadRange(ctx, path, domain.Range{Start: 8, Stop: 11})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func countingServer(t *testing.T, hits *atomic.Int32, delay time.Duration) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/MC/llll.jsonl" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		time.Sleep(delay)
		fmt.Fprint(w, jsonLines(5))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSourceCatalog_RemoteCountAndBodyAreCached(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, &hits, 0)
	catalog := NewSourceCatalog(zap.NewNop(), srv.Client(), 4)
	ctx := context.Background()
	url := srv.URL + "/MC/llll.jsonl"

	for j := 0; j < 3; j++ {
		n, err := catalog.RecordCount(ctx, url)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	}
	assert.Equal(t, int32(1), hits.Load())

	for j := 0; j < 3; j++ {
		records, err := catalog.ReadRange(ctx, url, domain.Range{Start: 0, Stop: 5})
		require.NoError(t, err)
		assert.Len(t, records, 5)
	}
	assert.Equal(t, int32(2), hits.Load())

	_, err := catalog.RecordCount(ctx, srv.URL+"/MC/missing.jsonl")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestSourceCatalog_ConcurrentMissesShareOneFetch(t *testing.T) {
	var hits atomic.Int32
	srv := countingServer(t, &hits, 50*time.Millisecond)
	catalog := NewSourceCatalog(zap.NewNop(), srv.Client(), 4)
	url := srv.URL + "/MC/llll.jsonl"

	var wg sync.WaitGroup
	for j := 0; j < 8; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := catalog.ReadRange(context.Background(), url, domain.Range{Start: 1, Stop: 3})
			assert.NoError(t, err)
			assert.Len(t, records, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())

	n, err := catalog.RecordCount(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int32(1), hits.Load(), "count of a loaded source needs no fetch")
}

func TestSourceCatalog_MissingFile(t *testing.T) {
	catalog := NewSourceCatalog(zap.NewNop(), nil, 0)
	_, err := catalog.RecordCount(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
