package split

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/internal/adapters/config"
	"defilens/internal/adapters/upstream"
	"defilens/internal/domain/split"
	splitsvc "defilens/internal/services/split"
	"defilens/pkg/logger"
)

// Day-aligned UTC timestamps safely in the past.
const (
	day1 int64 = 1700006400
	day2 int64 = 1700092800
)

func testMux(t *testing.T, upstreamHandler http.Handler) *http.ServeMux {
	t.Helper()
	srv := httptest.NewServer(upstreamHandler)
	t.Cleanup(srv.Close)

	cfg := config.UpstreamConfig{
		BaseURL:           srv.URL,
		DimensionsBaseURL: srv.URL,
		StablecoinsURL:    srv.URL,
		RequestTimeout:    5 * time.Second,
		RateLimitPerSec:   1000,
		RateLimitBurst:    1000,
	}
	client := upstream.NewClient(cfg, logger.Get())
	lookup := splitsvc.NewCategoryLookup(client, time.Minute)
	svc := splitsvc.NewService(client, lookup, config.SplitConfig{DefaultLimit: 5, MaxLimit: 20})

	handler := NewHandler(svc, NewResultCache(nil, time.Minute), config.SplitConfig{DefaultLimit: 5, MaxLimit: 20})
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func serveJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func TestHandlerDimensionsServesAndCaches(t *testing.T) {
	breakdown := fmt.Sprintf(`[
		[%d, {"Alpha": 100, "Beta": 40}],
		[%d, {"Alpha": 100, "Beta": 40}]
	]`, day1, day2)

	var overviewCalls atomic.Int64
	upstreamMux := http.NewServeMux()
	upstreamMux.HandleFunc("/overview/fees", func(w http.ResponseWriter, r *http.Request) {
		overviewCalls.Add(1)
		serveJSON(t, w, `{"protocols": [], "totalDataChart": [], "totalDataChartBreakdown": `+breakdown+`}`)
	})
	upstreamMux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "parentProtocols": []}`)
	})

	mux := testMux(t, upstreamMux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/split/dimensions?metric=fees&limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Empty(t, rec.Header().Get("X-Cache"))

	var result split.ProtocolSplitData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Series, 2)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	assert.Equal(t, "Others (1 protocols)", result.Series[1].Name)
	assert.Equal(t, 1, result.Metadata.TopN)

	// Same query again is served from the cache without touching upstream.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/split/dimensions?metric=fees&limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), overviewCalls.Load())

	var cached split.ProtocolSplitData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Equal(t, result, cached)
}

func TestHandlerUnsupportedMetric(t *testing.T) {
	mux := testMux(t, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/split/dimensions?metric=bogus", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unsupported metric", resp["error"])
	assert.Contains(t, resp["details"], "bogus")
}

func TestHandlerChainOnlyMetricRejectsProtocol(t *testing.T) {
	mux := testMux(t, http.NotFoundHandler())

	for _, metric := range []string{"stablecoins", "chain-fees", "chain-revenue"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/split/protocol-chain?metric="+metric+"&protocol=aave", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, metric)
	}

	// The same metrics pass with the default "All" protocol; an empty
	// upstream just yields an empty result.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/split/protocol-chain?metric=chain-fees", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	mux := testMux(t, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/split/tvl", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestParseLimit(t *testing.T) {
	h := &Handler{cfg: config.SplitConfig{DefaultLimit: 5, MaxLimit: 20}}

	tests := []struct {
		raw  string
		want int
	}{
		{"", 5},
		{"3", 3},
		{"50", 20},
		{"0", 5},
		{"-2", 5},
		{"abc", 5},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/split/tvl?limit="+tt.raw, nil)
		assert.Equal(t, tt.want, h.parseLimit(r), "limit=%q", tt.raw)
	}
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList(""))
	assert.Empty(t, parseList("All"))
	assert.Equal(t, []string{"Ethereum", "Polygon"}, parseList("Ethereum, Polygon"))
	assert.Equal(t, []string{"Ethereum"}, parseList("all,Ethereum,"))
}

func TestCacheKeyCanonicalization(t *testing.T) {
	a := cacheKey("tvl", "chains", joinCanonical([]string{"Polygon", "Ethereum"}))
	b := cacheKey("tvl", "chains", joinCanonical([]string{"ethereum", "polygon"}))
	assert.Equal(t, a, b)

	c := cacheKey("tvl", "chains", joinCanonical([]string{"ethereum"}))
	assert.NotEqual(t, a, c)
}

func TestResultCacheMemoryTTL(t *testing.T) {
	cache := NewResultCache(nil, 50*time.Millisecond)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)

	cache.Set(ctx, "k", []byte(`{"a":1}`))
	data, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), data)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}
