package split

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/internal/adapters/config"
	"defilens/internal/adapters/upstream"
	"defilens/pkg/logger"
)

func testLookup(t *testing.T, handler http.Handler, ttl time.Duration) *CategoryLookup {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.UpstreamConfig{
		BaseURL:           srv.URL,
		DimensionsBaseURL: srv.URL,
		StablecoinsURL:    srv.URL,
		RequestTimeout:    5 * time.Second,
		RateLimitPerSec:   1000,
		RateLimitBurst:    1000,
	}
	return NewCategoryLookup(upstream.NewClient(cfg, logger.Get()), ttl)
}

func TestCategoryLookupIndexAndCache(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		serveJSON(t, w, `{
			"protocols": [
				{"name": "Uniswap V2", "slug": "uniswap-v2", "category": "Dexs"},
				{"name": "Aave", "category": "Lending"}
			],
			"parentProtocols": []
		}`)
	})

	lookup := testLookup(t, mux, time.Minute)

	index := lookup.Index(context.Background())
	require.NotNil(t, index)
	assert.Equal(t, "dexs", index.category("Uniswap V2"))
	assert.Equal(t, "dexs", index.category("uniswap v2"))
	assert.Equal(t, "dexs", index.category("uniswap-v2"))
	assert.Equal(t, "lending", index.category("Aave"))
	assert.Equal(t, "", index.category("Unknown"))

	// Second call within the TTL serves the cached snapshot.
	lookup.Index(context.Background())
	assert.Equal(t, int64(1), calls.Load())
}

func TestCategoryLookupNilOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	lookup := testLookup(t, mux, time.Minute)

	index := lookup.Index(context.Background())
	assert.Nil(t, index)
	assert.Equal(t, "", index.category("anything"))
}

func TestCategoryIndexExtended(t *testing.T) {
	base := &categoryIndex{
		byName: map[string]string{"aave": "lending"},
		bySlug: map[string]string{"aave": "lending"},
	}

	extended := base.extended([]upstream.OverviewProtocol{
		{Name: "Uniswap", DisplayName: "Uniswap V3", Slug: "uniswap", Category: "Dexs"},
		{Name: "NoCategory"},
	})

	assert.Equal(t, "dexs", extended.category("Uniswap"))
	assert.Equal(t, "dexs", extended.category("Uniswap V3"))
	assert.Equal(t, "lending", extended.category("Aave"))
	assert.Equal(t, "", extended.category("NoCategory"))

	// The base snapshot stays untouched.
	assert.Equal(t, "", base.category("Uniswap"))

	var nilIndex *categoryIndex
	assert.Nil(t, nilIndex.extended(nil))
}
