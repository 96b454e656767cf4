package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/internal/adapters/config"
	"defilens/pkg/errors"
	"defilens/pkg/logger"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
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
	return NewClient(cfg, logger.Get()), srv
}

func TestNestedValueUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"plain number", `42.5`, 42.5},
		{"null", `null`, 0},
		{"flat object", `{"v1": 10, "v2": 5}`, 15},
		{"nested object", `{"v1": {"usdc": 10, "usdt": 20}, "v2": 5}`, 35},
		{"array", `[1, 2, 3]`, 6},
		{"non-finite string", `"abc"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n NestedValue
			require.NoError(t, json.Unmarshal([]byte(tt.input), &n))
			assert.Equal(t, tt.expected, float64(n))
		})
	}
}

func TestBreakdownRowUnmarshal(t *testing.T) {
	var row BreakdownRow
	require.NoError(t, json.Unmarshal([]byte(`[1700000000, {"uniswap": {"v2": 100, "v3": 200}, "curve": 50}]`), &row))
	assert.Equal(t, int64(1700000000), row.Ts)
	assert.Equal(t, 300.0, float64(row.Values["uniswap"]))
	assert.Equal(t, 50.0, float64(row.Values["curve"]))

	// Millisecond timestamps come back in seconds.
	require.NoError(t, json.Unmarshal([]byte(`["1700000000000", {"a": 1}]`), &row))
	assert.Equal(t, int64(1700000000), row.Ts)
}

func TestFlexTimestamp(t *testing.T) {
	var ts FlexTimestamp
	require.NoError(t, json.Unmarshal([]byte(`"1700000000"`), &ts))
	assert.True(t, ts.Valid)
	assert.Equal(t, 1700000000.0, ts.Value)

	ts = FlexTimestamp{}
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.False(t, ts.Valid)
}

func TestStablecoinPointTs(t *testing.T) {
	p := StablecoinPoint{Date: FlexTimestamp{Value: 1700000000000, Valid: true}}
	ts, ok := p.Ts()
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)

	p = StablecoinPoint{Timestamp: FlexTimestamp{Value: 1700000000, Valid: true}}
	ts, ok = p.Ts()
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)

	_, ok = StablecoinPoint{}.Ts()
	assert.False(t, ok)
}

func TestFetchProtocols(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lite/protocols2", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("b"))
		_, _ = w.Write([]byte(`{
			"protocols": [
				{"name": "Uniswap V3", "category": "DEX", "tvl": 100, "parentProtocol": "parent#uniswap",
				 "chainTvls": {"Ethereum": {"tvl": 60}, "Ethereum-borrowed": {"tvl": 5}}}
			],
			"parentProtocols": [{"id": "parent#uniswap", "name": "Uniswap"}]
		}`))
	}))

	resp, err := client.FetchProtocols(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Protocols, 1)
	assert.Equal(t, "Uniswap V3", resp.Protocols[0].Name)
	assert.Equal(t, 60.0, resp.Protocols[0].ChainTvls["Ethereum"].Tvl)
	require.Len(t, resp.ParentProtocols, 1)
	assert.Equal(t, "parent#uniswap", resp.ParentProtocols[0].ID)
}

func TestFetchChainChartEscapesDisplayName(t *testing.T) {
	var gotPath string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"tvl": [[1700000000, 100]]}`))
	}))

	chart, err := client.FetchChainChart(context.Background(), "op_bnb")
	require.NoError(t, err)
	assert.Equal(t, "/lite/charts/opBNB", gotPath)
	require.Len(t, chart.Tvl, 1)
	assert.Equal(t, 100.0, chart.Tvl[0].Value)

	_, err = client.FetchChainChart(context.Background(), "zksync era")
	require.NoError(t, err)
	assert.Equal(t, "/lite/charts/ZKsync%20Era", gotPath)
}

func TestFetchDimensionsOverviewQuery(t *testing.T) {
	var gotURL string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{
			"protocols": [{"name": "GMX", "slug": "gmx", "total24h": 5000}],
			"totalDataChart": [[1700000000, 9000]],
			"allChains": ["Ethereum", "Arbitrum"]
		}`))
	}))

	resp, err := client.FetchDimensionsOverview(context.Background(), OverviewRequest{
		Endpoint:         "derivatives",
		Chain:            "arbitrum",
		DataType:         "dailyVolume",
		ExcludeBreakdown: true,
	})
	require.NoError(t, err)
	assert.Contains(t, gotURL, "/overview/derivatives/arbitrum?")
	assert.Contains(t, gotURL, "excludeTotalDataChartBreakdown=true")
	assert.Contains(t, gotURL, "dataType=dailyVolume")
	require.Len(t, resp.Protocols, 1)
	assert.Equal(t, 5000.0, resp.Protocols[0].Total24h)
	require.Len(t, resp.TotalDataChart, 1)
	assert.Equal(t, []string{"Ethereum", "Arbitrum"}, resp.AllChains)
}

func TestGetJSONErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		_, err := client.FetchProtocols(context.Background())
		assert.ErrorIs(t, err, errors.ErrUpstreamStatus)
	})

	t.Run("malformed body", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"protocols": [`))
		}))
		_, err := client.FetchProtocols(context.Background())
		assert.ErrorIs(t, err, errors.ErrUpstreamDecode)
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.FetchProtocols(ctx)
		assert.Error(t, err)
	})
}

func TestFetchStablecoinDominanceAll(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stablecoincharts2/all-dominance-chain-breakdown", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"chainChartMap": {
				"Ethereum": [{"date": "1700000000", "totalCirculatingUSD": {"peggedUSD": 100, "peggedEUR": 10}}],
				"all": [{"date": 1700000000, "totalCirculatingUSD": 500}]
			}
		}`))
	}))

	resp, err := client.FetchStablecoinDominanceAll(context.Background())
	require.NoError(t, err)
	eth := resp.ChainChartMap["Ethereum"]
	require.Len(t, eth, 1)
	ts, ok := eth[0].Ts()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), ts)
	assert.Equal(t, 110.0, float64(eth[0].TotalCirculatingUSD))
}
