package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/pkg/errors"
)

func TestMetricFor(t *testing.T) {
	tests := []struct {
		metric       string
		wantEndpoint string
		wantDataType string
	}{
		{metric: "fees", wantEndpoint: "fees"},
		{metric: "revenue", wantEndpoint: "fees", wantDataType: "dailyRevenue"},
		{metric: "volume", wantEndpoint: "dexs"},
		{metric: "dexVolume", wantEndpoint: "dexs"},
		{metric: "perps", wantEndpoint: "derivatives"},
		{metric: "perpVolume", wantEndpoint: "derivatives"},
		{metric: "perps-aggregators", wantEndpoint: "aggregator-derivatives"},
		{metric: "holders-revenue", wantEndpoint: "fees", wantDataType: "dailyHoldersRevenue"},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			cfg, err := MetricFor(tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, cfg.Endpoint)
			assert.Equal(t, tt.wantDataType, cfg.DataType)
		})
	}
}

func TestMetricForUnsupported(t *testing.T) {
	_, err := MetricFor("does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedMetric))
}

func TestDimensionsMetricFor(t *testing.T) {
	cfg, err := DimensionsMetricFor("open-interest")
	require.NoError(t, err)
	assert.Equal(t, "open-interest", cfg.Endpoint)
	assert.Equal(t, "openInterestAtEnd", cfg.DataType)

	// open-interest never leaks into the base table
	_, err = MetricFor("open-interest")
	assert.Error(t, err)
}

func TestChainOnlyMetrics(t *testing.T) {
	assert.True(t, IsChainOnlyMetric("stablecoins"))
	assert.True(t, IsChainOnlyMetric("chain-fees"))
	assert.True(t, IsChainOnlyMetric("chain-revenue"))
	assert.False(t, IsChainOnlyMetric("fees"))

	assert.Equal(t, "dailyRevenue", ChainFeesDataType("chain-revenue"))
	assert.Equal(t, "", ChainFeesDataType("chain-fees"))
}

func TestParseFilterMode(t *testing.T) {
	assert.Equal(t, FilterExclude, ParseFilterMode("exclude"))
	assert.Equal(t, FilterInclude, ParseFilterMode("include"))
	assert.Equal(t, FilterInclude, ParseFilterMode(""))
	assert.Equal(t, FilterInclude, ParseFilterMode("bogus"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "aave-v3", Slug("AAVE V3"))
	assert.Equal(t, "rocket-pool", Slug("Rocket Pool"))
	assert.Equal(t, "lidos-vault", Slug("Lido's Vault"))
}

func TestMarketSector(t *testing.T) {
	assert.Nil(t, MarketSector(nil))
	got := MarketSector([]string{"lending", "dexs"})
	require.NotNil(t, got)
	assert.Equal(t, "lending,dexs", *got)
}
