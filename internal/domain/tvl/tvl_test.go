package tvl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/internal/domain/timeseries"
)

func TestShouldSkipChainKey(t *testing.T) {
	tests := []struct {
		key  string
		skip bool
	}{
		{"staking", true},
		{"pool2", true},
		{"borrowed", true},
		{"doublecounted", true},
		{"liquidstaking", true},
		{"vesting", true},
		{"Ethereum-staking", true},
		{"Arbitrum-borrowed", true},
		{"Ethereum", false},
		{"Arbitrum", false},
		{"Avalanche", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.skip, ShouldSkipChainKey(tt.key))
		})
	}
}

func TestIsIgnoredChainKey(t *testing.T) {
	assert.True(t, IsIgnoredChainKey("borrowed"))
	assert.True(t, IsIgnoredChainKey("pool2"))
	assert.True(t, IsIgnoredChainKey("staking"))
	assert.True(t, IsIgnoredChainKey("Ethereum-staking"))
	assert.False(t, IsIgnoredChainKey("Ethereum"))
	// ranking ignores fewer keys than chart building
	assert.False(t, IsIgnoredChainKey("doublecounted"))
	assert.False(t, IsIgnoredChainKey("vesting"))
}

func TestAdjustedChainTvl(t *testing.T) {
	chart := ChainChart{
		Tvl: []timeseries.Point{
			{Ts: 100, Value: 1000},
			{Ts: 200, Value: 1200},
		},
		Doublecounted: []timeseries.Point{
			{Ts: 100, Value: 100},
			{Ts: 200, Value: 150},
		},
		Liquidstaking: []timeseries.Point{
			{Ts: 100, Value: 50},
		},
		DcAndLsOverlap: []timeseries.Point{
			{Ts: 100, Value: 20},
		},
	}

	got := AdjustedChainTvl(chart)

	require.Len(t, got, 2)
	assert.Equal(t, timeseries.Point{Ts: 100, Value: 1000 - 100 - 50 + 20}, got[0])
	assert.Equal(t, timeseries.Point{Ts: 200, Value: 1200 - 150}, got[1])
}

func TestAdjustedChainTvlIgnoresComponentOnlyTimestamps(t *testing.T) {
	chart := ChainChart{
		Tvl:           []timeseries.Point{{Ts: 100, Value: 500}},
		Doublecounted: []timeseries.Point{{Ts: 999, Value: 50}},
	}

	got := AdjustedChainTvl(chart)

	require.Len(t, got, 1)
	assert.Equal(t, timeseries.Point{Ts: 100, Value: 500}, got[0])
}

func TestAdjustedProtocolTvl(t *testing.T) {
	const day = int64(86400)
	chainTvls := map[string]ChainTvlSeries{
		"Ethereum": {Tvl: []DatedTvl{
			{Date: 1 * day, TotalLiquidityUSD: 100},
			{Date: 2 * day, TotalLiquidityUSD: 110},
		}},
		"Arbitrum": {Tvl: []DatedTvl{
			{Date: 1 * day, TotalLiquidityUSD: 40},
		}},
		"Ethereum-staking": {Tvl: []DatedTvl{
			{Date: 1 * day, TotalLiquidityUSD: 999},
		}},
		"staking": {Tvl: []DatedTvl{
			{Date: 1 * day, TotalLiquidityUSD: 999},
		}},
	}

	t.Run("no filter sums real chains only", func(t *testing.T) {
		got := AdjustedProtocolTvl(chainTvls, ProtocolTvlOptions{})
		require.Len(t, got, 2)
		assert.Equal(t, timeseries.Point{Ts: 1 * day, Value: 140}, got[0])
		assert.Equal(t, timeseries.Point{Ts: 2 * day, Value: 110}, got[1])
	})

	t.Run("include filter keeps listed chains", func(t *testing.T) {
		got := AdjustedProtocolTvl(chainTvls, ProtocolTvlOptions{
			FilterMode:    "include",
			IncludeChains: []string{"Arbitrum"},
		})
		require.Len(t, got, 1)
		assert.Equal(t, timeseries.Point{Ts: 1 * day, Value: 40}, got[0])
	})

	t.Run("exclude filter drops listed chains", func(t *testing.T) {
		got := AdjustedProtocolTvl(chainTvls, ProtocolTvlOptions{
			FilterMode:    "exclude",
			ExcludeChains: []string{"Ethereum"},
		})
		require.Len(t, got, 1)
		assert.Equal(t, timeseries.Point{Ts: 1 * day, Value: 40}, got[0])
	})
}
