// Package tvl computes adjusted TVL series and knows which chainTvls keys
// are synthetic components rather than real chains.
package tvl

import (
	"math"
	"strings"

	"defilens/internal/domain/timeseries"
)

// keysToSkip are synthetic chainTvls keys representing non-primary TVL
// components, not separate chains. They appear both bare ("staking") and
// chain-suffixed ("ethereum-staking").
var keysToSkip = map[string]struct{}{
	"staking":       {},
	"pool2":         {},
	"borrowed":      {},
	"doublecounted": {},
	"liquidstaking": {},
	"vesting":       {},
}

// ShouldSkipChainKey reports whether a protocol chainTvls key is a
// synthetic component rather than a chain.
func ShouldSkipChainKey(key string) bool {
	if _, ok := keysToSkip[key]; ok {
		return true
	}
	segments := strings.Split(key, "-")
	for _, seg := range segments[1:] {
		if _, ok := keysToSkip[seg]; ok {
			return true
		}
	}
	return false
}

// IsIgnoredChainKey reports whether a chainTvls key must be excluded when
// ranking protocols by TVL. Narrower than ShouldSkipChainKey on purpose:
// the ranking pass only strips borrowed/pool2/staking.
func IsIgnoredChainKey(key string) bool {
	return key == "borrowed" ||
		key == "pool2" ||
		key == "staking" ||
		strings.Contains(key, "-borrowed") ||
		strings.Contains(key, "-pool2") ||
		strings.Contains(key, "-staking")
}

// ChainChart is the raw chain TVL chart payload. Alongside the headline
// series it carries the component series needed for adjustment.
type ChainChart struct {
	Tvl            []timeseries.Point `json:"tvl"`
	Doublecounted  []timeseries.Point `json:"doublecounted"`
	Liquidstaking  []timeseries.Point `json:"liquidstaking"`
	DcAndLsOverlap []timeseries.Point `json:"dcAndLsOverlap"`
}

// AdjustedChainTvl strips double-counted and liquid-staking TVL from a
// chain chart, adding back their overlap so it is not subtracted twice.
func AdjustedChainTvl(chart ChainChart) []timeseries.Point {
	adjusted := make(map[int64]float64, len(chart.Tvl))
	for _, p := range chart.Tvl {
		if !isFinite(p.Value) {
			continue
		}
		adjusted[p.Ts] = p.Value
	}
	for _, p := range chart.Doublecounted {
		if _, ok := adjusted[p.Ts]; ok && isFinite(p.Value) {
			adjusted[p.Ts] -= p.Value
		}
	}
	for _, p := range chart.Liquidstaking {
		if _, ok := adjusted[p.Ts]; ok && isFinite(p.Value) {
			adjusted[p.Ts] -= p.Value
		}
	}
	for _, p := range chart.DcAndLsOverlap {
		if _, ok := adjusted[p.Ts]; ok && isFinite(p.Value) {
			adjusted[p.Ts] += p.Value
		}
	}
	return timeseries.SortedPairs(adjusted)
}

// DatedTvl is one day of a protocol's per-chain TVL history.
type DatedTvl struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

// ChainTvlSeries is one chainTvls entry of a protocol detail payload.
type ChainTvlSeries struct {
	Tvl []DatedTvl `json:"tvl"`
}

// ProtocolTvlOptions filters which chain keys contribute to an adjusted
// protocol TVL series.
type ProtocolTvlOptions struct {
	FilterMode    string
	IncludeChains []string
	ExcludeChains []string
}

// AdjustedProtocolTvl sums a protocol's per-day TVL across its real chain
// keys, honoring include/exclude chain options. Synthetic component keys
// never contribute.
func AdjustedProtocolTvl(chainTvls map[string]ChainTvlSeries, opts ProtocolTvlOptions) []timeseries.Point {
	include := make(map[string]struct{}, len(opts.IncludeChains))
	for _, c := range opts.IncludeChains {
		include[c] = struct{}{}
	}
	exclude := make(map[string]struct{}, len(opts.ExcludeChains))
	for _, c := range opts.ExcludeChains {
		exclude[c] = struct{}{}
	}

	daily := make(map[int64]float64)
	for key, entry := range chainTvls {
		if ShouldSkipChainKey(key) {
			continue
		}
		if opts.FilterMode == "include" && len(include) > 0 {
			if _, ok := include[key]; !ok {
				continue
			}
		}
		if opts.FilterMode == "exclude" && len(exclude) > 0 {
			if _, ok := exclude[key]; ok {
				continue
			}
		}
		for _, d := range entry.Tvl {
			if !isFinite(d.TotalLiquidityUSD) {
				continue
			}
			daily[timeseries.ToUTCDay(d.Date)] += d.TotalLiquidityUSD
		}
	}
	return timeseries.SortedPairs(daily)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
