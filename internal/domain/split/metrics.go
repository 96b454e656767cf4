package split

import (
	"defilens/pkg/errors"
)

// MetricConfig maps a public metric key onto the upstream dimensions
// endpoint and dataType query parameter serving it.
type MetricConfig struct {
	Endpoint   string
	DataType   string
	MetricName string
}

// metricConfigBase covers the metrics every orchestrator understands.
var metricConfigBase = map[string]MetricConfig{
	"tvl":                 {Endpoint: "tvl", MetricName: "TVL"},
	"fees":                {Endpoint: "fees", MetricName: "fees"},
	"revenue":             {Endpoint: "fees", DataType: "dailyRevenue", MetricName: "revenue"},
	"volume":              {Endpoint: "dexs", MetricName: "volume"},
	"perps":               {Endpoint: "derivatives", MetricName: "perps volume"},
	"options-notional":    {Endpoint: "options", DataType: "dailyNotionalVolume", MetricName: "options notional"},
	"options-premium":     {Endpoint: "options", DataType: "dailyPremiumVolume", MetricName: "options premium"},
	"bridge-aggregators":  {Endpoint: "bridge-aggregators", MetricName: "bridge volume"},
	"dex-aggregators":     {Endpoint: "aggregators", MetricName: "DEX aggregator volume"},
	"perps-aggregators":   {Endpoint: "aggregator-derivatives", MetricName: "perps aggregator volume"},
	"user-fees":           {Endpoint: "fees", DataType: "dailyUserFees", MetricName: "user fees"},
	"holders-revenue":     {Endpoint: "fees", DataType: "dailyHoldersRevenue", MetricName: "holders revenue"},
	"protocol-revenue":    {Endpoint: "fees", DataType: "dailyProtocolRevenue", MetricName: "protocol revenue"},
	"supply-side-revenue": {Endpoint: "fees", DataType: "dailySupplySideRevenue", MetricName: "supply side revenue"},
}

// metricAliases are legacy metric keys still accepted on the API surface.
var metricAliases = map[string]string{
	"dexVolume":  "volume",
	"perpVolume": "perps",
}

// dimensionsOnlyMetrics extend the base table for the protocol-keyed
// dimensions split.
var dimensionsOnlyMetrics = map[string]MetricConfig{
	"open-interest": {Endpoint: "open-interest", DataType: "openInterestAtEnd", MetricName: "open interest"},
}

// ChainOnlyMetrics are inherently chain-scoped: no single-protocol
// breakdown exists upstream, so they always run in all-protocols mode.
var ChainOnlyMetrics = map[string]string{
	"stablecoins":   "Stablecoin Mcap",
	"chain-fees":    "Chain Fees",
	"chain-revenue": "Chain Revenue",
}

// ChainFeesDataType returns the dataType parameter for the chain-fees
// family of metrics.
func ChainFeesDataType(metric string) string {
	if metric == "chain-revenue" {
		return "dailyRevenue"
	}
	return ""
}

// NormalizeMetric resolves legacy aliases to canonical metric keys.
func NormalizeMetric(metric string) string {
	if canonical, ok := metricAliases[metric]; ok {
		return canonical
	}
	return metric
}

// MetricFor looks up the config for a metric key, resolving aliases.
// Unknown metrics fail fast: that is a caller programming error, not a
// runtime data error.
func MetricFor(metric string) (MetricConfig, error) {
	key := NormalizeMetric(metric)
	if cfg, ok := metricConfigBase[key]; ok {
		return cfg, nil
	}
	return MetricConfig{}, errors.Wrapf(errors.ErrUnsupportedMetric, "%s", metric)
}

// DimensionsMetricFor is MetricFor extended with the dimensions-split-only
// metrics (open interest).
func DimensionsMetricFor(metric string) (MetricConfig, error) {
	key := NormalizeMetric(metric)
	if cfg, ok := dimensionsOnlyMetrics[key]; ok {
		return cfg, nil
	}
	return MetricFor(metric)
}

// IsChainOnlyMetric reports whether the metric has no per-protocol form.
func IsChainOnlyMetric(metric string) bool {
	_, ok := ChainOnlyMetrics[metric]
	return ok
}
