// Package split defines the output contract of the split pipeline and the
// static metric configuration table shared by its orchestrators.
package split

import (
	"defilens/internal/domain/timeseries"
)

// FilterMode selects whether a chain/category list includes or excludes.
type FilterMode string

const (
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// ParseFilterMode maps anything that is not explicitly "exclude" to include.
func ParseFilterMode(raw string) FilterMode {
	if raw == string(FilterExclude) {
		return FilterExclude
	}
	return FilterInclude
}

// OthersColor is the fixed color of the residual bucket.
const OthersColor = "#999999"

// ChartSeries is one ranked entity's metric values over time. After
// alignment every sibling series shares the same timestamp set so
// per-timestamp totals reconcile.
type ChartSeries struct {
	Name  string             `json:"name"`
	Data  []timeseries.Point `json:"data"`
	Color string             `json:"color,omitempty"`
}

// SplitMetadata describes a protocol-keyed split result.
type SplitMetadata struct {
	Chain          string   `json:"chain"`
	Chains         []string `json:"chains"`
	Categories     []string `json:"categories"`
	Metric         string   `json:"metric"`
	TopN           int      `json:"topN"`
	TotalProtocols int      `json:"totalProtocols"`
	OthersCount    int      `json:"othersCount"`
	MarketSector   *string  `json:"marketSector"`
	Error          string   `json:"error,omitempty"`
}

// ProtocolSplitData is the stable output shape of protocol-keyed splits.
// len(Series) <= TopN+1; the +1 is the Others series, present only when at
// least one of its values is strictly positive.
type ProtocolSplitData struct {
	Series   []ChartSeries `json:"series"`
	Metadata SplitMetadata `json:"metadata"`
}

// ChainSplitMetadata describes a chain-keyed split result.
type ChainSplitMetadata struct {
	Protocol    string   `json:"protocol"`
	Metric      string   `json:"metric"`
	Chains      []string `json:"chains"`
	TotalChains int      `json:"totalChains"`
	TopN        int      `json:"topN,omitempty"`
	OthersCount int      `json:"othersCount,omitempty"`
}

// ProtocolChainData is the output shape when splitting one protocol's (or
// all protocols') metric across chains.
type ProtocolChainData struct {
	Series   []ChartSeries      `json:"series"`
	Metadata ChainSplitMetadata `json:"metadata"`
}

// MarketSector joins the category filter for metadata, nil when unfiltered.
func MarketSector(categories []string) *string {
	if len(categories) == 0 {
		return nil
	}
	joined := ""
	for i, c := range categories {
		if i > 0 {
			joined += ","
		}
		joined += c
	}
	return &joined
}
