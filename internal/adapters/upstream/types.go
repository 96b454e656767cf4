package upstream

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"defilens/internal/domain/timeseries"
	"defilens/internal/domain/tvl"
)

// NestedValue decodes an upstream value that may be a plain number or an
// arbitrarily nested record/array of numbers (version breakdowns, bridged
// stablecoin buckets). It collapses to the sum of all finite leaves.
type NestedValue float64

func (n *NestedValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	switch data[0] {
	case '{':
		var nested map[string]NestedValue
		if err := json.Unmarshal(data, &nested); err != nil {
			*n = 0
			return nil
		}
		var sum float64
		for _, v := range nested {
			sum += float64(v)
		}
		*n = NestedValue(sum)
	case '[':
		var nested []NestedValue
		if err := json.Unmarshal(data, &nested); err != nil {
			*n = 0
			return nil
		}
		var sum float64
		for _, v := range nested {
			sum += float64(v)
		}
		*n = NestedValue(sum)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			*n = 0
			return nil
		}
		*n = NestedValue(f)
	}
	return nil
}

// FlexTimestamp tolerates numeric or quoted timestamps and remembers
// whether the field was present at all.
type FlexTimestamp struct {
	Value float64
	Valid bool
}

func (t *FlexTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		t.Value = f
		t.Valid = true
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	t.Value = f
	t.Valid = true
	return nil
}

// BreakdownRow is one [timestamp, {entity: value}] row of a dimensions
// breakdown chart.
type BreakdownRow struct {
	Ts     int64
	Values map[string]NestedValue
}

func (r *BreakdownRow) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 2 {
		return nil
	}
	var ts FlexTimestamp
	if err := ts.UnmarshalJSON(raw[0]); err != nil {
		return err
	}
	if ts.Valid {
		r.Ts = timeseries.NormalizeTimestamp(ts.Value)
	}
	if err := json.Unmarshal(raw[1], &r.Values); err != nil {
		r.Values = nil
	}
	return nil
}

// OverviewProtocol is one entry of a dimensions overview protocols list.
type OverviewProtocol struct {
	Name         string                 `json:"name"`
	DisplayName  string                 `json:"displayName"`
	Slug         string                 `json:"slug"`
	Category     string                 `json:"category"`
	ProtocolType string                 `json:"protocolType"`
	Total24h     float64                `json:"total24h"`
	Breakdown24h map[string]NestedValue `json:"breakdown24h"`
}

// OverviewResponse is the dimensions overview payload for one metric,
// optionally scoped to a chain.
type OverviewResponse struct {
	Protocols               []OverviewProtocol `json:"protocols"`
	TotalDataChart          []timeseries.Point `json:"totalDataChart"`
	TotalDataChartBreakdown []BreakdownRow     `json:"totalDataChartBreakdown"`
	AllChains               []string           `json:"allChains"`
}

// SummaryResponse is the dimensions summary payload for a single protocol
// or chain.
type SummaryResponse struct {
	TotalDataChart          []timeseries.Point `json:"totalDataChart"`
	TotalDataChartBreakdown []BreakdownRow     `json:"totalDataChartBreakdown"`
}

// ListChainTvl is the per-chain TVL snapshot carried by the protocols list.
type ListChainTvl struct {
	Tvl float64 `json:"tvl"`
}

// ListProtocol is one entry of the protocols list API.
type ListProtocol struct {
	Name           string                  `json:"name"`
	Slug           string                  `json:"slug"`
	Category       string                  `json:"category"`
	Tvl            float64                 `json:"tvl"`
	ParentProtocol string                  `json:"parentProtocol"`
	ChainTvls      map[string]ListChainTvl `json:"chainTvls"`
}

// ParentProtocol groups child protocols into one family.
type ParentProtocol struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProtocolsResponse is the protocols list payload.
type ProtocolsResponse struct {
	Protocols       []ListProtocol   `json:"protocols"`
	ParentProtocols []ParentProtocol `json:"parentProtocols"`
}

// ProtocolDetail is the single-protocol payload carrying full per-chain
// TVL history.
type ProtocolDetail struct {
	Name      string                        `json:"name"`
	ChainTvls map[string]tvl.ChainTvlSeries `json:"chainTvls"`
}

// ChainListing is one chain of the chains TVL overview.
type ChainListing struct {
	Name string  `json:"name"`
	Tvl  float64 `json:"tvl"`
}

// ChainsByCategoryResponse lists the chains belonging to one category.
type ChainsByCategoryResponse struct {
	ChainsUnique []string `json:"chainsUnique"`
}

// CategoryChartResponse is the category TVL chart, keyed by stringified
// timestamps.
type CategoryChartResponse struct {
	Tvl map[string]float64 `json:"tvl"`
}

// StablecoinPoint is one point of a stablecoin chart. The timestamp lives
// in either the date or timestamp field, sometimes in milliseconds.
type StablecoinPoint struct {
	Date                FlexTimestamp `json:"date"`
	Timestamp           FlexTimestamp `json:"timestamp"`
	TotalCirculatingUSD NestedValue   `json:"totalCirculatingUSD"`
}

// Ts resolves the effective unix-seconds timestamp of the point.
func (p StablecoinPoint) Ts() (int64, bool) {
	switch {
	case p.Date.Valid:
		return timeseries.NormalizeTimestamp(p.Date.Value), true
	case p.Timestamp.Valid:
		return timeseries.NormalizeTimestamp(p.Timestamp.Value), true
	default:
		return 0, false
	}
}

// DominanceAllResponse is the per-chain stablecoin circulating-USD payload.
type DominanceAllResponse struct {
	ChainChartMap map[string][]StablecoinPoint `json:"chainChartMap"`
}

// StablecoinChartAllResponse is the aggregate stablecoin chart payload.
type StablecoinChartAllResponse struct {
	Aggregated []StablecoinPoint `json:"aggregated"`
}
