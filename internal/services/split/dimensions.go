package split

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"defilens/internal/adapters/upstream"
	"defilens/internal/domain/chainmeta"
	"defilens/internal/domain/split"
	"defilens/internal/domain/timeseries"
	"defilens/internal/metrics"
	"defilens/pkg/errors"
)

// DimensionsParams are the inputs of the protocol-keyed dimensions split.
type DimensionsParams struct {
	Metric        string
	Chains        []string
	Categories    []string
	TopN          int
	GroupByParent bool
	FilterMode    split.FilterMode
}

type chainOverviewResult struct {
	chain string
	data  *upstream.OverviewResponse
}

// DimensionsSplit aggregates a dimensions metric (fees, revenue, volume,
// open interest, ...) across the given chain set and splits it by protocol
// into top-N series plus an Others bucket.
func (s *Service) DimensionsSplit(ctx context.Context, p DimensionsParams) (result *split.ProtocolSplitData, err error) {
	start := time.Now()
	defer func() {
		seriesCount := 0
		if result != nil {
			seriesCount = len(result.Series)
		}
		metrics.RecordSplitRequest("dimensions", p.Metric, time.Since(start), seriesCount, err)
	}()

	cfg, err := split.DimensionsMetricFor(p.Metric)
	if err != nil {
		return nil, err
	}

	chains := p.Chains
	if len(chains) == 0 {
		chains = []string{"all"}
	}
	categories := lowercaseAll(p.Categories)

	chainResults := s.fetchChainOverviews(ctx, chains, cfg)

	if len(chainResults) == 0 && p.FilterMode == split.FilterInclude {
		return buildEmptyDimensionsSplit(chains, categories, cfg.MetricName, p.TopN,
			fmt.Sprintf("No data available for chains: %s", strings.Join(chains, ", "))), nil
	}

	breakdown, err := s.buildAggregatedBreakdown(ctx, chains, cfg, p.FilterMode, chainResults)
	if err != nil {
		return nil, err
	}

	timestamps := make([]int64, 0, len(breakdown))
	for ts := range breakdown {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	// The ranking snapshot is the second-to-last row: the last one may be
	// a partial day.
	if len(timestamps) < 2 {
		return buildEmptyDimensionsSplit(chains, categories, cfg.MetricName, p.TopN, ""), nil
	}
	lastDayProtocols := breakdown[timestamps[len(timestamps)-2]]
	if lastDayProtocols == nil {
		return buildEmptyDimensionsSplit(chains, categories, cfg.MetricName, p.TopN, ""), nil
	}

	protocolsResp, err := s.client.FetchProtocols(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch protocols for dimensions split")
	}

	parentIDToName := make(map[string]string, len(protocolsResp.ParentProtocols))
	for _, pp := range protocolsResp.ParentProtocols {
		if pp.ID != "" && pp.Name != "" {
			parentIDToName[pp.ID] = pp.Name
		}
	}

	categoriesByName := make(map[string]string)
	categoriesBySlug := make(map[string]string)
	protocolToParentID := make(map[string]string)
	for _, proto := range protocolsResp.Protocols {
		if proto.Name == "" {
			continue
		}
		if proto.Category != "" {
			cat := strings.ToLower(proto.Category)
			categoriesByName[proto.Name] = cat
			categoriesBySlug[split.Slug(proto.Name)] = cat
		}
		if proto.ParentProtocol != "" {
			protocolToParentID[proto.Name] = proto.ParentProtocol
		}
	}

	getCategory := func(name string) string {
		if cat, ok := categoriesByName[name]; ok {
			return cat
		}
		return categoriesBySlug[split.Slug(name)]
	}

	categoryFilterActive := len(categories) > 0 && (len(categoriesByName) > 0 || len(categoriesBySlug) > 0)
	categorySet := stringSet(categories)
	matchesCategory := func(name string) bool {
		if !categoryFilterActive {
			return true
		}
		inSet := contains(categorySet, getCategory(name))
		if p.FilterMode == split.FilterExclude {
			return !inSet
		}
		return inSet
	}

	type entry struct {
		name  string
		value float64
	}
	protocolEntries := make([]entry, 0, len(lastDayProtocols))
	for name, value := range lastDayProtocols {
		if !matchesCategory(name) {
			continue
		}
		protocolEntries = append(protocolEntries, entry{name: name, value: value})
	}

	type family struct {
		name     string
		value    float64
		isParent bool
	}
	familyValues := make(map[string]*family)
	var topProtocols []string
	protocolNameMapping := make(map[string]string)

	if p.GroupByParent {
		for _, e := range protocolEntries {
			parentID, hasParent := protocolToParentID[e.name]
			if hasParent {
				name := parentIDToName[parentID]
				if name == "" {
					name = e.name
				}
				if existing, ok := familyValues[parentID]; ok {
					existing.value += e.value
				} else {
					familyValues[parentID] = &family{name: name, value: e.value, isParent: true}
				}
			} else {
				familyValues["protocol:"+e.name] = &family{name: e.name, value: e.value}
			}
		}

		families := make([]*family, 0, len(familyValues))
		for _, f := range familyValues {
			families = append(families, f)
		}
		sort.SliceStable(families, func(i, j int) bool { return families[i].value > families[j].value })
		for _, f := range families[:min(p.TopN, len(families))] {
			topProtocols = append(topProtocols, f.name)
		}
		topSet := stringSet(topProtocols)

		for protocolName, parentID := range protocolToParentID {
			parentName := parentIDToName[parentID]
			if parentName != "" && contains(topSet, parentName) {
				protocolNameMapping[protocolName] = parentName
			}
		}
	} else {
		sort.SliceStable(protocolEntries, func(i, j int) bool { return protocolEntries[i].value > protocolEntries[j].value })
		for _, e := range protocolEntries[:min(p.TopN, len(protocolEntries))] {
			topProtocols = append(topProtocols, e.name)
		}
		for _, e := range protocolEntries {
			familyValues["protocol:"+e.name] = &family{name: e.name, value: e.value}
		}
	}
	topSet := stringSet(topProtocols)

	// Rendering pass: the category predicate applies again per timestamp,
	// while ranking already fixed which families made the cut.
	protocolData := make(map[string]map[int64]float64, len(topProtocols))
	for _, name := range topProtocols {
		protocolData[name] = make(map[int64]float64)
	}
	timestampTotals := make(map[int64]float64, len(breakdown))
	timestampTopTotals := make(map[int64]float64, len(breakdown))

	for ts, protocols := range breakdown {
		var dayTotal, topTotal float64
		for protocolName, value := range protocols {
			if !matchesCategory(protocolName) {
				continue
			}
			dayTotal += value

			displayName := protocolName
			if p.GroupByParent {
				if mapped, ok := protocolNameMapping[protocolName]; ok {
					displayName = mapped
				}
			}
			if contains(topSet, displayName) {
				topTotal += value
				protocolData[displayName][ts] += value
			}
		}
		timestampTotals[ts] = dayTotal
		timestampTopTotals[ts] = topTotal
	}

	allTimestamps := make([]int64, 0, len(timestampTotals))
	for ts := range timestampTotals {
		allTimestamps = append(allTimestamps, ts)
	}
	sort.Slice(allTimestamps, func(i, j int) bool { return allTimestamps[i] < allTimestamps[j] })

	series := make([]split.ChartSeries, 0, len(topProtocols)+1)
	for i, name := range topProtocols {
		data := make([]timeseries.Point, 0, len(allTimestamps))
		for _, ts := range allTimestamps {
			data = append(data, timeseries.Point{Ts: ts, Value: protocolData[name][ts]})
		}
		series = append(series, split.ChartSeries{Name: name, Data: data, Color: split.SeriesColor(i)})
	}

	var clamped int
	othersData := make([]timeseries.Point, 0, len(allTimestamps))
	for _, ts := range allTimestamps {
		rest := timestampTotals[ts] - timestampTopTotals[ts]
		if rest < 0 {
			rest = 0
			clamped++
		}
		othersData = append(othersData, timeseries.Point{Ts: ts, Value: rest})
	}
	s.recordClamped("dimensions", clamped)

	totalFamilies := len(protocolEntries)
	if p.GroupByParent {
		totalFamilies = len(familyValues)
	}
	othersCount := max(0, totalFamilies-p.TopN)

	if hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d protocols)", othersCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	return &split.ProtocolSplitData{
		Series: series,
		Metadata: split.SplitMetadata{
			Chain:          strings.Join(chains, ","),
			Chains:         chains,
			Categories:     categories,
			Metric:         cfg.MetricName,
			TopN:           p.TopN,
			TotalProtocols: totalFamilies,
			OthersCount:    othersCount,
			MarketSector:   split.MarketSector(categories),
		},
	}, nil
}

// fetchChainOverviews fans out one overview request per requested chain and
// drops the failures.
func (s *Service) fetchChainOverviews(ctx context.Context, chains []string, cfg split.MetricConfig) []chainOverviewResult {
	results := make([]*upstream.OverviewResponse, len(chains))
	var wg sync.WaitGroup
	for i, chain := range chains {
		wg.Add(1)
		go func(i int, chain string) {
			defer wg.Done()
			apiChain := chainmeta.InternalSlug(chain)
			if apiChain == "all" {
				apiChain = ""
			}
			resp, err := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
				Endpoint: cfg.Endpoint,
				Chain:    apiChain,
				DataType: cfg.DataType,
			})
			if err != nil {
				s.log.Warnw("Failed to fetch dimensions overview", "chain", chain, "error", err)
				return
			}
			results[i] = resp
		}(i, chain)
	}
	wg.Wait()

	out := make([]chainOverviewResult, 0, len(chains))
	for i, resp := range results {
		if resp != nil {
			out = append(out, chainOverviewResult{chain: chains[i], data: resp})
		}
	}
	return out
}

// buildAggregatedBreakdown merges per-chain breakdowns into one timestamp →
// protocol → value map. In exclude mode with real chains listed it starts
// from the global breakdown and subtracts each excluded chain's
// per-protocol values per timestamp, keeping per-protocol granularity for
// the ranking pass.
func (s *Service) buildAggregatedBreakdown(
	ctx context.Context,
	chains []string,
	cfg split.MetricConfig,
	mode split.FilterMode,
	chainResults []chainOverviewResult,
) (map[int64]map[string]float64, error) {
	aggregated := make(map[int64]map[string]float64)

	realChainsToExclude := make([]string, 0, len(chains))
	for _, c := range chains {
		if strings.ToLower(c) != "all" {
			realChainsToExclude = append(realChainsToExclude, c)
		}
	}

	if mode == split.FilterExclude && len(realChainsToExclude) > 0 {
		global, err := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
			Endpoint: cfg.Endpoint,
			DataType: cfg.DataType,
		})
		if err != nil {
			return nil, errors.Wrap(err, "fetch global breakdown for chain exclusion")
		}

		excluded := make([]*upstream.OverviewResponse, len(realChainsToExclude))
		var wg sync.WaitGroup
		for i, chain := range realChainsToExclude {
			wg.Add(1)
			go func(i int, chain string) {
				defer wg.Done()
				resp, err := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
					Endpoint: cfg.Endpoint,
					Chain:    chainmeta.InternalSlug(chain),
					DataType: cfg.DataType,
				})
				if err != nil {
					s.log.Warnw("Failed to fetch excluded chain breakdown", "chain", chain, "error", err)
					return
				}
				excluded[i] = resp
			}(i, chain)
		}
		wg.Wait()

		excludedMaps := make([]map[int64]map[string]float64, 0, len(excluded))
		for _, resp := range excluded {
			if resp == nil || resp.TotalDataChartBreakdown == nil {
				continue
			}
			excludedMaps = append(excludedMaps, breakdownToMap(resp.TotalDataChartBreakdown))
		}

		for ts, protocols := range breakdownToMap(global.TotalDataChartBreakdown) {
			out := make(map[string]float64, len(protocols))
			for name, v := range protocols {
				out[name] = v
			}
			for _, exMap := range excludedMaps {
				for name, v := range exMap[ts] {
					out[name] -= v
				}
			}
			aggregated[ts] = out
		}
		return aggregated, nil
	}

	for _, result := range chainResults {
		for _, row := range result.data.TotalDataChartBreakdown {
			if row.Values == nil {
				continue
			}
			bucket := aggregated[row.Ts]
			if bucket == nil {
				bucket = make(map[string]float64, len(row.Values))
				aggregated[row.Ts] = bucket
			}
			for name, v := range row.Values {
				bucket[name] += float64(v)
			}
		}
	}
	return aggregated, nil
}

func breakdownToMap(rows []upstream.BreakdownRow) map[int64]map[string]float64 {
	out := make(map[int64]map[string]float64, len(rows))
	for _, row := range rows {
		m := make(map[string]float64, len(row.Values))
		for name, v := range row.Values {
			m[name] = float64(v)
		}
		out[row.Ts] = m
	}
	return out
}

func buildEmptyDimensionsSplit(chains, categories []string, metricName string, topN int, errMsg string) *split.ProtocolSplitData {
	return &split.ProtocolSplitData{
		Series: []split.ChartSeries{},
		Metadata: split.SplitMetadata{
			Chain:          strings.Join(chains, ","),
			Chains:         chains,
			Categories:     categories,
			Metric:         metricName,
			TopN:           topN,
			TotalProtocols: 0,
			OthersCount:    0,
			MarketSector:   split.MarketSector(categories),
			Error:          errMsg,
		},
	}
}

func lowercaseAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
