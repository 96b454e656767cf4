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
	"defilens/internal/domain/tvl"
	"defilens/internal/metrics"
)

// ProtocolChainParams are the inputs of the chain-keyed split.
type ProtocolChainParams struct {
	Protocol                   string
	Metric                     string
	Chains                     []string
	TopN                       int
	ChainFilterMode            split.FilterMode
	ChainCategoryFilterMode    split.FilterMode
	ProtocolCategoryFilterMode split.FilterMode
	ChainCategories            []string
	ProtocolCategories         []string
}

// ProtocolChainSplit splits one protocol's (or all protocols') metric by
// chain, dispatching on the metric family and the protocol parameter.
// Chain-only metrics always run in all-protocols mode: no single-protocol
// breakdown exists upstream for them.
func (s *Service) ProtocolChainSplit(ctx context.Context, p ProtocolChainParams) (result *split.ProtocolChainData, err error) {
	start := time.Now()
	defer func() {
		seriesCount := 0
		if result != nil {
			seriesCount = len(result.Series)
		}
		metrics.RecordSplitRequest("protocol_chain", p.Metric, time.Since(start), seriesCount, err)
	}()

	isProtocolAll := p.Protocol == "" || strings.ToLower(p.Protocol) == "all"

	if split.IsChainOnlyMetric(p.Metric) {
		if p.Metric == "stablecoins" {
			return s.stablecoinsByChain(ctx, p)
		}
		return s.chainFeesByChain(ctx, p)
	}

	if isProtocolAll {
		if p.Metric == "tvl" {
			return s.allProtocolsTvlByChain(ctx, p)
		}
		return s.allProtocolsDimensionsByChain(ctx, p)
	}

	if p.Metric == "tvl" {
		return s.protocolTvlByChain(ctx, p)
	}
	return s.protocolDimensionsByChain(ctx, p)
}

// protocolTvlByChain splits a single protocol's TVL across its chains.
func (s *Service) protocolTvlByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	detail, err := s.client.FetchProtocol(ctx, p.Protocol)
	if err != nil {
		s.log.Warnw("Failed to fetch protocol for chain TVL split", "protocol", p.Protocol, "error", err)
		return emptyChainSplit(p.Protocol, "TVL"), nil
	}

	excludeSet := make(map[string]struct{}, len(p.Chains))
	for _, c := range p.Chains {
		excludeSet[chainmeta.DisplayName(c)] = struct{}{}
	}
	includeRaw := stringSet(p.Chains)

	var allowNamesFromCategories map[string]struct{}
	if len(p.ChainCategories) > 0 {
		allowNamesFromCategories = s.resolveAllowedChainNames(ctx, p.ChainCategories)
	}

	var series []split.ChartSeries
	var availableChains []string
	colorIndex := 0

	chainKeys := make([]string, 0, len(detail.ChainTvls))
	for key := range detail.ChainTvls {
		chainKeys = append(chainKeys, key)
	}
	sort.Strings(chainKeys)

	for _, chainKey := range chainKeys {
		if tvl.ShouldSkipChainKey(chainKey) {
			continue
		}
		if len(p.Chains) > 0 {
			if p.ChainFilterMode == split.FilterInclude {
				if !contains(includeRaw, chainKey) {
					continue
				}
			} else if _, excluded := excludeSet[chainKey]; excluded {
				continue
			}
		}
		if len(allowNamesFromCategories) > 0 {
			_, allowed := allowNamesFromCategories[chainKey]
			if p.ChainCategoryFilterMode == split.FilterInclude && !allowed {
				continue
			}
			if p.ChainCategoryFilterMode == split.FilterExclude && allowed {
				continue
			}
		}

		adjusted := tvl.AdjustedProtocolTvl(detail.ChainTvls, tvl.ProtocolTvlOptions{
			FilterMode:    string(split.FilterInclude),
			IncludeChains: []string{chainKey},
		})
		if len(adjusted) == 0 {
			continue
		}
		series = append(series, split.ChartSeries{
			Name:  chainKey,
			Data:  adjusted,
			Color: split.SeriesColor(colorIndex),
		})
		availableChains = append(availableChains, chainKey)
		colorIndex++
	}

	sortSeriesByLastValue(series)

	name := detail.Name
	if name == "" {
		name = p.Protocol
	}
	return s.assembleChainSplit(chainSplitInput{
		orchestrator: "protocol_chain",
		protocol:     name,
		metricName:   "TVL",
		sorted:       series,
		chains:       availableChains,
		topN:         p.TopN,
		total:        timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(seriesData(series))),
	}), nil
}

// protocolDimensionsByChain splits a single protocol's dimensions metric
// across chains using its summary breakdown.
func (s *Service) protocolDimensionsByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	cfg, err := split.MetricFor(p.Metric)
	if err != nil {
		return nil, err
	}

	summary, err := s.client.FetchDimensionsSummary(ctx, cfg.Endpoint, p.Protocol, cfg.DataType)
	if err != nil {
		s.log.Warnw("Failed to fetch protocol summary for chain split",
			"protocol", p.Protocol,
			"metric", p.Metric,
			"error", err)
		return emptyChainSplit(p.Protocol, cfg.MetricName), nil
	}
	if len(summary.TotalDataChartBreakdown) == 0 {
		return emptyChainSplit(p.Protocol, cfg.MetricName), nil
	}

	excludeSet := stringSet(p.Chains)
	includeRaw := stringSet(p.Chains)
	var allowSlugsFromCategories map[string]struct{}
	if len(p.ChainCategories) > 0 {
		allowSlugsFromCategories = s.resolveAllowedChainSlugs(ctx, p.ChainCategories)
	}

	chainData := make(map[string][]timeseries.Point)
	var chainOrder []string

	for _, row := range summary.TotalDataChartBreakdown {
		if row.Values == nil {
			continue
		}
		for chain, value := range row.Values {
			if len(p.Chains) > 0 {
				if p.ChainFilterMode == split.FilterInclude {
					if !contains(includeRaw, chain) {
						continue
					}
				} else if contains(excludeSet, chain) {
					continue
				}
			}
			if len(allowSlugsFromCategories) > 0 {
				_, allowed := allowSlugsFromCategories[chainmeta.DimensionsSlug(chain)]
				if p.ChainCategoryFilterMode == split.FilterInclude && !allowed {
					continue
				}
				if p.ChainCategoryFilterMode == split.FilterExclude && allowed {
					continue
				}
			}

			chainTotal := float64(value)
			if chainTotal > 0 {
				if _, seen := chainData[chain]; !seen {
					chainOrder = append(chainOrder, chain)
				}
				chainData[chain] = append(chainData[chain], timeseries.Point{Ts: row.Ts, Value: chainTotal})
			}
		}
	}

	series := make([]split.ChartSeries, 0, len(chainOrder))
	for i, chain := range chainOrder {
		data := chainData[chain]
		sort.Slice(data, func(a, b int) bool { return data[a].Ts < data[b].Ts })
		series = append(series, split.ChartSeries{
			Name:  chain,
			Data:  timeseries.FilterOutToday(data),
			Color: split.SeriesColor(i),
		})
	}

	sortSeriesByLastValue(series)
	availableChains := make([]string, 0, len(series))
	for _, cs := range series {
		availableChains = append(availableChains, cs.Name)
	}

	return s.assembleChainSplit(chainSplitInput{
		orchestrator: "protocol_chain",
		protocol:     p.Protocol,
		metricName:   cfg.MetricName,
		sorted:       series,
		chains:       availableChains,
		topN:         p.TopN,
		total:        timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(seriesData(series))),
	}), nil
}

// allProtocolsTvlByChain ranks chains by aggregate TVL and splits the
// global TVL across the top chains.
func (s *Service) allProtocolsTvlByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	listings, err := s.client.FetchChainsTvlOverview(ctx)
	if err != nil {
		s.log.Warnw("Failed to fetch chains TVL overview", "error", err)
		return emptyChainSplit("All Protocols", "TVL"), nil
	}

	includeSet := make(map[string]struct{}, len(p.Chains))
	for _, c := range p.Chains {
		includeSet[chainmeta.DisplayName(c)] = struct{}{}
	}
	var allowNamesFromCategories map[string]struct{}
	if len(p.ChainCategories) > 0 {
		allowNamesFromCategories = s.resolveAllowedChainNames(ctx, p.ChainCategories)
	}

	ranked := make([]upstream.ChainListing, 0, len(listings))
	for _, c := range listings {
		if c.Tvl <= 0 || c.Name == "" {
			continue
		}
		if len(p.Chains) > 0 {
			_, matches := includeSet[chainmeta.DisplayName(c.Name)]
			if p.ChainFilterMode == split.FilterInclude && !matches {
				continue
			}
			if p.ChainFilterMode == split.FilterExclude && matches {
				continue
			}
		}
		if len(allowNamesFromCategories) > 0 {
			_, allowed := allowNamesFromCategories[c.Name]
			if p.ChainCategoryFilterMode == split.FilterInclude && !allowed {
				continue
			}
			if p.ChainCategoryFilterMode == split.FilterExclude && allowed {
				continue
			}
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Tvl > ranked[j].Tvl })

	picked := ranked[:min(p.TopN, len(ranked))]
	pickedNames := make([]string, 0, len(picked))
	for _, c := range picked {
		pickedNames = append(pickedNames, c.Name)
	}

	totalSeries, err := s.fetchChainTvlDaily(ctx, "")
	if err != nil {
		s.log.Warnw("Failed to fetch global TVL chart", "error", err)
		return emptyChainSplit("All Protocols", "TVL"), nil
	}

	charts := make([][]timeseries.Point, len(pickedNames))
	var wg sync.WaitGroup
	for i, name := range pickedNames {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			data, chartErr := s.fetchChainTvlDaily(ctx, name)
			if chartErr != nil {
				s.log.Warnw("Failed to fetch chain TVL chart", "chain", name, "error", chartErr)
				return
			}
			charts[i] = data
		}(i, name)
	}
	wg.Wait()

	topRaw := make([]split.ChartSeries, 0, len(pickedNames))
	colorIndex := 0
	for i, name := range pickedNames {
		if charts[i] == nil {
			continue
		}
		topRaw = append(topRaw, split.ChartSeries{
			Name:  name,
			Data:  charts[i],
			Color: split.SeriesColor(colorIndex),
		})
		colorIndex++
	}

	aligned, othersData, _, clamped := buildAlignedTopAndOthers(topRaw, totalSeries)
	s.recordClamped("protocol_chain", clamped)

	othersCount := max(0, len(ranked)-min(p.TopN, len(ranked)))
	series := aligned
	if othersCount > 0 && hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d chains)", othersCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	return &split.ProtocolChainData{
		Series: series,
		Metadata: split.ChainSplitMetadata{
			Protocol:    "All Protocols",
			Metric:      "TVL",
			Chains:      pickedNames,
			TotalChains: len(ranked),
			TopN:        min(p.TopN, len(ranked)),
			OthersCount: othersCount,
		},
	}, nil
}

// stablecoinsByChain ranks chains by last-day stablecoin circulating USD
// and reconciles against the aggregate stablecoin chart.
func (s *Service) stablecoinsByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	metricName := split.ChainOnlyMetrics["stablecoins"]

	dominance, err := s.client.FetchStablecoinDominanceAll(ctx)
	if err != nil {
		s.log.Warnw("Failed to fetch stablecoin dominance breakdown", "error", err)
		return emptyChainOnlySplit(metricName), nil
	}

	var includeSet map[string]struct{}
	if len(p.Chains) > 0 {
		includeSet = chainmeta.MatchSet(p.Chains)
	}
	var allowNames map[string]struct{}
	if len(p.ChainCategories) > 0 {
		names := s.resolveAllowedChainNames(ctx, p.ChainCategories)
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		allowNames = chainmeta.MatchSet(list)
	}

	type candidate struct {
		name      string
		data      []timeseries.Point
		lastValue float64
	}
	var candidates []candidate

	chainNames := make([]string, 0, len(dominance.ChainChartMap))
	for name := range dominance.ChainChartMap {
		chainNames = append(chainNames, name)
	}
	sort.Strings(chainNames)

	for _, chainName := range chainNames {
		if strings.ToLower(chainName) == "all" {
			continue
		}
		charts := dominance.ChainChartMap[chainName]
		if len(charts) == 0 {
			continue
		}

		if len(includeSet) > 0 {
			matches := chainmeta.MatchSetContains(includeSet, chainName)
			if p.ChainFilterMode == split.FilterInclude && !matches {
				continue
			}
			if p.ChainFilterMode == split.FilterExclude && matches {
				continue
			}
		}
		if len(allowNames) > 0 {
			matches := chainmeta.MatchSetContains(allowNames, chainName)
			if p.ChainCategoryFilterMode == split.FilterInclude && !matches {
				continue
			}
			if p.ChainCategoryFilterMode == split.FilterExclude && matches {
				continue
			}
		}

		pairs := stablecoinPairs(charts)
		if len(pairs) == 0 {
			continue
		}
		normalized := timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(pairs, timeseries.TieSum))
		if len(normalized) == 0 {
			continue
		}
		lastValue := normalized[len(normalized)-1].Value
		if lastValue <= 0 {
			continue
		}

		candidates = append(candidates, candidate{
			name:      chainmeta.FromDimensionsSlug(chainmeta.DimensionsSlug(chainName)),
			data:      normalized,
			lastValue: lastValue,
		})
	}

	if len(candidates) == 0 {
		return emptyChainOnlySplit(metricName), nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].lastValue > candidates[j].lastValue })
	picked := candidates[:min(p.TopN, len(candidates))]

	pickedSeries := make([]split.ChartSeries, 0, len(picked))
	pickedNames := make([]string, 0, len(picked))
	for i, c := range picked {
		pickedSeries = append(pickedSeries, split.ChartSeries{Name: c.name, Data: c.data, Color: split.SeriesColor(i)})
		pickedNames = append(pickedNames, c.name)
	}

	// Losing the aggregate chart only costs the Others bucket.
	var totalPairs []timeseries.Point
	if aggregate, aggErr := s.client.FetchStablecoinChartAll(ctx); aggErr != nil {
		s.log.Warnw("Failed to fetch aggregate stablecoin chart", "error", aggErr)
	} else {
		totalPairs = timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(stablecoinPairs(aggregate.Aggregated), timeseries.TieSum))
	}

	aligned, othersData, allTimestamps, clamped := buildAlignedTopAndOthers(pickedSeries, totalPairs)
	s.recordClamped("protocol_chain", clamped)

	othersCount := max(0, len(candidates)-len(picked))
	series := aligned
	if len(totalPairs) > 0 && len(allTimestamps) > 0 && othersCount > 0 && hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d chains)", othersCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	return &split.ProtocolChainData{
		Series: series,
		Metadata: split.ChainSplitMetadata{
			Protocol:    "All Protocols",
			Metric:      metricName,
			Chains:      pickedNames,
			TotalChains: len(candidates),
			TopN:        len(picked),
			OthersCount: othersCount,
		},
	}, nil
}

// chainFeesByChain ranks chains by 24h fees or revenue from the fees
// overview's chain-typed entries.
func (s *Service) chainFeesByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	metricName := split.ChainOnlyMetrics[p.Metric]
	dataType := split.ChainFeesDataType(p.Metric)

	overview, err := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
		Endpoint:         "fees",
		DataType:         dataType,
		ExcludeBreakdown: true,
	})
	if err != nil {
		s.log.Warnw("Failed to fetch fees overview for chain split", "metric", p.Metric, "error", err)
		return emptyChainOnlySplit(metricName), nil
	}

	var includeSet map[string]struct{}
	if len(p.Chains) > 0 {
		includeSet = chainmeta.MatchSet(p.Chains)
	}
	var allowSlugs map[string]struct{}
	if len(p.ChainCategories) > 0 {
		allowSlugs = s.resolveAllowedChainSlugs(ctx, p.ChainCategories)
	}

	type entry struct {
		name     string
		slug     string
		total24h float64
	}
	var ranked []entry
	for _, proto := range overview.Protocols {
		if strings.ToLower(proto.ProtocolType) != "chain" {
			continue
		}
		slug := proto.Slug
		if slug == "" {
			slug = chainmeta.DimensionsSlug(proto.Name)
		}
		if proto.Total24h <= 0 {
			continue
		}
		if len(p.Chains) > 0 {
			name := chainmeta.FromDimensionsSlug(slug)
			matches := contains(includeSet, slug) ||
				contains(includeSet, strings.ToLower(slug)) ||
				contains(includeSet, name) ||
				contains(includeSet, strings.ToLower(name))
			if p.ChainFilterMode == split.FilterInclude && !matches {
				continue
			}
			if p.ChainFilterMode == split.FilterExclude && matches {
				continue
			}
		}
		if len(allowSlugs) > 0 {
			_, allowed := allowSlugs[slug]
			if p.ChainCategoryFilterMode == split.FilterInclude && !allowed {
				continue
			}
			if p.ChainCategoryFilterMode == split.FilterExclude && allowed {
				continue
			}
		}
		ranked = append(ranked, entry{name: chainmeta.FromDimensionsSlug(slug), slug: slug, total24h: proto.Total24h})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].total24h > ranked[j].total24h })

	if len(ranked) == 0 {
		return emptyChainOnlySplit(metricName), nil
	}

	picked := ranked[:min(p.TopN, len(ranked))]

	charts := make([][]timeseries.Point, len(picked))
	var wg sync.WaitGroup
	for i, e := range picked {
		wg.Add(1)
		go func(i int, e entry) {
			defer wg.Done()
			summary, sumErr := s.client.FetchDimensionsSummary(ctx, "fees", e.slug, dataType)
			if sumErr != nil {
				s.log.Warnw("Failed to fetch chain fees summary", "chain", e.slug, "error", sumErr)
				return
			}
			charts[i] = timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(summary.TotalDataChart, timeseries.TieSum))
		}(i, e)
	}
	wg.Wait()

	seriesRaw := make([]split.ChartSeries, 0, len(picked))
	pickedNames := make([]string, 0, len(picked))
	for i, e := range picked {
		pickedNames = append(pickedNames, e.name)
		if charts[i] == nil {
			continue
		}
		seriesRaw = append(seriesRaw, split.ChartSeries{Name: e.name, Data: charts[i], Color: split.SeriesColor(i)})
	}

	totalNormalized := timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(overview.TotalDataChart, timeseries.TieSum))

	aligned, othersData, _, clamped := buildAlignedTopAndOthers(seriesRaw, totalNormalized)
	s.recordClamped("protocol_chain", clamped)

	othersCount := max(0, len(ranked)-len(picked))
	series := aligned
	if othersCount > 0 && hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d chains)", othersCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	return &split.ProtocolChainData{
		Series: series,
		Metadata: split.ChainSplitMetadata{
			Protocol:    "All Protocols",
			Metric:      metricName,
			Chains:      pickedNames,
			TotalChains: len(ranked),
			TopN:        len(picked),
			OthersCount: othersCount,
		},
	}, nil
}

// allProtocolsDimensionsByChain ranks chains by a dimensions metric
// aggregated across all protocols, optionally filtering which protocols
// count via a category filter. Ranking uses the 24h breakdown snapshot;
// series rebuild the full history per chain, re-deriving from the
// breakdown when the protocol-category filter is active.
func (s *Service) allProtocolsDimensionsByChain(ctx context.Context, p ProtocolChainParams) (*split.ProtocolChainData, error) {
	cfg, err := split.MetricFor(p.Metric)
	if err != nil {
		return nil, err
	}

	overview, err := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
		Endpoint: cfg.Endpoint,
		DataType: cfg.DataType,
	})
	if err != nil {
		s.log.Warnw("Failed to fetch dimensions overview for chain split", "metric", p.Metric, "error", err)
		return emptyChainSplit("All Protocols", cfg.MetricName), nil
	}

	protocolCategorySet := stringSet(lowercaseAll(p.ProtocolCategories))
	hasProtocolCategoryFilter := len(protocolCategorySet) > 0

	var index *categoryIndex
	if hasProtocolCategoryFilter {
		index = s.lookup.Index(ctx)
		if index != nil {
			index = index.extended(overview.Protocols)
		}
	}

	resolveCategory := func(protocolName, fallbackCategory string) string {
		if fb := strings.ToLower(fallbackCategory); fb != "" {
			return fb
		}
		return index.category(protocolName)
	}
	shouldIncludeProtocol := func(protocolName, fallbackCategory string) bool {
		if !hasProtocolCategoryFilter {
			return true
		}
		category := resolveCategory(protocolName, fallbackCategory)
		if category == "" {
			return p.ProtocolCategoryFilterMode == split.FilterExclude
		}
		inSet := contains(protocolCategorySet, category)
		if p.ProtocolCategoryFilterMode == split.FilterInclude {
			return inSet
		}
		return !inSet
	}
	aggregateRow := func(values map[string]upstream.NestedValue) float64 {
		var total float64
		for protocolName, value := range values {
			if !shouldIncludeProtocol(protocolName, "") {
				continue
			}
			total += float64(value)
		}
		return total
	}

	chainTotals := make(map[string]float64)
	for _, proto := range overview.Protocols {
		protocolName := proto.Name
		if protocolName == "" {
			protocolName = proto.DisplayName
		}
		if protocolName == "" {
			protocolName = proto.Slug
		}
		if !shouldIncludeProtocol(protocolName, proto.Category) {
			continue
		}
		for chainSlug, value := range proto.Breakdown24h {
			chainTotals[chainSlug] += float64(value)
		}
	}

	filterSet := make(map[string]struct{}, len(p.Chains))
	filterSetOriginal := make(map[string]struct{}, len(p.Chains))
	for _, c := range p.Chains {
		filterSet[chainmeta.DimensionsSlug(c)] = struct{}{}
		filterSetOriginal[strings.ToLower(c)] = struct{}{}
	}
	var allowSlugs map[string]struct{}
	if len(p.ChainCategories) > 0 {
		allowSlugs = s.resolveAllowedChainSlugs(ctx, p.ChainCategories)
	}

	// Include mode backfills requested chains absent from the snapshot so
	// they still rank (at zero) instead of vanishing.
	if len(p.Chains) > 0 && p.ChainFilterMode == split.FilterInclude {
		for _, chainName := range overview.AllChains {
			slug := chainmeta.DimensionsSlug(chainName)
			_, bySlug := filterSet[slug]
			_, byName := filterSetOriginal[strings.ToLower(chainName)]
			if (bySlug || byName) && chainTotals[slug] == 0 {
				chainTotals[slug] = 0
			}
		}
	}

	type rankedChain struct {
		slug  string
		value float64
	}
	var ranked []rankedChain
	for slug, v := range chainTotals {
		if len(p.Chains) > 0 {
			if p.ChainFilterMode == split.FilterInclude {
				if !contains(filterSet, slug) {
					continue
				}
			} else if contains(filterSet, slug) {
				continue
			} else if v <= 0 {
				continue
			}
		} else if v <= 0 {
			continue
		}
		if len(allowSlugs) > 0 {
			_, allowed := allowSlugs[chainmeta.DimensionsSlug(slug)]
			if p.ChainCategoryFilterMode == split.FilterInclude && !allowed {
				continue
			}
			if p.ChainCategoryFilterMode == split.FilterExclude && allowed {
				continue
			}
		}
		ranked = append(ranked, rankedChain{slug: slug, value: v})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].value != ranked[j].value {
			return ranked[i].value > ranked[j].value
		}
		return ranked[i].slug < ranked[j].slug
	})

	picked := ranked[:min(p.TopN, len(ranked))]

	charts := make([][]timeseries.Point, len(picked))
	var wg sync.WaitGroup
	for i, rc := range picked {
		wg.Add(1)
		go func(i int, slug string) {
			defer wg.Done()
			chainOverview, fetchErr := s.client.FetchDimensionsOverview(ctx, upstream.OverviewRequest{
				Endpoint:         cfg.Endpoint,
				Chain:            chainmeta.DisplayName(slug),
				DataType:         cfg.DataType,
				ExcludeBreakdown: !hasProtocolCategoryFilter,
			})
			if fetchErr != nil {
				s.log.Warnw("Failed to fetch chain overview", "chain", slug, "error", fetchErr)
				return
			}

			normalized := timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(chainOverview.TotalDataChart, timeseries.TieSum))
			if hasProtocolCategoryFilter && len(chainOverview.TotalDataChartBreakdown) > 0 {
				filtered := make([]timeseries.Point, 0, len(chainOverview.TotalDataChartBreakdown))
				for _, row := range chainOverview.TotalDataChartBreakdown {
					filtered = append(filtered, timeseries.Point{Ts: row.Ts, Value: aggregateRow(row.Values)})
				}
				normalized = timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(filtered, timeseries.TieSum))
			}
			charts[i] = normalized
		}(i, rc.slug)
	}
	wg.Wait()

	seriesRaw := make([]split.ChartSeries, 0, len(picked))
	for i, rc := range picked {
		if charts[i] == nil {
			continue
		}
		seriesRaw = append(seriesRaw, split.ChartSeries{
			Name:  chainmeta.FromDimensionsSlug(rc.slug),
			Data:  charts[i],
			Color: split.SeriesColor(i),
		})
	}

	totalNormalized := timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(overview.TotalDataChart, timeseries.TieSum))
	if hasProtocolCategoryFilter && len(overview.TotalDataChartBreakdown) > 0 {
		filtered := make([]timeseries.Point, 0, len(overview.TotalDataChartBreakdown))
		for _, row := range overview.TotalDataChartBreakdown {
			filtered = append(filtered, timeseries.Point{Ts: row.Ts, Value: aggregateRow(row.Values)})
		}
		totalNormalized = timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(filtered, timeseries.TieSum))
	}

	aligned, othersData, _, clamped := buildAlignedTopAndOthers(seriesRaw, totalNormalized)
	s.recordClamped("protocol_chain", clamped)

	othersCount := max(0, len(ranked)-min(p.TopN, len(ranked)))
	series := aligned
	if othersCount > 0 && hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d chains)", othersCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	pickedNames := make([]string, 0, len(picked))
	for _, rc := range picked {
		pickedNames = append(pickedNames, chainmeta.FromDimensionsSlug(rc.slug))
	}

	return &split.ProtocolChainData{
		Series: series,
		Metadata: split.ChainSplitMetadata{
			Protocol:    "All Protocols",
			Metric:      cfg.MetricName,
			Chains:      pickedNames,
			TotalChains: len(ranked),
			TopN:        min(p.TopN, len(ranked)),
			OthersCount: othersCount,
		},
	}, nil
}

// fetchChainTvlDaily is the aggregate-TVL variant of the per-chain chart
// fetch: duplicate daily timestamps are summed rather than last-wins.
func (s *Service) fetchChainTvlDaily(ctx context.Context, chain string) ([]timeseries.Point, error) {
	var chart *tvl.ChainChart
	var err error
	if chain == "" {
		chart, err = s.client.FetchGlobalChart(ctx)
	} else {
		chart, err = s.client.FetchChainChart(ctx, chain)
	}
	if err != nil {
		return nil, err
	}
	adjusted := tvl.AdjustedChainTvl(*chart)
	return timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(adjusted, timeseries.TieSum)), nil
}

// resolveAllowedChainNames unions the chain sets of the given chain
// categories. Failed category fetches are skipped.
func (s *Service) resolveAllowedChainNames(ctx context.Context, categories []string) map[string]struct{} {
	results := make([]*upstream.ChainsByCategoryResponse, len(categories))
	var wg sync.WaitGroup
	for i, cat := range categories {
		wg.Add(1)
		go func(i int, cat string) {
			defer wg.Done()
			resp, err := s.client.FetchChainsByCategory(ctx, cat)
			if err != nil {
				s.log.Warnw("Failed to fetch chains for category", "category", cat, "error", err)
				return
			}
			results[i] = resp
		}(i, cat)
	}
	wg.Wait()

	out := make(map[string]struct{})
	for _, resp := range results {
		if resp == nil {
			continue
		}
		for _, name := range resp.ChainsUnique {
			out[name] = struct{}{}
		}
	}
	return out
}

// resolveAllowedChainSlugs is resolveAllowedChainNames mapped through the
// dimensions slug convention.
func (s *Service) resolveAllowedChainSlugs(ctx context.Context, categories []string) map[string]struct{} {
	names := s.resolveAllowedChainNames(ctx, categories)
	out := make(map[string]struct{}, len(names))
	for name := range names {
		out[chainmeta.DimensionsSlug(name)] = struct{}{}
	}
	return out
}

// chainSplitInput assembles the shared tail of the per-protocol chain
// builders: top/others partition, alignment and metadata.
type chainSplitInput struct {
	orchestrator string
	protocol     string
	metricName   string
	sorted       []split.ChartSeries
	chains       []string
	topN         int
	total        []timeseries.Point
}

func (s *Service) assembleChainSplit(in chainSplitInput) *split.ProtocolChainData {
	topCount := min(in.topN, len(in.sorted))
	topSeries := in.sorted[:topCount]
	othersSeriesCount := len(in.sorted) - topCount

	aligned, othersData, _, clamped := buildAlignedTopAndOthers(topSeries, in.total)
	s.recordClamped(in.orchestrator, clamped)

	series := aligned
	if othersSeriesCount > 0 && hasPositive(othersData) {
		series = append(series, split.ChartSeries{
			Name:  fmt.Sprintf("Others (%d chains)", othersSeriesCount),
			Data:  othersData,
			Color: split.OthersColor,
		})
	}

	return &split.ProtocolChainData{
		Series: series,
		Metadata: split.ChainSplitMetadata{
			Protocol:    in.protocol,
			Metric:      in.metricName,
			Chains:      in.chains,
			TotalChains: len(in.chains),
			TopN:        topCount,
			OthersCount: max(0, len(in.sorted)-topCount),
		},
	}
}

func sortSeriesByLastValue(series []split.ChartSeries) {
	sort.SliceStable(series, func(i, j int) bool {
		return timeseries.LastValue(series[i].Data) > timeseries.LastValue(series[j].Data)
	})
}

func seriesData(series []split.ChartSeries) [][]timeseries.Point {
	out := make([][]timeseries.Point, 0, len(series))
	for _, s := range series {
		out = append(out, s.Data)
	}
	return out
}

func stablecoinPairs(points []upstream.StablecoinPoint) []timeseries.Point {
	out := make([]timeseries.Point, 0, len(points))
	for _, p := range points {
		ts, ok := p.Ts()
		if !ok {
			continue
		}
		out = append(out, timeseries.Point{Ts: ts, Value: float64(p.TotalCirculatingUSD)})
	}
	return out
}

func emptyChainSplit(protocol, metricName string) *split.ProtocolChainData {
	return &split.ProtocolChainData{
		Series: []split.ChartSeries{},
		Metadata: split.ChainSplitMetadata{
			Protocol:    protocol,
			Metric:      metricName,
			Chains:      []string{},
			TotalChains: 0,
		},
	}
}

func emptyChainOnlySplit(metricName string) *split.ProtocolChainData {
	return &split.ProtocolChainData{
		Series: []split.ChartSeries{},
		Metadata: split.ChainSplitMetadata{
			Protocol:    "All Protocols",
			Metric:      metricName,
			Chains:      []string{},
			TotalChains: 0,
		},
	}
}
