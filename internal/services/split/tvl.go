package split

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"defilens/internal/domain/chainmeta"
	"defilens/internal/domain/split"
	"defilens/internal/domain/timeseries"
	"defilens/internal/domain/tvl"
	"defilens/internal/metrics"
	"defilens/pkg/errors"
)

// TvlParams are the inputs of the protocol-keyed TVL split.
type TvlParams struct {
	Chains        []string
	Categories    []string
	TopN          int
	GroupByParent bool
	FilterMode    split.FilterMode
}

// TvlSplit ranks protocols (optionally folded into parent families) by TVL
// over the selected chain/category scope and splits the adjusted TVL into
// top-N series plus an Others bucket reconciled against the chain or
// category total.
func (s *Service) TvlSplit(ctx context.Context, p TvlParams) (result *split.ProtocolSplitData, err error) {
	start := time.Now()
	defer func() {
		seriesCount := 0
		if result != nil {
			seriesCount = len(result.Series)
		}
		metrics.RecordSplitRequest("tvl", "tvl", time.Since(start), seriesCount, err)
	}()

	selectedChains := make([]string, 0, len(p.Chains))
	for _, c := range p.Chains {
		if c != "" {
			selectedChains = append(selectedChains, c)
		}
	}
	if len(selectedChains) == 0 {
		selectedChains = []string{"all"}
	}
	isAll := false
	for _, c := range selectedChains {
		if strings.ToLower(c) == "all" {
			isAll = true
			break
		}
	}
	categoriesFilter := lowercaseAll(p.Categories)
	categorySet := stringSet(categoriesFilter)

	protocolsResp, err := s.client.FetchProtocols(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch protocols for tvl split")
	}

	parentIDToName := make(map[string]string, len(protocolsResp.ParentProtocols))
	parentIDToSlug := make(map[string]string, len(protocolsResp.ParentProtocols))
	for _, pp := range protocolsResp.ParentProtocols {
		if pp.ID != "" && pp.Name != "" {
			parentIDToName[pp.ID] = pp.Name
			parentIDToSlug[pp.ID] = split.Slug(pp.Name)
		}
	}

	excludedChainSet := make(map[string]struct{})
	includedChainSet := make(map[string]struct{})
	if p.FilterMode == split.FilterExclude {
		for _, ch := range selectedChains {
			excludedChainSet[chainmeta.DisplayName(ch)] = struct{}{}
		}
	}
	if p.FilterMode == split.FilterInclude && !isAll {
		for _, ch := range selectedChains {
			includedChainSet[chainmeta.DisplayName(ch)] = struct{}{}
		}
	}
	hasRealExcludedChains := false
	for chain := range excludedChainSet {
		if strings.ToLower(chain) != "all" {
			hasRealExcludedChains = true
			break
		}
	}

	type childScore struct {
		childName string
		childSlug string
		parentID  string
		value     float64
	}
	var childScores []childScore
	childrenByParent := make(map[string][]string)

	for _, proto := range protocolsResp.Protocols {
		cat := strings.ToLower(proto.Category)
		if len(categorySet) > 0 {
			inSet := contains(categorySet, cat)
			if p.FilterMode == split.FilterInclude && !inSet {
				continue
			}
			if p.FilterMode == split.FilterExclude && inSet {
				continue
			}
		}

		var score float64
		switch {
		case p.FilterMode == split.FilterExclude && hasRealExcludedChains:
			for key, entry := range proto.ChainTvls {
				if tvl.IsIgnoredChainKey(key) {
					continue
				}
				if _, excluded := excludedChainSet[key]; excluded {
					continue
				}
				score += entry.Tvl
			}
		case isAll:
			score = proto.Tvl
		default:
			for _, ch := range selectedChains {
				key := chainmeta.DisplayName(ch)
				if tvl.IsIgnoredChainKey(key) {
					continue
				}
				score += proto.ChainTvls[key].Tvl
			}
		}
		if score <= 0 {
			continue
		}

		childSlug := split.Slug(proto.Name)
		childScores = append(childScores, childScore{
			childName: proto.Name,
			childSlug: childSlug,
			parentID:  proto.ParentProtocol,
			value:     score,
		})
		if proto.ParentProtocol != "" {
			childrenByParent[proto.ParentProtocol] = append(childrenByParent[proto.ParentProtocol], childSlug)
		}
	}

	sort.SliceStable(childScores, func(i, j int) bool { return childScores[i].value > childScores[j].value })

	if len(childScores) > 0 {
		s.log.Debugw("Ranked protocols by TVL",
			"candidates", humanize.Comma(int64(len(childScores))),
			"top", childScores[0].childName,
			"topTvl", "$"+humanize.CommafWithDigits(childScores[0].value, 0),
		)
	}

	pickedKeys := make(map[string]struct{})
	var top []pickedProtocol
	for _, c := range childScores {
		key := "protocol:" + c.childSlug
		name, slug, parentID := c.childName, c.childSlug, ""
		if p.GroupByParent && c.parentID != "" {
			key = c.parentID
			parentID = c.parentID
			if n := parentIDToName[c.parentID]; n != "" {
				name = n
			}
			if sl := parentIDToSlug[c.parentID]; sl != "" {
				slug = sl
			}
		}
		if _, seen := pickedKeys[key]; seen {
			continue
		}
		pickedKeys[key] = struct{}{}
		top = append(top, pickedProtocol{name: name, slug: slug, parentID: parentID})
		if len(top) >= p.TopN {
			break
		}
	}

	uniqueTotal := len(childScores)
	if p.GroupByParent {
		familyKeys := make(map[string]struct{}, len(childScores))
		for _, c := range childScores {
			if c.parentID != "" {
				familyKeys[c.parentID] = struct{}{}
			} else {
				familyKeys["protocol:"+c.childSlug] = struct{}{}
			}
		}
		uniqueTotal = len(familyKeys)
	}

	displayChains := selectedChains
	if isAll {
		displayChains = []string{"All"}
	}

	if len(top) == 0 {
		return buildEmptyTvlSplit(displayChains, p.Categories, p.TopN), nil
	}

	excludedChains := make([]string, 0, len(excludedChainSet))
	for chain := range excludedChainSet {
		if strings.ToLower(chain) != "all" {
			excludedChains = append(excludedChains, chain)
		}
	}
	sort.Strings(excludedChains)

	protocolOpts := tvl.ProtocolTvlOptions{}
	if hasRealExcludedChains {
		protocolOpts.FilterMode = string(split.FilterExclude)
		protocolOpts.ExcludeChains = excludedChains
	}
	if p.FilterMode == split.FilterInclude && !isAll && len(includedChainSet) > 0 {
		protocolOpts.FilterMode = string(split.FilterInclude)
		for chain := range includedChainSet {
			protocolOpts.IncludeChains = append(protocolOpts.IncludeChains, chain)
		}
		sort.Strings(protocolOpts.IncludeChains)
	}

	protocolSeries, anyFailed := s.fetchTopProtocolSeries(ctx, top, childrenByParent, categoriesFilter, p.GroupByParent, protocolOpts)
	if anyFailed {
		s.log.Warnw("Failed to fetch TVL for some top protocols, returning empty chart")
		return buildEmptyTvlSplit(displayChains, p.Categories, p.TopN), nil
	}

	totalSeries, err := s.fetchTvlTotalSeries(ctx, selectedChains, excludedChains, categoriesFilter, isAll, p.FilterMode, hasRealExcludedChains)
	if err != nil {
		return nil, err
	}

	topRaw := make([]split.ChartSeries, 0, len(protocolSeries))
	for i, ps := range protocolSeries {
		topRaw = append(topRaw, split.ChartSeries{Name: ps.Name, Data: ps.Data, Color: split.SeriesColor(i)})
	}

	aligned, othersData, _, clamped := buildAlignedTopAndOthers(topRaw, totalSeries)
	s.recordClamped("tvl", clamped)

	othersCount := max(0, uniqueTotal-len(top))
	series := aligned
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
			Chain:          strings.Join(displayChains, ","),
			Chains:         displayChains,
			Categories:     p.Categories,
			Metric:         "TVL",
			TopN:           p.TopN,
			TotalProtocols: uniqueTotal,
			OthersCount:    othersCount,
			MarketSector:   split.MarketSector(p.Categories),
		},
	}, nil
}

type namedSeries struct {
	Name string
	Data []timeseries.Point
}

type pickedProtocol struct {
	name     string
	slug     string
	parentID string
}

// fetchTopProtocolSeries fetches the full adjusted-TVL series for every
// picked protocol concurrently. Under parent grouping with an active
// category filter a family's series is the sum of its category-matching
// children only. Any hard failure aborts the whole split: a chart missing
// one of its ranked entities would silently misattribute that TVL to
// Others. A non-OK response means the protocol has no detail data and
// contributes an empty series.
func (s *Service) fetchTopProtocolSeries(
	ctx context.Context,
	top []pickedProtocol,
	childrenByParent map[string][]string,
	categoriesFilter []string,
	groupByParent bool,
	opts tvl.ProtocolTvlOptions,
) ([]namedSeries, bool) {
	out := make([]namedSeries, len(top))
	failed := make([]bool, len(top))

	fetchSlug := func(slug string) ([]timeseries.Point, error) {
		detail, err := s.client.FetchProtocol(ctx, slug)
		if err != nil {
			if errors.Is(err, errors.ErrUpstreamStatus) {
				return nil, nil
			}
			return nil, err
		}
		return tvl.AdjustedProtocolTvl(detail.ChainTvls, opts), nil
	}

	var wg sync.WaitGroup
	for i, t := range top {
		wg.Add(1)
		go func(i int, t pickedProtocol) {
			defer wg.Done()

			useChildrenOnly := groupByParent && t.parentID != "" && len(categoriesFilter) > 0
			if useChildrenOnly {
				childSlugs := childrenByParent[t.parentID]
				if len(childSlugs) == 0 {
					out[i] = namedSeries{Name: t.name}
					return
				}
				childSeries := make([][]timeseries.Point, 0, len(childSlugs))
				for _, slug := range childSlugs {
					data, err := fetchSlug(slug)
					if err != nil {
						s.log.Warnw("Failed to fetch child protocol TVL", "slug", slug, "error", err)
						failed[i] = true
						return
					}
					childSeries = append(childSeries, data)
				}
				out[i] = namedSeries{Name: t.name, Data: timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(childSeries))}
				return
			}

			data, err := fetchSlug(t.slug)
			if err != nil {
				s.log.Warnw("Failed to fetch protocol TVL", "slug", t.slug, "error", err)
				failed[i] = true
				return
			}
			out[i] = namedSeries{Name: t.name, Data: data}
		}(i, t)
	}
	wg.Wait()

	for _, f := range failed {
		if f {
			return nil, true
		}
	}
	return out, false
}

// fetchTvlTotalSeries builds the total TVL series the Others bucket
// reconciles against. Four paths: plain chain total, category total,
// category-minus-excluded-chains, and chain-minus-excluded-chains.
func (s *Service) fetchTvlTotalSeries(
	ctx context.Context,
	selectedChains, excludedChains, categories []string,
	isAll bool,
	mode split.FilterMode,
	hasRealExcludedChains bool,
) ([]timeseries.Point, error) {
	if mode == split.FilterExclude && (hasRealExcludedChains || len(categories) > 0) {
		allTvl, err := s.fetchAdjustedChainChart(ctx, "")
		if err != nil {
			return nil, errors.Wrap(err, "fetch global tvl chart")
		}

		excludedPerChain := s.fetchAdjustedChainCharts(ctx, excludedChains)
		base := timeseries.SubtractSeries(allTvl, timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(excludedPerChain)))

		if len(categories) > 0 {
			perCategoryAll := make([][]timeseries.Point, len(categories))
			var wg sync.WaitGroup
			for i, cat := range categories {
				wg.Add(1)
				go func(i int, cat string) {
					defer wg.Done()
					perCategoryAll[i] = s.fetchCategorySeries(ctx, cat, "")
				}(i, cat)
			}
			wg.Wait()
			excludedCatsAll := timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(perCategoryAll))

			if len(excludedChains) > 0 {
				perCatPerExcluded := make([][]timeseries.Point, len(categories))
				for i, cat := range categories {
					wg.Add(1)
					go func(i int, cat string) {
						defer wg.Done()
						perChain := make([][]timeseries.Point, len(excludedChains))
						var inner sync.WaitGroup
						for j, ch := range excludedChains {
							inner.Add(1)
							go func(j int, ch string) {
								defer inner.Done()
								perChain[j] = s.fetchCategorySeries(ctx, cat, ch)
							}(j, ch)
						}
						inner.Wait()
						perCatPerExcluded[i] = timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(perChain))
					}(i, cat)
				}
				wg.Wait()
				sumAcrossChains := timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(perCatPerExcluded))
				excludedCatsAll = timeseries.SubtractSeries(excludedCatsAll, sumAcrossChains)
			}
			base = timeseries.SubtractSeries(base, excludedCatsAll)
		}
		return base, nil
	}

	chains := selectedChains
	if isAll {
		chains = []string{"all"}
	}
	return s.fetchCategoryTvl(ctx, chains, categories)
}

// fetchCategoryTvl is the include-mode total: the chain total when no
// category filter is set, otherwise the summed category charts (per chain
// unless the scope is all chains).
func (s *Service) fetchCategoryTvl(ctx context.Context, chains, categories []string) ([]timeseries.Point, error) {
	if len(categories) == 0 {
		return s.fetchChainTotalTvl(ctx, chains)
	}

	isAllChains := len(chains) == 0
	for _, c := range chains {
		if strings.ToLower(c) == "all" {
			isAllChains = true
			break
		}
	}

	type job struct{ category, chain string }
	var jobs []job
	for _, cat := range categories {
		if isAllChains {
			jobs = append(jobs, job{category: cat})
		} else {
			for _, ch := range chains {
				jobs = append(jobs, job{category: cat, chain: ch})
			}
		}
	}

	results := make([][]timeseries.Point, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			results[i] = s.fetchCategorySeries(ctx, j.category, j.chain)
		}(i, j)
	}
	wg.Wait()

	return timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(results)), nil
}

// fetchChainTotalTvl returns the adjusted TVL total across the given
// chains, or the global total when the scope is all chains.
func (s *Service) fetchChainTotalTvl(ctx context.Context, chains []string) ([]timeseries.Point, error) {
	isAll := len(chains) == 0
	for _, c := range chains {
		if strings.ToLower(c) == "all" {
			isAll = true
			break
		}
	}
	if isAll {
		return s.fetchAdjustedChainChart(ctx, "")
	}
	perChain := s.fetchAdjustedChainCharts(ctx, chains)
	return timeseries.SortedPairs(timeseries.SumSeriesByTimestamp(perChain)), nil
}

// fetchAdjustedChainChart fetches one chain's TVL chart (the global chart
// when chain is empty), adjusts it and collapses it onto the daily grid.
func (s *Service) fetchAdjustedChainChart(ctx context.Context, chain string) ([]timeseries.Point, error) {
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
	return timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(adjusted, timeseries.TieLast)), nil
}

// fetchAdjustedChainCharts fans out per-chain chart fetches; a failed
// chain contributes an empty series.
func (s *Service) fetchAdjustedChainCharts(ctx context.Context, chains []string) [][]timeseries.Point {
	out := make([][]timeseries.Point, len(chains))
	var wg sync.WaitGroup
	for i, chain := range chains {
		wg.Add(1)
		go func(i int, chain string) {
			defer wg.Done()
			data, err := s.fetchAdjustedChainChart(ctx, chain)
			if err != nil {
				s.log.Warnw("Failed to fetch chain tvl chart", "chain", chain, "error", err)
				return
			}
			out[i] = data
		}(i, chain)
	}
	wg.Wait()
	return out
}

// fetchCategorySeries fetches one category's TVL chart (optionally scoped
// to a chain) on the daily grid. Failures degrade to an empty series.
func (s *Service) fetchCategorySeries(ctx context.Context, category, chain string) []timeseries.Point {
	resp, err := s.client.FetchCategoryChart(ctx, category, chain)
	if err != nil {
		s.log.Warnw("Failed to fetch category tvl", "category", category, "chain", chain, "error", err)
		return nil
	}
	pairs := make([]timeseries.Point, 0, len(resp.Tvl))
	for tsStr, v := range resp.Tvl {
		ts, parseErr := strconv.ParseInt(tsStr, 10, 64)
		if parseErr != nil {
			continue
		}
		pairs = append(pairs, timeseries.Point{Ts: ts, Value: v})
	}
	return timeseries.FilterOutToday(timeseries.NormalizeDailyPairs(pairs, timeseries.TieLast))
}

func buildEmptyTvlSplit(displayChains, categories []string, topN int) *split.ProtocolSplitData {
	return &split.ProtocolSplitData{
		Series: []split.ChartSeries{},
		Metadata: split.SplitMetadata{
			Chain:          strings.Join(displayChains, ","),
			Chains:         displayChains,
			Categories:     categories,
			Metric:         "TVL",
			TopN:           topN,
			TotalProtocols: 0,
			OthersCount:    0,
			MarketSector:   split.MarketSector(categories),
		},
	}
}
