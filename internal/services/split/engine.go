package split

import (
	"defilens/internal/domain/split"
	"defilens/internal/domain/timeseries"
	"defilens/internal/metrics"
)

// buildAlignedTopAndOthers unions the timestamps of the ranked series and
// the independently sourced total into one ascending axis, aligns every
// series on it with zero-fill, and derives the residual bucket
// Others[t] = max(0, total[t] - sum(top[t])).
//
// A negative raw residual means a ranked entity's own series exceeded the
// total at that timestamp (source skew between upstreams); it is clamped
// to zero and counted so the condition surfaces in metrics.
func buildAlignedTopAndOthers(
	top []split.ChartSeries,
	total []timeseries.Point,
) (aligned []split.ChartSeries, others []timeseries.Point, allTimestamps []int64, clamped int) {
	topData := make([][]timeseries.Point, 0, len(top)+1)
	for _, s := range top {
		topData = append(topData, s.Data)
	}
	allTimestamps = timeseries.UnionTimestamps(append(topData, total)...)

	aligned = make([]split.ChartSeries, 0, len(top))
	alignedData := make([][]timeseries.Point, 0, len(top))
	for _, s := range top {
		d := timeseries.AlignSeries(allTimestamps, s.Data)
		aligned = append(aligned, split.ChartSeries{Name: s.Name, Data: d, Color: s.Color})
		alignedData = append(alignedData, d)
	}

	alignedTotal := timeseries.AlignSeries(allTimestamps, total)
	topSums := timeseries.SumSeriesByTimestamp(alignedData)

	others = make([]timeseries.Point, 0, len(allTimestamps))
	for i, ts := range allTimestamps {
		rest := alignedTotal[i].Value - topSums[ts]
		if rest < 0 {
			rest = 0
			clamped++
		}
		others = append(others, timeseries.Point{Ts: ts, Value: rest})
	}
	return aligned, others, allTimestamps, clamped
}

// hasPositive reports whether any point carries a strictly positive value.
func hasPositive(points []timeseries.Point) bool {
	for _, p := range points {
		if p.Value > 0 {
			return true
		}
	}
	return false
}

func (s *Service) recordClamped(orchestrator string, clamped int) {
	if clamped > 0 {
		s.log.Debugw("Others residual clamped to zero",
			"orchestrator", orchestrator,
			"timestamps", clamped)
		metrics.RecordOthersClamped(orchestrator, clamped)
	}
}
