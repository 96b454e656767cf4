// Package timeseries holds the pure primitives the split pipeline is built
// on: daily normalization, today-trimming, axis alignment and per-timestamp
// summation over [timestamp, value] pairs.
package timeseries

import (
	"math"
	"sort"
	"time"
)

const secondsPerDay = 86400

// millisecond timestamps sneak in from some upstream payloads
const msThreshold = 1e12

// Point is one [timestamp, value] pair. Timestamps are unix seconds.
type Point struct {
	Ts    int64
	Value float64
}

// nowFunc is swapped out in tests
var nowFunc = time.Now

// TieBreak selects how multiple points landing on the same UTC day collapse.
type TieBreak int

const (
	// TieSum adds all values seen for the day
	TieSum TieBreak = iota
	// TieLast keeps the last value seen for the day
	TieLast
)

// ToUTCDay truncates a unix timestamp to the start of its UTC day.
func ToUTCDay(ts int64) int64 {
	if ts < 0 {
		return (ts - secondsPerDay + 1) / secondsPerDay * secondsPerDay
	}
	return ts / secondsPerDay * secondsPerDay
}

// NormalizeTimestamp converts millisecond timestamps to seconds.
func NormalizeTimestamp(ts float64) int64 {
	if ts > msThreshold {
		return int64(math.Floor(ts / 1000))
	}
	return int64(ts)
}

// StartOfTodayUTC returns the unix timestamp of today's UTC midnight.
func StartOfTodayUTC() int64 {
	now := nowFunc().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// NormalizeDailyPairs collapses points onto a canonical UTC-day grid.
// Non-finite values are dropped so a single bad point cannot poison an
// aggregated total. Output is sorted ascending with one point per day.
func NormalizeDailyPairs(pairs []Point, tieBreak TieBreak) []Point {
	daily := make(map[int64]float64, len(pairs))
	for _, p := range pairs {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		day := ToUTCDay(p.Ts)
		if tieBreak == TieLast {
			daily[day] = p.Value
		} else {
			daily[day] += p.Value
		}
	}
	return SortedPairs(daily)
}

// FilterOutToday drops points falling on the current, possibly incomplete,
// UTC day so partial-day data is never rendered as final.
func FilterOutToday(pairs []Point) []Point {
	today := StartOfTodayUTC()
	out := make([]Point, 0, len(pairs))
	for _, p := range pairs {
		if p.Ts < today {
			out = append(out, p)
		}
	}
	return out
}

// AlignSeries projects a series onto a canonical timestamp axis. Missing
// points become zero, never null: an entity with no data on a day
// contributes nothing, and the Others residual depends on that.
func AlignSeries(timestamps []int64, series []Point) []Point {
	lookup := make(map[int64]float64, len(series))
	for _, p := range series {
		lookup[p.Ts] = p.Value
	}
	out := make([]Point, len(timestamps))
	for i, ts := range timestamps {
		out[i] = Point{Ts: ts, Value: lookup[ts]}
	}
	return out
}

// SumSeriesByTimestamp sums values across all series per timestamp.
// A series missing a timestamp contributes zero implicitly.
func SumSeriesByTimestamp(seriesList [][]Point) map[int64]float64 {
	acc := make(map[int64]float64)
	for _, series := range seriesList {
		for _, p := range series {
			acc[p.Ts] += p.Value
		}
	}
	return acc
}

// SubtractSeries computes a-b per timestamp, keeping timestamps present in
// either input.
func SubtractSeries(a, b []Point) []Point {
	acc := make(map[int64]float64, len(a))
	for _, p := range a {
		acc[p.Ts] = p.Value
	}
	for _, p := range b {
		acc[p.Ts] -= p.Value
	}
	return SortedPairs(acc)
}

// SortedPairs converts a timestamp-keyed map into an ascending point slice.
func SortedPairs(m map[int64]float64) []Point {
	out := make([]Point, 0, len(m))
	for ts, v := range m {
		out = append(out, Point{Ts: ts, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out
}

// UnionTimestamps collects the ascending union of all timestamps across the
// given series.
func UnionTimestamps(seriesList ...[]Point) []int64 {
	set := make(map[int64]struct{})
	for _, series := range seriesList {
		for _, p := range series {
			set[p.Ts] = struct{}{}
		}
	}
	out := make([]int64, 0, len(set))
	for ts := range set {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LastValue returns the value of the final point, or 0 for an empty series.
func LastValue(series []Point) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].Value
}
