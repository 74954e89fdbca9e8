// Package interval implements the watched-interval merge used to compute
// unique watch coverage. Merge and WatchedTime are pure; callers own the
// filtering of degenerate input.
package interval

import "sort"

// Interval is a contiguous watched time range in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns the span covered by the interval.
func (iv Interval) Length() float64 {
	return iv.End - iv.Start
}

// Merge collapses an unordered set of intervals into the minimal sorted set
// of non-overlapping intervals covering the same time. Touching intervals
// (cur.Start == last.End) are joined. The input slice is not mutated.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	result := make([]Interval, 0, len(sorted))
	result = append(result, sorted[0])
	for _, cur := range sorted[1:] {
		last := &result[len(result)-1]
		if cur.Start <= last.End {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		result = append(result, cur)
	}
	return result
}

// WatchedTime sums the lengths of the given intervals. Call it on merged
// input only; overlapping input double-counts.
func WatchedTime(intervals []Interval) float64 {
	var total float64
	for _, iv := range intervals {
		total += iv.Length()
	}
	return total
}
