package availability

import (
	"slotcheck/internal/models"
)

// Merge returns the busy time covered by events as a sorted list of disjoint
// intervals. Overlapping and touching events are coalesced.
func Merge(events []models.BusyEvent) []models.Interval {
	ivs := make([]models.Interval, 0, len(events))
	for _, ev := range events {
		ivs = append(ivs, ev.Interval)
	}
	return MergeIntervals(ivs)
}

// MergeIntervals coalesces ivs into sorted disjoint intervals. The input is not modified.
func MergeIntervals(ivs []models.Interval) []models.Interval {
	sorted := make([]models.Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Start.Before(iv.End) {
			sorted = append(sorted, iv)
		}
	}
	models.SortIntervals(sorted)

	merged := make([]models.Interval, 0, len(sorted))
	for _, iv := range sorted {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// subtract removes busy (sorted, disjoint) from base and returns what is left.
func subtract(base models.Interval, busy []models.Interval) []models.Interval {
	var free []models.Interval
	cursor := base.Start
	for _, b := range busy {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(base.End) {
			break
		}
		if b.Start.After(cursor) {
			free = append(free, models.Interval{Start: cursor, End: b.Start})
		}
		cursor = b.End
		if !cursor.Before(base.End) {
			return free
		}
	}
	if cursor.Before(base.End) {
		free = append(free, models.Interval{Start: cursor, End: base.End})
	}
	return free
}

// relevant drops events the options say do not block time.
func relevant(events []models.BusyEvent, opts Options) []models.BusyEvent {
	if opts.IncludeAllDay {
		return events
	}
	out := make([]models.BusyEvent, 0, len(events))
	for _, ev := range events {
		if !ev.AllDay {
			out = append(out, ev)
		}
	}
	return out
}
