package availability

import (
	"slotcheck/internal/models"
)

// FreeSlots finds free time inside window that also falls in working hours.
//
// The working-hours mask is rebuilt for each calendar day in the user's zone,
// so days with a DST transition keep their wall-clock bounds. Gaps shorter than
// opts.MinSlotDuration are dropped. The rest are ranked by start, starting at 1,
// and capped at opts.MaxAlternatives when that is positive.
func FreeSlots(window models.Interval, events []models.BusyEvent, opts Options) []models.AlternativeSlot {
	opts = opts.withDefaults()
	slots := []models.AlternativeSlot{}
	if !window.Start.Before(window.End) {
		return slots
	}

	busy := Merge(relevant(events, opts))
	var free []models.Interval
	for _, mask := range workingHours(window, opts) {
		free = append(free, subtract(mask, busy)...)
	}
	// Masks spanning whole days can leave gaps that touch at midnight.
	free = MergeIntervals(free)

	for _, iv := range free {
		if iv.Duration() < opts.MinSlotDuration {
			continue
		}
		slots = append(slots, models.AlternativeSlot{
			Interval: iv.In(opts.Location),
			Rank:     len(slots) + 1,
		})
		if opts.MaxAlternatives > 0 && len(slots) == opts.MaxAlternatives {
			break
		}
	}
	return slots
}

// workingHours returns window intersected with each day's working hours.
func workingHours(window models.Interval, opts Options) []models.Interval {
	loc := opts.Location
	var masks []models.Interval
	for day := startOfDay(window.Start, loc); day.Before(window.End); day = addDays(day, 1) {
		if opts.ExcludeWeekends && isWeekend(day) {
			continue
		}
		start := opts.WorkdayStart.On(day, loc)
		end := opts.WorkdayEnd.On(day, loc)
		if start.Before(window.Start) {
			start = window.Start
		}
		if end.After(window.End) {
			end = window.End
		}
		if start.Before(end) {
			masks = append(masks, models.Interval{Start: start, End: end})
		}
	}
	return masks
}
