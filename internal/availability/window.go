package availability

import (
	"time"

	"slotcheck/internal/models"
)

// DefaultWindow is [now, end of day now+SearchWindowDays).
func DefaultWindow(now time.Time, opts Options) models.Interval {
	opts = opts.withDefaults()
	end := addDays(startOfDay(now, opts.Location), opts.SearchWindowDays+1)
	return models.Interval{Start: now.In(opts.Location), End: end}
}

// SearchWindow returns the whole calendar days spanned by candidates, clipped so
// it never starts before now. Without candidates, or when every candidate day
// is already over, it returns DefaultWindow.
func SearchWindow(candidates []models.CandidateSlot, now time.Time, opts Options) models.Interval {
	opts = opts.withDefaults()
	span, ok := Span(candidates)
	if !ok {
		return DefaultWindow(now, opts)
	}

	start := startOfDay(span.Start, opts.Location)
	end := startOfDay(span.End, opts.Location)
	if !end.Equal(span.End) {
		end = addDays(end, 1)
	}
	if start.Before(now) {
		start = now.In(opts.Location)
	}
	if !start.Before(end) {
		return DefaultWindow(now, opts)
	}
	return models.Interval{Start: start, End: end}
}

// Span returns the smallest interval covering every candidate. ok is false when
// there are none.
func Span(candidates []models.CandidateSlot) (span models.Interval, ok bool) {
	for i, c := range candidates {
		if i == 0 {
			span = c.Interval
			continue
		}
		if c.Interval.Start.Before(span.Start) {
			span.Start = c.Interval.Start
		}
		if c.Interval.End.After(span.End) {
			span.End = c.Interval.End
		}
	}
	return span, len(candidates) > 0
}
