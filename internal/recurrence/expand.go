// Package recurrence expands repeating calendar events into the concrete
// occurrences that fall inside a time range.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"slotcheck/internal/models"
)

// Series is one repeating event: the first occurrence, its length and the
// rule set producing the rest.
type Series struct {
	Start    time.Time
	Duration time.Duration
	Set      *rrule.Set
	// Overridden holds the original start of occurrences replaced by a
	// separate exception (RECURRENCE-ID) event.
	Overridden map[int64]bool
}

// Override marks the occurrence originally starting at t as replaced.
func (s *Series) Override(t time.Time) {
	if s.Overridden == nil {
		s.Overridden = make(map[int64]bool)
	}
	s.Overridden[t.UnixNano()] = true
}

// Occurrences returns the occurrences of s overlapping [from, to), in order.
// A series without a rule set yields its single instance when it overlaps.
func (s *Series) Occurrences(from, to time.Time) []models.Interval {
	if s.Duration <= 0 || !from.Before(to) {
		return nil
	}
	window := models.Interval{Start: from, End: to}

	if s.Set == nil {
		iv := models.Interval{Start: s.Start, End: s.Start.Add(s.Duration)}
		if models.Overlaps(iv, window) {
			return []models.Interval{iv}
		}
		return nil
	}

	// An occurrence starting up to Duration before from still overlaps it.
	var out []models.Interval
	for _, occ := range s.Set.Between(from.Add(-s.Duration), to, true) {
		if s.Overridden[occ.UnixNano()] {
			continue
		}
		iv := models.Interval{Start: occ, End: occ.Add(s.Duration)}
		if models.Overlaps(iv, window) {
			out = append(out, iv)
		}
	}
	return out
}

// FromRule builds a Series from RRULE, RDATE and EXDATE lines in the textual
// iCalendar form, e.g. "FREQ=WEEKLY;BYDAY=MO". start anchors the rule.
func FromRule(start time.Time, duration time.Duration, rule string, rdates, exdates []time.Time) (*Series, error) {
	opt, err := rrule.StrToROptionInLocation(rule, start.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule %q: %w", rule, err)
	}
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule %q: %w", rule, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, t := range rdates {
		set.RDate(t)
	}
	for _, t := range exdates {
		set.ExDate(t)
	}
	return &Series{Start: start, Duration: duration, Set: set}, nil
}
