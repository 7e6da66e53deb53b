package normalizer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	errNoDate  = errors.New("no recognisable date")
	errNoClock = errors.New("no recognisable time of day")
)

// clock is a wall-clock time of day.
type clock struct {
	hour, minute, second int
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, c.second, 0, day.Location())
}

// Period words stand in for a time when none is given.
var periods = map[string]clock{
	"morning":   {hour: 9},
	"noon":      {hour: 12},
	"midday":    {hour: 12},
	"lunch":     {hour: 12},
	"afternoon": {hour: 14},
	"evening":   {hour: 18},
	"tonight":   {hour: 18},
}

var (
	ordinalRe = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	periodRe  = regexp.MustCompile(`\b(?:in the |this )?(morning|noon|midday|lunch|afternoon|evening|tonight)\b`)
	clockRe   = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?(?::(\d{2}))?\s*(?:([ap])\.?\s?m\.?)?$`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// dateLayouts carry a year.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// yearlessLayouts resolve to the next occurrence on or after today.
var yearlessLayouts = []string{
	"01-02",
	"1/2",
	"January 2",
	"Jan 2",
	"2 January",
	"2 Jan",
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// cleanText lowercases s, collapses whitespace and drops ordinal suffixes
// and trailing punctuation.
func cleanText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;!? ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.ReplaceAll(s, "sept ", "sep ")
}

// splitPeriod removes a period word ("tomorrow afternoon") from s and
// returns the rest along with the clock it stands for.
func splitPeriod(s string) (rest string, period *clock) {
	m := periodRe.FindStringSubmatchIndex(s)
	if m == nil {
		return s, nil
	}
	c := periods[s[m[2]:m[3]]]
	rest = strings.TrimSpace(s[:m[0]] + " " + s[m[1]:])
	return strings.Trim(spacesRe.ReplaceAllString(rest, " "), ", "), &c
}

// parseDate resolves a date expression to midnight of that day in today's zone.
// today is the current instant in the slot's zone.
func parseDate(raw string, today time.Time) (time.Time, error) {
	s := cleanText(raw)
	if s == "" {
		return time.Time{}, errNoDate
	}
	loc := today.Location()
	base := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "today", "tonight":
		return base, nil
	case "tomorrow", "tmrw", "tmr":
		return base.AddDate(0, 0, 1), nil
	case "day after tomorrow", "the day after tomorrow", "overmorrow":
		return base.AddDate(0, 0, 2), nil
	}

	if wd, ok := weekdays[strings.TrimPrefix(s, "this ")]; ok {
		return nextWeekday(base, wd), nil
	}
	if rest, ok := strings.CutPrefix(s, "next "); ok {
		if wd, ok := weekdays[rest]; ok {
			return weekdayNextWeek(base, wd), nil
		}
		if rest == "week" {
			return weekdayNextWeek(base, time.Monday), nil
		}
	}

	// "monday, jan 2" carries a redundant weekday.
	if head, tail, ok := strings.Cut(s, " "); ok {
		if _, isWeekday := weekdays[strings.TrimSuffix(head, ",")]; isWeekday {
			s = strings.TrimSpace(tail)
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return nextOccurrence(base, t.Month(), t.Day())
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", errNoDate, raw)
}

// nextWeekday is the first wd on or after day.
func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, delta)
}

// weekdayNextWeek is wd in the Monday-based week after day's week.
func weekdayNextWeek(day time.Time, wd time.Weekday) time.Time {
	sinceMonday := (int(day.Weekday()) + 6) % 7
	nextMonday := day.AddDate(0, 0, 7-sinceMonday)
	return nextMonday.AddDate(0, 0, (int(wd)+6)%7)
}

// nextOccurrence is the first month/day on or after base. Feb 29 skips
// ahead to the next leap year.
func nextOccurrence(base time.Time, month time.Month, day int) (time.Time, error) {
	for year := base.Year(); year <= base.Year()+8; year++ {
		t := time.Date(year, month, day, 0, 0, 0, 0, base.Location())
		if t.Month() != month || t.Day() != day {
			continue
		}
		if !t.Before(base) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %d never occurs", errNoDate, month, day)
}

// parseClock reads a time of day: "15:04", "15:04:05", "3pm", "3:30 p.m.",
// or a period word. AM/PM is taken as written.
func parseClock(raw string) (clock, error) {
	s := cleanText(raw)
	if c, ok := periods[s]; ok {
		return c, nil
	}
	if s == "midnight" {
		return clock{}, nil
	}
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return clock{}, fmt.Errorf("%w: %q", errNoClock, raw)
	}
	hour, _ := strconv.Atoi(m[1])
	var c clock
	c.hour = hour
	if m[2] != "" {
		c.minute, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		c.second, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "a":
		if hour < 1 || hour > 12 {
			return clock{}, fmt.Errorf("%w: %q", errNoClock, raw)
		}
		if hour == 12 {
			c.hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return clock{}, fmt.Errorf("%w: %q", errNoClock, raw)
		}
		if hour < 12 {
			c.hour += 12
		}
	}
	if c.hour > 23 || c.minute > 59 || c.second > 59 {
		return clock{}, fmt.Errorf("%w: %q", errNoClock, raw)
	}
	return c, nil
}

// splitDateTime separates free text such as "tomorrow 3pm" or "Oct 20 at 14:00"
// into its date and time parts. The time is the trailing token(s).
func splitDateTime(raw string) (date, clockText string, ok bool) {
	s := cleanText(raw)
	words := strings.Fields(s)
	for take := 1; take <= 2 && take < len(words); take++ {
		tail := strings.Join(words[len(words)-take:], " ")
		// A bare number is more likely a day of the month.
		if !strings.Contains(tail, ":") && !strings.HasSuffix(strings.TrimSuffix(tail, "."), "m") {
			continue
		}
		if _, err := parseClock(tail); err != nil {
			continue
		}
		head := strings.Join(words[:len(words)-take], " ")
		head = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(head, " at"), ","))
		return head, tail, true
	}
	return "", "", false
}
