// Package availability decides which proposed slots are free and searches for
// free slots in the user's working hours. It is pure: callers pass in every
// busy event and every setting, nothing is read from the environment.
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in the user's zone.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock reads "HH:MM". "24:00" is accepted as the end of the day.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	c := ClockTime{Hour: h, Minute: m}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return c, nil
}

// On returns the instant at which the clock shows c on the calendar day of day,
// evaluated in loc.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Options tunes the engine.
type Options struct {
	Location         *time.Location // User's primary zone
	WorkdayStart     ClockTime
	WorkdayEnd       ClockTime
	MinSlotDuration  time.Duration // Free gaps shorter than this are not offered
	SearchWindowDays int           // Days searched when no candidate gives a range
	MaxAlternatives  int           // 0 means unlimited
	ExcludeWeekends  bool
	IncludeAllDay    bool // Treat all-day events as busy
}

// DefaultOptions returns the stock working-hours policy in loc.
func DefaultOptions(loc *time.Location) Options {
	if loc == nil {
		loc = time.Local
	}
	return Options{
		Location:         loc,
		WorkdayStart:     ClockTime{Hour: 8},
		WorkdayEnd:       ClockTime{Hour: 20},
		MinSlotDuration:  30 * time.Minute,
		SearchWindowDays: 7,
	}
}

// Validate reports settings the engine cannot work with.
func (o Options) Validate() error {
	if o.WorkdayEnd.minutes() <= o.WorkdayStart.minutes() {
		return fmt.Errorf("workday end %s must be after workday start %s", o.WorkdayEnd, o.WorkdayStart)
	}
	if o.MinSlotDuration < 0 {
		return fmt.Errorf("minimum slot duration must not be negative, got %s", o.MinSlotDuration)
	}
	if o.SearchWindowDays < 0 {
		return fmt.Errorf("search window days must not be negative, got %d", o.SearchWindowDays)
	}
	if o.MaxAlternatives < 0 {
		return fmt.Errorf("max alternatives must not be negative, got %d", o.MaxAlternatives)
	}
	return nil
}

// withDefaults fills the fields whose zero value is meaningless.
func (o Options) withDefaults() Options {
	def := DefaultOptions(o.Location)
	o.Location = def.Location
	if o.WorkdayStart == (ClockTime{}) && o.WorkdayEnd == (ClockTime{}) {
		o.WorkdayStart, o.WorkdayEnd = def.WorkdayStart, def.WorkdayEnd
	}
	if o.SearchWindowDays == 0 {
		o.SearchWindowDays = def.SearchWindowDays
	}
	return o
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func addDays(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, day.Location())
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
