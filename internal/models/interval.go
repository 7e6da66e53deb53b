package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrEmptyInterval is returned when an interval's end is not after its start.
var ErrEmptyInterval = errors.New("interval end must be after start")

// Interval is a half-open time range [Start, End).
// Values are immutable once constructed; use NewInterval to build one.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval returns the interval [start, end). It fails when start is not
// strictly before end.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s - %s", ErrEmptyInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// MustInterval is like NewInterval but panics on an invalid range.
// Use it for literals that are known to be valid.
func MustInterval(start, end time.Time) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

// Overlaps reports whether a and b share any instant. Intervals that merely
// touch at an endpoint do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Overlaps reports whether iv and other overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return Overlaps(iv, other)
}

// Contains reports whether t lies within [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// IsZero reports whether iv is the zero Interval.
func (iv Interval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// In returns iv with both boundaries expressed in loc.
func (iv Interval) In(loc *time.Location) Interval {
	return Interval{Start: iv.Start.In(loc), End: iv.End.In(loc)}
}

// Compare orders intervals by start, then by end. It returns -1, 0 or +1.
func (iv Interval) Compare(other Interval) int {
	if c := iv.Start.Compare(other.Start); c != 0 {
		return c
	}
	return iv.End.Compare(other.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// SortIntervals sorts ivs in place by start ascending, ties broken by end.
func SortIntervals(ivs []Interval) {
	sort.SliceStable(ivs, func(i, j int) bool {
		return ivs[i].Compare(ivs[j]) < 0
	})
}
