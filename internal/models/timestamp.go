package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimestamp is matched by every InvalidTimestampError.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// InvalidTimestampError reports a raw value that could not be read as a date/time.
type InvalidTimestampError struct {
	Value string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp %q", e.Value)
}

// Is makes errors.Is(err, ErrInvalidTimestamp) work.
func (e *InvalidTimestampError) Is(target error) bool {
	return target == ErrInvalidTimestamp
}

// zonedLayouts carry their own offset; the source zone is ignored for them.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts are wall-clock values resolved in the source zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Normalize parses raw and returns it expressed in target.
//
// Values carrying an explicit offset keep their instant. Zone-naive values are
// read as wall-clock time in source, or in target when source is nil.
// A nil target means UTC.
func Normalize(raw string, source, target *time.Location) (time.Time, error) {
	if target == nil {
		target = time.UTC
	}
	if source == nil {
		source = target
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, &InvalidTimestampError{Value: raw}
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.In(target), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, source); err == nil {
			return t.In(target), nil
		}
	}
	return time.Time{}, &InvalidTimestampError{Value: raw}
}

// NormalizeTime expresses an already parsed instant in target.
func NormalizeTime(t time.Time, target *time.Location) time.Time {
	if target == nil {
		target = time.UTC
	}
	return t.In(target)
}

// FloatingIn reinterprets the wall clock of t (year through nanosecond, ignoring
// its zone) as a time in loc. It resolves "floating" calendar times that were
// stored without a zone.
func FloatingIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
