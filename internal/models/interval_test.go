package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 20, hour, minute, 0, 0, time.UTC)
}

func TestNewInterval(t *testing.T) {
	iv, err := NewInterval(at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, iv.Duration())

	_, err = NewInterval(at(10, 0), at(10, 0))
	assert.True(t, errors.Is(err, ErrEmptyInterval))

	_, err = NewInterval(at(10, 0), at(9, 0))
	assert.True(t, errors.Is(err, ErrEmptyInterval))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"contained", MustInterval(at(14, 0), at(15, 0)), MustInterval(at(14, 30), at(14, 45)), true},
		{"partial", MustInterval(at(9, 0), at(10, 0)), MustInterval(at(9, 30), at(11, 0)), true},
		{"touching end", MustInterval(at(14, 0), at(15, 0)), MustInterval(at(15, 0), at(16, 0)), false},
		{"touching start", MustInterval(at(14, 0), at(15, 0)), MustInterval(at(13, 0), at(14, 0)), false},
		{"disjoint", MustInterval(at(8, 0), at(9, 0)), MustInterval(at(12, 0), at(13, 0)), false},
		{"identical", MustInterval(at(8, 0), at(9, 0)), MustInterval(at(8, 0), at(9, 0)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlaps_Self(t *testing.T) {
	iv := MustInterval(at(8, 0), at(8, 1))
	assert.True(t, iv.Overlaps(iv))
}

func TestOverlaps_AcrossZones(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 16:00-17:00 Berlin (CEST) is 14:00-15:00 UTC.
	local := MustInterval(
		time.Date(2026, 10, 20, 16, 0, 0, 0, berlin),
		time.Date(2026, 10, 20, 17, 0, 0, 0, berlin),
	)
	assert.True(t, Overlaps(local, MustInterval(at(14, 30), at(14, 45))))
	assert.False(t, Overlaps(local, MustInterval(at(15, 0), at(16, 0))))
}

func TestSortIntervals(t *testing.T) {
	ivs := []Interval{
		MustInterval(at(10, 0), at(12, 0)),
		MustInterval(at(9, 0), at(11, 0)),
		MustInterval(at(10, 0), at(11, 0)),
	}
	SortIntervals(ivs)

	assert.Equal(t, at(9, 0), ivs[0].Start)
	assert.Equal(t, at(11, 0), ivs[1].End)
	assert.Equal(t, at(12, 0), ivs[2].End)
}

func TestInterval_Contains(t *testing.T) {
	iv := MustInterval(at(9, 0), at(10, 0))
	assert.True(t, iv.Contains(at(9, 0)))
	assert.True(t, iv.Contains(at(9, 59)))
	assert.False(t, iv.Contains(at(10, 0)))
}
