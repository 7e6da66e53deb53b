package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d, h int) time.Time {
	return time.Date(2026, 10, d, h, 0, 0, 0, time.UTC)
}

func TestFromRule_Weekly(t *testing.T) {
	s, err := FromRule(day(6, 14), time.Hour, "FREQ=WEEKLY;COUNT=10", nil, []time.Time{day(13, 14)})
	require.NoError(t, err)

	occ := s.Occurrences(day(1, 0), day(28, 0))
	require.Len(t, occ, 3, "Oct 6, 20 and 27; Oct 13 is excluded")
	assert.True(t, day(6, 14).Equal(occ[0].Start))
	assert.True(t, day(20, 14).Equal(occ[1].Start))
	assert.True(t, day(27, 15).Equal(occ[2].End))
}

func TestOccurrences_StraddlingRangeStart(t *testing.T) {
	s, err := FromRule(day(19, 23), 2*time.Hour, "FREQ=DAILY;COUNT=3", nil, nil)
	require.NoError(t, err)

	// The Oct 20 23:00 occurrence runs into Oct 21.
	occ := s.Occurrences(day(21, 0), day(21, 12))
	require.Len(t, occ, 1)
	assert.True(t, day(20, 23).Equal(occ[0].Start))
}

func TestOccurrences_Override(t *testing.T) {
	s, err := FromRule(day(6, 14), time.Hour, "FREQ=WEEKLY", nil, nil)
	require.NoError(t, err)
	s.Override(day(20, 14))

	occ := s.Occurrences(day(19, 0), day(26, 0))
	assert.Empty(t, occ)
}

func TestOccurrences_SingleInstance(t *testing.T) {
	s := &Series{Start: day(20, 9), Duration: time.Hour}
	assert.Len(t, s.Occurrences(day(20, 0), day(21, 0)), 1)
	assert.Empty(t, s.Occurrences(day(20, 10), day(21, 0)), "touching the end does not overlap")
}

func TestFromRule_Invalid(t *testing.T) {
	_, err := FromRule(day(6, 14), time.Hour, "FREQ=SOMETIMES", nil, nil)
	assert.Error(t, err)
}
