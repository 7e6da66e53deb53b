package normalizer

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotcheck/internal/models"
)

// Tuesday 2026-10-20, 10:00 UTC.
var fixedNow = time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, time.UTC, 0).WithClock(func() time.Time { return fixedNow })
}

func utc(month time.Month, day, hour, minute int) time.Time {
	year := 2026
	if month < time.October {
		year = 2027
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func boolPtr(b bool) *bool { return &b }

func TestNormalize_Resolves(t *testing.T) {
	tests := []struct {
		name      string
		slot      RawSlot
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "full timestamps",
			slot:      RawSlot{Start: "2026-10-22 14:00", End: "2026-10-22 15:00"},
			wantStart: utc(time.October, 22, 14, 0),
			wantEnd:   utc(time.October, 22, 15, 0),
		},
		{
			name:      "timestamp with offset",
			slot:      RawSlot{Start: "2026-10-22T14:00:00+02:00", DurationMinutes: 60},
			wantStart: utc(time.October, 22, 12, 0),
			wantEnd:   utc(time.October, 22, 13, 0),
		},
		{
			name:      "month day with am pm",
			slot:      RawSlot{Date: "Oct 22", StartTime: "3pm", EndTime: "4:30 p.m."},
			wantStart: utc(time.October, 22, 15, 0),
			wantEnd:   utc(time.October, 22, 16, 30),
		},
		{
			name:      "year-less date already passed rolls to next year",
			slot:      RawSlot{Date: "October 1st", StartTime: "10:00"},
			wantStart: time.Date(2027, 10, 1, 10, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, 10, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			name:      "year-less today stays today",
			slot:      RawSlot{Date: "10/20", StartTime: "16:00"},
			wantStart: utc(time.October, 20, 16, 0),
			wantEnd:   utc(time.October, 20, 16, 30),
		},
		{
			name:      "feb 29 waits for a leap year",
			slot:      RawSlot{Date: "Feb 29", StartTime: "9am"},
			wantStart: time.Date(2028, 2, 29, 9, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2028, 2, 29, 9, 30, 0, 0, time.UTC),
		},
		{
			name:      "tomorrow afternoon",
			slot:      RawSlot{Date: "tomorrow afternoon"},
			wantStart: utc(time.October, 21, 14, 0),
			wantEnd:   utc(time.October, 21, 14, 30),
		},
		{
			name:      "weekday with duration",
			slot:      RawSlot{Date: "Friday", StartTime: "9:30am", DurationMinutes: 45},
			wantStart: utc(time.October, 23, 9, 30),
			wantEnd:   utc(time.October, 23, 10, 15),
		},
		{
			name:      "today's weekday counts",
			slot:      RawSlot{Date: "tuesday", StartTime: "17:00"},
			wantStart: utc(time.October, 20, 17, 0),
			wantEnd:   utc(time.October, 20, 17, 30),
		},
		{
			name:      "next weekday is in the following week",
			slot:      RawSlot{Date: "next friday", StartTime: "11:00"},
			wantStart: utc(time.October, 30, 11, 0),
			wantEnd:   utc(time.October, 30, 11, 30),
		},
		{
			name:      "weekday prefix with month day",
			slot:      RawSlot{Date: "Monday, Oct 26", StartTime: "noon"},
			wantStart: utc(time.October, 26, 12, 0),
			wantEnd:   utc(time.October, 26, 12, 30),
		},
		{
			name:      "time without date already passed means tomorrow",
			slot:      RawSlot{StartTime: "9:00"},
			wantStart: utc(time.October, 21, 9, 0),
			wantEnd:   utc(time.October, 21, 9, 30),
		},
		{
			name:      "time without date still ahead means today",
			slot:      RawSlot{StartTime: "15:00", EndTime: "16:00"},
			wantStart: utc(time.October, 20, 15, 0),
			wantEnd:   utc(time.October, 20, 16, 0),
		},
		{
			name:      "end time before start rolls over midnight",
			slot:      RawSlot{Date: "2026-10-22", StartTime: "11pm", EndTime: "1am"},
			wantStart: utc(time.October, 22, 23, 0),
			wantEnd:   utc(time.October, 23, 1, 0),
		},
		{
			name:      "slot in a foreign zone",
			slot:      RawSlot{Date: "2026-10-22", StartTime: "10:00", Timezone: "America/New_York"},
			wantStart: utc(time.October, 22, 14, 0),
			wantEnd:   utc(time.October, 22, 14, 30),
		},
		{
			name:      "free text start",
			slot:      RawSlot{Start: "tomorrow at 3pm", End: "4pm"},
			wantStart: utc(time.October, 21, 15, 0),
			wantEnd:   utc(time.October, 21, 16, 0),
		},
		{
			name:      "us date with year",
			slot:      RawSlot{Date: "10/27/2026", StartTime: "08:15"},
			wantStart: utc(time.October, 27, 8, 15),
			wantEnd:   utc(time.October, 27, 8, 45),
		},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(Payload{IsSuggestion: boolPtr(true), TimeSlots: []RawSlot{tt.slot}})
			require.Empty(t, res.Failures)
			require.Len(t, res.Candidates, 1)

			got := res.Candidates[0].Interval
			assert.True(t, tt.wantStart.Equal(got.Start), "start: got %s, want %s", got.Start, tt.wantStart)
			assert.True(t, tt.wantEnd.Equal(got.End), "end: got %s, want %s", got.End, tt.wantEnd)
			assert.Equal(t, time.UTC, got.Start.Location())
		})
	}
}

func TestNormalize_FailuresDoNotStopSiblings(t *testing.T) {
	res := newTestNormalizer().Normalize(Payload{
		IsSuggestion: boolPtr(true),
		TimeSlots: []RawSlot{
			{Date: "2026-10-22", StartTime: "14:00"},
			{Context: "sometime soon"},
			{Date: "2026-10-23", StartTime: "9:00"},
		},
	})

	require.Len(t, res.Candidates, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.True(t, errors.Is(res.Failures[0], ErrUnresolvableTimeSlot))
}

func TestNormalize_InvalidTimestamp(t *testing.T) {
	res := newTestNormalizer().Normalize(Payload{
		TimeSlots: []RawSlot{
			{Start: "2026-13-45T10:00:00Z"},
			{Start: "2026-10-22T14:00:00Z", End: "2026-10-22T25:00:00Z"},
			{Start: "2026-10-22 2:30pm"},
		},
	})

	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.True(t, errors.Is(f, ErrUnresolvableTimeSlot))
		assert.True(t, errors.Is(f, models.ErrInvalidTimestamp), f.Error())
		var tsErr *models.InvalidTimestampError
		assert.True(t, errors.As(f, &tsErr))
	}
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.Equal(t, 1, res.Failures[1].Index)

	// Free text that only starts with a date is still read as text.
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, utc(time.October, 22, 14, 30), res.Candidates[0].Interval.Start)
}

func TestNormalize_Unresolvable(t *testing.T) {
	tests := []struct {
		name string
		slot RawSlot
	}{
		{"date without time", RawSlot{Date: "2026-10-22"}},
		{"gibberish date", RawSlot{Date: "the second blue moon", StartTime: "10:00"}},
		{"bad time", RawSlot{Date: "2026-10-22", StartTime: "25:00"}},
		{"unknown zone", RawSlot{Date: "2026-10-22", StartTime: "10:00", Timezone: "Mars/Olympus"}},
		{"end before start", RawSlot{Start: "2026-10-22 14:00", End: "2026-10-22 13:00"}},
		{"negative duration", RawSlot{Start: "2026-10-22 14:00", DurationMinutes: -15}},
		{"13pm", RawSlot{Date: "2026-10-22", StartTime: "13pm"}},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(Payload{TimeSlots: []RawSlot{tt.slot}})
			assert.Empty(t, res.Candidates)
			require.Len(t, res.Failures, 1)
			assert.True(t, errors.Is(res.Failures[0], ErrUnresolvableTimeSlot))
			assert.NotEmpty(t, res.Failures[0].Reason)
		})
	}
}

func TestNormalize_Classification(t *testing.T) {
	n := newTestNormalizer()

	res := n.Normalize(Payload{Analysis: "  Asked when I am free.  "})
	assert.True(t, res.IsSuggestion)
	assert.True(t, res.ClassificationGuessed)
	assert.Equal(t, "Asked when I am free.", res.Summary)
	assert.NotNil(t, res.Candidates)
	assert.NotNil(t, res.Failures)

	res = n.Normalize(Payload{IsSuggestion: boolPtr(false)})
	assert.False(t, res.IsSuggestion)
	assert.False(t, res.ClassificationGuessed)
}

func TestNormalize_Priority(t *testing.T) {
	high, low := models.PriorityHigh, models.PriorityLow
	tests := []struct {
		slot RawSlot
		want *models.Priority
	}{
		{RawSlot{Context: "my preferred time"}, &high},
		{RawSlot{Context: "Ideal for me"}, &high},
		{RawSlot{Context: "backup option"}, &low},
		{RawSlot{Context: "or as an alternative"}, &low},
		{RawSlot{Context: "backup", Priority: "high"}, &high},
		{RawSlot{Context: "works too"}, nil},
	}

	n := newTestNormalizer()
	for _, tt := range tests {
		tt.slot.Start = "2026-10-22 14:00"
		res := n.Normalize(Payload{TimeSlots: []RawSlot{tt.slot}})
		require.Len(t, res.Candidates, 1)
		assert.Equal(t, tt.want, res.Candidates[0].Priority, tt.slot.Context)
		assert.Equal(t, tt.slot.Context, res.Candidates[0].Context)
	}
}

func TestNormalize_UserZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	n := New(nil, berlin, time.Hour).WithClock(func() time.Time { return fixedNow })

	res := n.Normalize(Payload{TimeSlots: []RawSlot{{Date: "2026-10-22", StartTime: "10:00"}}})
	require.Len(t, res.Candidates, 1)
	got := res.Candidates[0].Interval
	assert.Equal(t, berlin, got.Start.Location())
	assert.Equal(t, "10:00", got.Start.Format("15:04"))
	assert.Equal(t, time.Hour, got.Duration())
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want clock
	}{
		{"15:04", clock{hour: 15, minute: 4}},
		{"15:04:05", clock{hour: 15, minute: 4, second: 5}},
		{"3pm", clock{hour: 15}},
		{"3:30 PM", clock{hour: 15, minute: 30}},
		{"3 p.m.", clock{hour: 15}},
		{"12am", clock{hour: 0}},
		{"12pm", clock{hour: 12}},
		{"9.30am", clock{hour: 9, minute: 30}},
		{"morning", clock{hour: 9}},
		{"evening", clock{hour: 18}},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "24:00", "0am", "10:75", "half past"} {
		_, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}
