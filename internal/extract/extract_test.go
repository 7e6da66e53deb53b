package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotcheck/internal/normalizer"
)

func TestJSON_Extract(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "bare object",
			input: `{"is_suggestion": true, "time_slots": [{"start": "2026-10-22 14:00", "end": "2026-10-22 15:00", "context": "preferred"}], "analysis": "Two options offered."}`,
		},
		{
			name: "fenced block with prose",
			input: "Here is what I found:\n```json\n" +
				`{"is_suggestion": true, "time_slots": [{"start": "2026-10-22 14:00", "end": "2026-10-22 15:00", "context": "preferred"}], "analysis": "Two options offered."}` +
				"\n```\nLet me know if you need more.",
		},
		{
			name: "plain fence",
			input: "```\n" +
				`{"is_suggestion": true, "time_slots": [{"start": "2026-10-22 14:00", "end": "2026-10-22 15:00", "context": "preferred"}], "analysis": "Two options offered."}` +
				"\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := JSON{}.Extract(context.Background(), []byte(tt.input))
			require.NoError(t, err)
			require.NotNil(t, p.IsSuggestion)
			assert.True(t, *p.IsSuggestion)
			require.Len(t, p.TimeSlots, 1)
			assert.Equal(t, "2026-10-22 14:00", p.TimeSlots[0].Start)
			assert.Equal(t, "preferred", p.TimeSlots[0].Context)
			assert.Equal(t, "Two options offered.", p.Analysis)
		})
	}
}

func TestJSON_MissingClassification(t *testing.T) {
	p, err := JSON{}.Extract(context.Background(), []byte(`{"time_slots": []}`))
	require.NoError(t, err)
	assert.Nil(t, p.IsSuggestion)
}

func TestJSON_Errors(t *testing.T) {
	_, err := JSON{}.Extract(context.Background(), []byte("no structure here"))
	assert.True(t, errors.Is(err, ErrNoPayload))

	_, err = JSON{}.Extract(context.Background(), []byte(`{"time_slots": "oops"}`))
	assert.Error(t, err)
}

func TestDetectSuggestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I'm available Tuesday 2-3pm or Wednesday morning", true},
		{"Here are some times that work: 10am-11am", true},
		{"Are you available next week?", false},
		{"What time works for you on Friday?", false},
		{"Let me know your availability", false},
		{"Lunch on Oct 22?", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectSuggestion(tt.text), tt.text)
	}
}

func TestPattern_Extract(t *testing.T) {
	text := "Hi! I can do Oct 22 from 9am-10am (preferred) or 2-3pm.\n" +
		"Friday also works: 13:00-14:30\n" +
		"Otherwise maybe at 4:30pm"

	p, err := Pattern{}.Extract(context.Background(), []byte(text))
	require.NoError(t, err)
	require.NotNil(t, p.IsSuggestion)
	assert.True(t, *p.IsSuggestion)

	want := []normalizer.RawSlot{
		{Date: "Oct 22", StartTime: "9am", EndTime: "10am", Context: "preferred"},
		{Date: "Oct 22", StartTime: "2pm", EndTime: "3pm", Context: "preferred"},
		{Date: "Friday", StartTime: "13:00", EndTime: "14:30", Context: "13:00-14:30"},
		{Date: "Friday", StartTime: "4:30pm", Context: "at 4:30pm"},
	}
	assert.Equal(t, want, p.TimeSlots)
}

func TestPattern_SharedSuffix(t *testing.T) {
	p, err := Pattern{}.Extract(context.Background(), []byte("how about 11-1pm or 9:30 to 10:15 am"))
	require.NoError(t, err)
	require.Len(t, p.TimeSlots, 2)
	assert.Equal(t, "11am", p.TimeSlots[0].StartTime)
	assert.Equal(t, "1pm", p.TimeSlots[0].EndTime)
	assert.Equal(t, "9:30am", p.TimeSlots[1].StartTime)
	assert.Equal(t, "10:15am", p.TimeSlots[1].EndTime)
}

func TestPattern_RequestWithoutSlots(t *testing.T) {
	p, err := Pattern{}.Extract(context.Background(), []byte("When are you free next week?"))
	require.NoError(t, err)
	assert.False(t, *p.IsSuggestion)
	assert.Empty(t, p.TimeSlots)
	assert.Equal(t, "Text asks for availability.", p.Analysis)
}

func TestPattern_ResolvesThroughNormalizer(t *testing.T) {
	p, err := Pattern{}.Extract(context.Background(), []byte("I'm available 2026-10-22 3pm-4pm"))
	require.NoError(t, err)

	res := normalizer.New(nil, nil, 0).Normalize(*p)
	require.Empty(t, res.Failures)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "15:00", res.Candidates[0].Interval.Start.Format("15:04"))
	assert.Equal(t, "16:00", res.Candidates[0].Interval.End.Format("15:04"))
}

type stubExtractor struct {
	name    string
	payload *normalizer.Payload
	err     error
	calls   int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, []byte) (*normalizer.Payload, error) {
	s.calls++
	return s.payload, s.err
}

func TestChain(t *testing.T) {
	withSlots := &normalizer.Payload{TimeSlots: []normalizer.RawSlot{{Start: "2026-10-22 14:00"}}}
	empty := &normalizer.Payload{Analysis: "nothing found"}

	t.Run("first payload with slots wins", func(t *testing.T) {
		first := &stubExtractor{name: "a", payload: empty}
		second := &stubExtractor{name: "b", payload: withSlots}
		third := &stubExtractor{name: "c", payload: withSlots}

		p, err := Chain{Extractors: []Extractor{first, second, third}}.Extract(context.Background(), nil)
		require.NoError(t, err)
		assert.Same(t, withSlots, p)
		assert.Equal(t, 0, third.calls)
	})

	t.Run("falls back to an empty payload", func(t *testing.T) {
		failing := &stubExtractor{name: "a", err: errors.New("bad json")}
		blank := &stubExtractor{name: "b", payload: empty}

		p, err := Chain{Extractors: []Extractor{failing, blank}}.Extract(context.Background(), nil)
		require.NoError(t, err)
		assert.Same(t, empty, p)
	})

	t.Run("returns the last error", func(t *testing.T) {
		boom := errors.New("boom")
		p, err := Chain{Extractors: []Extractor{
			&stubExtractor{name: "a", err: ErrNoPayload},
			&stubExtractor{name: "b", err: boom},
		}}.Extract(context.Background(), nil)
		assert.Nil(t, p)
		assert.Same(t, boom, err)
	})
}

func TestDefault_PrefersJSON(t *testing.T) {
	input := `{"is_suggestion": false, "time_slots": [{"date": "tomorrow", "start_time": "10:00"}]}`
	p, err := Default(nil).Extract(context.Background(), []byte(input))
	require.NoError(t, err)
	require.Len(t, p.TimeSlots, 1)
	assert.Equal(t, "tomorrow", p.TimeSlots[0].Date)
	assert.False(t, *p.IsSuggestion)
}
