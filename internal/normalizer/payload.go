// Package normalizer turns the loosely structured output of a time-slot
// extractor into concrete candidate slots in the user's zone.
package normalizer

import (
	"errors"
	"fmt"

	"slotcheck/internal/models"
)

// Payload is the structured analysis of a screenshot or pasted conversation.
type Payload struct {
	// IsSuggestion is nil when the extractor could not classify the text.
	IsSuggestion *bool    `json:"is_suggestion,omitempty"`
	TimeSlots    []RawSlot `json:"time_slots"`
	Analysis     string    `json:"analysis,omitempty"`
}

// RawSlot is one time mention as the extractor reported it. Any subset of the
// fields may be present; Start/End take precedence over the split fields.
type RawSlot struct {
	Start           string `json:"start,omitempty"`      // Full timestamp, with or without offset
	End             string `json:"end,omitempty"`        // Full timestamp
	Date            string `json:"date,omitempty"`       // "2026-10-20", "Oct 20", "tomorrow", "next friday"
	StartTime       string `json:"start_time,omitempty"` // "15:00", "3pm", "afternoon"
	EndTime         string `json:"end_time,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Timezone        string `json:"timezone,omitempty"` // IANA name the times were written in
	Context         string `json:"context,omitempty"`
	Priority        string `json:"priority,omitempty"`
}

// ErrUnresolvableTimeSlot is matched by every UnresolvableError.
var ErrUnresolvableTimeSlot = errors.New("unresolvable time slot")

// UnresolvableError reports a slot that could not be turned into an interval.
// Index is the slot's position in Payload.TimeSlots.
type UnresolvableError struct {
	Index  int
	Reason string
	Err    error
}

func (e *UnresolvableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("time slot %d: %s: %v", e.Index+1, e.Reason, e.Err)
	}
	return fmt.Sprintf("time slot %d: %s", e.Index+1, e.Reason)
}

func (e *UnresolvableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnresolvableTimeSlot) work.
func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvableTimeSlot
}

// Result is the normalized payload.
type Result struct {
	Candidates   []models.CandidateSlot
	Failures     []*UnresolvableError
	IsSuggestion bool
	// ClassificationGuessed is set when the payload carried no classification
	// and IsSuggestion fell back to true.
	ClassificationGuessed bool
	Summary               string
}
