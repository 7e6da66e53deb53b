package models

import (
	"fmt"
	"strings"
)

// Priority is the relative importance the other party attached to a proposed slot.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a priority name (case-insensitive) to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// CandidateSlot is a time range proposed by the other party.
type CandidateSlot struct {
	Interval Interval  `json:"interval"`
	Context  string    `json:"context,omitempty"`  // Free text next to the mention, e.g. "preferred"
	Priority *Priority `json:"priority,omitempty"` // Nil when the analysis gave no hint
}

// SlotVerdict is the availability outcome for one candidate.
// Available is true iff Conflicts is empty.
type SlotVerdict struct {
	Candidate CandidateSlot `json:"candidate"`
	Available bool          `json:"available"`
	Conflicts []BusyEvent   `json:"conflicts"`
}

// AlternativeSlot is a free interval found by search. Rank starts at 1.
type AlternativeSlot struct {
	Interval Interval `json:"interval"`
	Rank     int      `json:"rank"`
}

// Classification tells whether the analysed text proposes times (suggestion) or
// asks for the user's availability (request).
type Classification struct {
	IsSuggestion bool `json:"is_suggestion"`
}
