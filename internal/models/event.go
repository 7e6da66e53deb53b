package models

import (
	"fmt"
	"strings"
)

// Provider identifies the calendar backend an event or calendar came from.
type Provider string

const (
	ProviderGoogle      Provider = "google"
	ProviderMicrosoft   Provider = "microsoft"
	ProviderApple       Provider = "apple"
	ProviderThunderbird Provider = "thunderbird"
	ProviderOther       Provider = "other"
)

// ParseProvider maps a provider name (case-insensitive) to a Provider.
// Unknown names are an error; an empty name is ProviderOther.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderMicrosoft, ProviderApple, ProviderThunderbird, ProviderOther:
		return p, nil
	case "":
		return ProviderOther, nil
	default:
		return "", fmt.Errorf("unknown calendar provider %q", s)
	}
}

func (p Provider) String() string {
	return string(p)
}

// BusyEvent is an existing calendar event that occupies the user's time.
// This is an internal representation, independent of any specific calendar provider.
type BusyEvent struct {
	Interval      Interval `json:"interval"`
	Title         string   `json:"title"`          // Summary or subject of the event
	Provider      Provider `json:"provider"`       // Backend that supplied the event
	CalendarID    string   `json:"calendar_id"`    // Provider-specific calendar identifier
	CalendarLabel string   `json:"calendar_label"` // Human-friendly name of the owning calendar
	AllDay        bool     `json:"all_day"`        // Date-only event spanning whole days
}

// NewBusyEvent builds a timed BusyEvent from an already validated interval.
func NewBusyEvent(provider Provider, calendarID, calendarLabel, title string, interval Interval) BusyEvent {
	return BusyEvent{
		Interval:      interval,
		Title:         title,
		Provider:      provider,
		CalendarID:    calendarID,
		CalendarLabel: calendarLabel,
	}
}

// CalendarInfo describes a calendar a source can read from.
type CalendarInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Provider  Provider `json:"provider"`
	IsPrimary bool     `json:"is_primary"`
}
