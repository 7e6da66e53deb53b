// Package source defines the contract every calendar backend satisfies and
// fans busy-event fetches out across all configured backends.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotcheck/internal/models"
)

// Adapter supplies busy events and calendar listings for one provider account.
// Implementations live in the provider packages (google, microsoft, icloud,
// thunderbird, ics) and are selected at composition time.
type Adapter interface {
	// Provider identifies the backend, used to tag warnings.
	Provider() models.Provider
	// FetchBusyEvents returns the events occupying time in [start, end).
	// This should block until done or ctx is cancelled.
	FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error)
	// ListCalendars returns the calendars this adapter can read.
	ListCalendars(ctx context.Context) ([]models.CalendarInfo, error)
}

// ErrUnavailable is matched by every UnavailableError.
var ErrUnavailable = errors.New("calendar source unavailable")

// UnavailableError reports that a calendar source could not supply data:
// expired credentials, a network failure, a missing local file or a timeout.
type UnavailableError struct {
	Provider models.Provider
	Reason   string
	Err      error
}

// Unavailable wraps err as an UnavailableError for provider.
func Unavailable(provider models.Provider, reason string, err error) *UnavailableError {
	return &UnavailableError{Provider: provider, Reason: reason, Err: err}
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %s", e.Provider, e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnavailable) work.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Warning is a non-fatal problem tagged with the provider it came from.
type Warning struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Provider, w.Message)
}

// asUnavailable converts any adapter error into an UnavailableError.
func asUnavailable(provider models.Provider, err error) *UnavailableError {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Unavailable(provider, "timed out", err)
	case errors.Is(err, context.Canceled):
		return Unavailable(provider, "cancelled", err)
	default:
		return Unavailable(provider, "fetch failed", err)
	}
}

func warningFor(ue *UnavailableError) Warning {
	msg := ue.Reason
	if ue.Err != nil {
		msg = fmt.Sprintf("%s: %v", ue.Reason, ue.Err)
	}
	return Warning{Provider: ue.Provider.String(), Message: msg}
}

// FailedAdapter stands in for a configured source that could not be set up,
// such as a missing token or database file. Every call returns its error, so
// the source still shows up as a warning instead of silently reading as free.
type FailedAdapter struct {
	err *UnavailableError
}

// Failed returns an adapter for provider that always reports reason.
func Failed(provider models.Provider, reason string, err error) *FailedAdapter {
	return &FailedAdapter{err: Unavailable(provider, reason, err)}
}

// Provider implements Adapter.
func (f *FailedAdapter) Provider() models.Provider {
	return f.err.Provider
}

// FetchBusyEvents implements Adapter.
func (f *FailedAdapter) FetchBusyEvents(context.Context, time.Time, time.Time) ([]models.BusyEvent, error) {
	return nil, f.err
}

// ListCalendars implements Adapter.
func (f *FailedAdapter) ListCalendars(context.Context) ([]models.CalendarInfo, error) {
	return nil, f.err
}
