package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"slotcheck/internal/models"
)

// Collection is the merged outcome of fetching from every adapter.
type Collection struct {
	Events    []models.BusyEvent
	Warnings  []Warning
	Attempted int
	Failed    int
}

// AllUnavailable reports that no adapter supplied data. It is also true when
// no adapter was configured at all.
func (c Collection) AllUnavailable() bool {
	return c.Failed == c.Attempted
}

type fetchResult struct {
	events []models.BusyEvent
	err    *UnavailableError
}

// Collect fetches busy events in [start, end) from all adapters concurrently.
//
// Each adapter gets at most timeout (no limit when timeout <= 0); a call that
// ignores its context is abandoned once the limit passes. Collect waits until
// every adapter has either answered or been abandoned before merging. A failed
// adapter contributes no events and one warning.
func Collect(ctx context.Context, logger *slog.Logger, adapters []Adapter, start, end time.Time, timeout time.Duration) Collection {
	logger = orDefault(logger)
	results := make([]fetchResult, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			provider := adapter.Provider()
			began := time.Now()
			events, err := callWithTimeout(ctx, timeout, func(ctx context.Context) ([]models.BusyEvent, error) {
				return adapter.FetchBusyEvents(ctx, start, end)
			})
			if err != nil {
				ue := asUnavailable(provider, err)
				logger.Warn("Calendar source unavailable", "provider", provider, "reason", ue.Reason, "error", ue.Err)
				results[i] = fetchResult{err: ue}
				return nil
			}
			logger.Debug("Fetched busy events", "provider", provider, "count", len(events), "elapsed", time.Since(began))
			results[i] = fetchResult{events: events}
			return nil
		})
	}
	// Goroutines never return an error; failures are recorded per adapter.
	_ = g.Wait()

	col := Collection{Attempted: len(adapters), Events: []models.BusyEvent{}}
	for _, r := range results {
		if r.err != nil {
			col.Failed++
			col.Warnings = append(col.Warnings, warningFor(r.err))
			continue
		}
		for _, ev := range r.events {
			if !ev.Interval.Start.Before(ev.Interval.End) {
				continue
			}
			col.Events = append(col.Events, ev)
		}
	}
	sort.SliceStable(col.Events, func(i, j int) bool {
		return col.Events[i].Interval.Compare(col.Events[j].Interval) < 0
	})

	logger.Info("Collected busy events", "sources", col.Attempted, "failed", col.Failed, "events", len(col.Events))
	return col
}

// CalendarListing is the merged outcome of ListAll.
type CalendarListing struct {
	Calendars []models.CalendarInfo
	Warnings  []Warning
}

// ListAll lists calendars from every adapter concurrently, with the same
// timeout and failure handling as Collect.
func ListAll(ctx context.Context, logger *slog.Logger, adapters []Adapter, timeout time.Duration) CalendarListing {
	logger = orDefault(logger)
	calendars := make([][]models.CalendarInfo, len(adapters))
	failures := make([]*UnavailableError, len(adapters))

	var g errgroup.Group
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			cals, err := callWithTimeout(ctx, timeout, adapter.ListCalendars)
			if err != nil {
				failures[i] = asUnavailable(adapter.Provider(), err)
				logger.Warn("Could not list calendars", "provider", adapter.Provider(), "error", err)
				return nil
			}
			calendars[i] = cals
			return nil
		})
	}
	_ = g.Wait()

	var listing CalendarListing
	for i := range adapters {
		if failures[i] != nil {
			listing.Warnings = append(listing.Warnings, warningFor(failures[i]))
			continue
		}
		listing.Calendars = append(listing.Calendars, calendars[i]...)
	}
	return listing
}

// callWithTimeout runs fn in its own goroutine and stops waiting for it when
// ctx is done or timeout elapses, whichever comes first.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{value: zero, err: fmt.Errorf("adapter panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
