package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slotcheck/internal/availability"
	"slotcheck/internal/models"
	"slotcheck/internal/normalizer"
	"slotcheck/internal/report"
	"slotcheck/internal/source"
)

// ErrInvalidRequest is returned when a payload gives nothing to check.
var ErrInvalidRequest = errors.New("invalid availability request")

// DefaultAdapterTimeout bounds each calendar source when none is configured.
const DefaultAdapterTimeout = 5 * time.Second

// Checker orchestrates one availability check: normalize the payload, fetch
// busy time from every calendar source, evaluate and assemble the report.
type Checker struct {
	logger     *slog.Logger
	adapters   []source.Adapter
	engine     *availability.Engine
	normalizer *normalizer.Normalizer
	timeout    time.Duration
	now        func() time.Time
}

// NewChecker creates a new Checker.
func NewChecker(logger *slog.Logger, adapters []source.Adapter, opts availability.Options, defaultDuration, timeout time.Duration) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	engine := availability.NewEngine(logger, opts)
	return &Checker{
		logger:     logger,
		adapters:   adapters,
		engine:     engine,
		normalizer: normalizer.New(logger, engine.Options().Location, defaultDuration),
		timeout:    timeout,
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	c.normalizer.WithClock(now)
	return c
}

// Check answers one analysed conversation. Source failures and unresolvable
// slots end up as report warnings; only a payload with nothing to check is an
// error.
func (c *Checker) Check(ctx context.Context, p *normalizer.Payload) (*report.Report, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no payload", ErrInvalidRequest)
	}
	if p.IsSuggestion == nil && len(p.TimeSlots) == 0 {
		return nil, fmt.Errorf("%w: payload has neither a classification nor time slots", ErrInvalidRequest)
	}

	c.logger.Info("Starting availability check.", "slots", len(p.TimeSlots), "sources", len(c.adapters))
	now := c.now()

	norm := c.normalizer.Normalize(*p)
	if norm.ClassificationGuessed {
		c.logger.Warn("Payload has no classification, treating it as a suggestion.")
	}
	for _, f := range norm.Failures {
		c.logger.Warn("Could not resolve time slot", "index", f.Index, "reason", f.Reason)
	}

	req := availability.Request{
		Candidates:   norm.Candidates,
		IsSuggestion: norm.IsSuggestion,
		Now:          now,
	}
	req.Window = c.engine.Window(req)
	fetch := fetchRange(req.Window, norm.Candidates)

	col := source.Collect(ctx, c.logger, c.adapters, fetch.Start, fetch.End, c.timeout)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("availability check cancelled: %w", err)
	}
	req.Events = col.Events
	req.CalendarDataMissing = col.AllUnavailable()
	if req.CalendarDataMissing {
		c.logger.Warn("No calendar source answered; treating all working hours as free.")
	}

	res := c.engine.Evaluate(req)

	r := report.Assemble(report.Input{
		GeneratedAt:         now,
		Location:            c.engine.Options().Location,
		Summary:             norm.Summary,
		IsSuggestion:        norm.IsSuggestion,
		Verdicts:            res.Verdicts,
		Alternatives:        res.Alternatives,
		SourceWarnings:      col.Warnings,
		EngineWarnings:      res.Warnings,
		Failures:            norm.Failures,
		CalendarDataMissing: req.CalendarDataMissing,
	})
	c.logger.Info("Availability check finished.", "verdicts", len(r.Slots), "alternatives", len(r.Alternatives), "warnings", len(r.Warnings))
	return r, nil
}

// Calendars lists the calendars of every configured source.
func (c *Checker) Calendars(ctx context.Context) source.CalendarListing {
	return source.ListAll(ctx, c.logger, c.adapters, c.timeout)
}

// fetchRange covers the search window and every candidate, so that past or
// out-of-window candidates still get real verdicts.
func fetchRange(window models.Interval, candidates []models.CandidateSlot) models.Interval {
	span, ok := availability.Span(candidates)
	if !ok {
		return window
	}
	if span.Start.Before(window.Start) {
		window.Start = span.Start
	}
	if span.End.After(window.End) {
		window.End = span.End
	}
	return window
}
