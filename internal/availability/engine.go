package availability

import (
	"log/slog"
	"time"

	"slotcheck/internal/models"
)

// NoCalendarDataWarning is reported when every calendar source failed and the
// whole search window was treated as free.
const NoCalendarDataWarning = "No calendar data could be retrieved; every working hour in the search window is shown as free."

// Request is one evaluation: the classified candidates and the busy events
// gathered for them.
type Request struct {
	Candidates   []models.CandidateSlot
	IsSuggestion bool
	Events       []models.BusyEvent
	// CalendarDataMissing is set when no source answered. Events is then empty
	// and the result carries NoCalendarDataWarning.
	CalendarDataMissing bool
	// Window overrides the search window. Zero means SearchWindow(Candidates, Now).
	Window models.Interval
	Now    time.Time
}

// Result is what the engine decided.
type Result struct {
	Verdicts     []models.SlotVerdict
	Alternatives []models.AlternativeSlot
	Window       models.Interval
	Warnings     []string
}

// Engine evaluates requests under fixed Options.
type Engine struct {
	logger *slog.Logger
	opts   Options
}

// NewEngine creates an Engine. A nil logger means slog.Default.
func NewEngine(logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Window returns the search window Evaluate would use for req.
func (e *Engine) Window(req Request) models.Interval {
	if !req.Window.IsZero() {
		return req.Window
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	return SearchWindow(req.Candidates, now, e.opts)
}

// Evaluate runs suggestion verdicts or a free-slot search depending on the
// classification.
//
// In suggestion mode every candidate gets a verdict. When none is free,
// alternatives at least as long as the shortest candidate are searched for.
// In request mode only alternatives are produced.
func (e *Engine) Evaluate(req Request) Result {
	res := Result{
		Verdicts:     []models.SlotVerdict{},
		Alternatives: []models.AlternativeSlot{},
		Window:       e.Window(req),
		Warnings:     []string{},
	}
	if req.CalendarDataMissing {
		res.Warnings = append(res.Warnings, NoCalendarDataWarning)
	}

	if !req.IsSuggestion {
		res.Alternatives = FreeSlots(res.Window, req.Events, e.opts)
		e.logger.Debug("Searched free slots", "window", res.Window, "found", len(res.Alternatives))
		return res
	}

	res.Verdicts = Verdicts(req.Candidates, req.Events, e.opts)
	for _, v := range res.Verdicts {
		if v.Available {
			e.logger.Debug("Found an available candidate", "slot", v.Candidate.Interval)
			return res
		}
	}

	opts := e.opts
	if shortest := shortestCandidate(req.Candidates); shortest > opts.MinSlotDuration {
		opts.MinSlotDuration = shortest
	}
	res.Alternatives = FreeSlots(res.Window, req.Events, opts)
	e.logger.Debug("No candidate free, searched alternatives", "window", res.Window, "min", opts.MinSlotDuration, "found", len(res.Alternatives))
	return res
}

func shortestCandidate(candidates []models.CandidateSlot) time.Duration {
	var shortest time.Duration
	for i, c := range candidates {
		if d := c.Interval.Duration(); i == 0 || d < shortest {
			shortest = d
		}
	}
	return shortest
}
