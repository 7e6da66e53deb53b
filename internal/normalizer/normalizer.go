package normalizer

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"slotcheck/internal/models"
)

// DefaultDuration is used when a slot gives neither an end nor a duration.
const DefaultDuration = 30 * time.Minute

// isoTimestamp matches values written as a full date-time. When one of them
// fails to parse it is an invalid timestamp, not free text.
var isoTimestamp = regexp.MustCompile(`(?i)^\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(z|[+-]\d{2}:?\d{2})?$`)

// parseTimestamp reads s as an ISO date-time. ok is false when s is not
// written as one and should be read as free text instead.
func parseTimestamp(s string, loc *time.Location) (t time.Time, ok bool, err error) {
	t, err = models.Normalize(s, loc, loc)
	if err == nil {
		return t, true, nil
	}
	if isoTimestamp.MatchString(s) {
		return time.Time{}, true, unresolvable("invalid timestamp", err)
	}
	return time.Time{}, false, nil
}

// Normalizer resolves raw slots relative to the current time in the user's zone.
type Normalizer struct {
	logger          *slog.Logger
	loc             *time.Location
	defaultDuration time.Duration
	now             func() time.Time
}

// New creates a Normalizer for a user in loc. A zero defaultDuration means
// DefaultDuration.
func New(logger *slog.Logger, loc *time.Location, defaultDuration time.Duration) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Normalizer{logger: logger, loc: loc, defaultDuration: defaultDuration, now: time.Now}
}

// WithClock replaces the time source, for tests and replays.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize resolves every slot of p. A slot that cannot be resolved is
// reported in Result.Failures and does not stop the others.
func (n *Normalizer) Normalize(p Payload) Result {
	res := Result{
		Candidates:   []models.CandidateSlot{},
		Failures:     []*UnresolvableError{},
		IsSuggestion: true,
		Summary:      strings.TrimSpace(p.Analysis),
	}
	if p.IsSuggestion != nil {
		res.IsSuggestion = *p.IsSuggestion
	} else {
		res.ClassificationGuessed = true
	}

	now := n.now()
	for i, raw := range p.TimeSlots {
		slot, err := n.resolve(raw, now)
		if err != nil {
			var ue *UnresolvableError
			if !errors.As(err, &ue) {
				ue = &UnresolvableError{Reason: "could not resolve", Err: err}
			}
			ue.Index = i
			n.logger.Debug("Skipping unresolvable time slot", "index", i, "error", ue)
			res.Failures = append(res.Failures, ue)
			continue
		}
		res.Candidates = append(res.Candidates, slot)
	}
	return res
}

func unresolvable(reason string, err error) *UnresolvableError {
	return &UnresolvableError{Reason: reason, Err: err}
}

func (n *Normalizer) resolve(raw RawSlot, now time.Time) (models.CandidateSlot, error) {
	slotLoc := n.loc
	if tz := strings.TrimSpace(raw.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return models.CandidateSlot{}, unresolvable(fmt.Sprintf("unknown timezone %q", tz), nil)
		}
		slotLoc = loc
	}
	localNow := now.In(slotLoc)

	start, err := n.resolveStart(raw, localNow, slotLoc)
	if err != nil {
		return models.CandidateSlot{}, err
	}
	end, err := n.resolveEnd(raw, start, slotLoc)
	if err != nil {
		return models.CandidateSlot{}, err
	}

	interval, err := models.NewInterval(start.In(n.loc), end.In(n.loc))
	if err != nil {
		return models.CandidateSlot{}, unresolvable("end is not after start", err)
	}
	return models.CandidateSlot{
		Interval: interval,
		Context:  strings.TrimSpace(raw.Context),
		Priority: priorityOf(raw),
	}, nil
}

func (n *Normalizer) resolveStart(raw RawSlot, now time.Time, slotLoc *time.Location) (time.Time, error) {
	if s := strings.TrimSpace(raw.Start); s != "" {
		if t, ok, err := parseTimestamp(s, slotLoc); ok {
			return t, err
		}
		date, clockText, ok := splitDateTime(s)
		if !ok {
			if _, err := parseClock(s); err == nil {
				date, clockText = "", s
			} else {
				date, clockText = s, ""
			}
		}
		return combine(date, clockText, now)
	}
	return combine(raw.Date, raw.StartTime, now)
}

// combine joins a date expression and a time of day. Either may be empty,
// but not both; a date needs a time or a period word to be usable.
func combine(dateText, clockText string, now time.Time) (time.Time, error) {
	dateText, period := splitPeriod(cleanText(dateText))
	clockText = strings.TrimSpace(clockText)

	if dateText == "" && clockText == "" && period == nil {
		return time.Time{}, unresolvable("no date or time given", nil)
	}

	var c clock
	switch {
	case clockText != "":
		parsed, err := parseClock(clockText)
		if err != nil {
			return time.Time{}, unresolvable("unrecognised time", err)
		}
		c = parsed
	case period != nil:
		c = *period
	default:
		return time.Time{}, unresolvable(fmt.Sprintf("date %q has no time", dateText), nil)
	}

	if dateText == "" {
		t := c.on(now)
		if t.Before(now) {
			t = c.on(now.AddDate(0, 0, 1))
		}
		return t, nil
	}

	day, err := parseDate(dateText, now)
	if err != nil {
		return time.Time{}, unresolvable("unrecognised date", err)
	}
	return c.on(day), nil
}

func (n *Normalizer) resolveEnd(raw RawSlot, start time.Time, slotLoc *time.Location) (time.Time, error) {
	if s := strings.TrimSpace(raw.End); s != "" {
		if t, ok, err := parseTimestamp(s, slotLoc); ok {
			return t, err
		}
		if date, clockText, ok := splitDateTime(s); ok {
			return combine(date, clockText, start)
		}
		return endFromClock(s, start)
	}
	if s := strings.TrimSpace(raw.EndTime); s != "" {
		return endFromClock(s, start)
	}
	if raw.DurationMinutes < 0 {
		return time.Time{}, unresolvable(fmt.Sprintf("negative duration %d", raw.DurationMinutes), nil)
	}
	if raw.DurationMinutes > 0 {
		return start.Add(time.Duration(raw.DurationMinutes) * time.Minute), nil
	}
	return start.Add(n.defaultDuration), nil
}

// endFromClock places an end time on the start's day, rolling over to the
// next day when it is not after start ("11pm to 1am").
func endFromClock(text string, start time.Time) (time.Time, error) {
	c, err := parseClock(text)
	if err != nil {
		return time.Time{}, unresolvable("unrecognised end time", err)
	}
	end := c.on(start)
	if !end.After(start) {
		end = c.on(start.AddDate(0, 0, 1))
	}
	return end, nil
}

// priorityOf takes the explicit priority when it is valid, and otherwise
// infers one from the slot's context.
func priorityOf(raw RawSlot) *models.Priority {
	if raw.Priority != "" {
		if p, err := models.ParsePriority(raw.Priority); err == nil {
			return &p
		}
	}
	ctx := strings.ToLower(raw.Context)
	var p models.Priority
	switch {
	case strings.Contains(ctx, "prefer"), strings.Contains(ctx, "ideal"):
		p = models.PriorityHigh
	case strings.Contains(ctx, "alternative"), strings.Contains(ctx, "backup"), strings.Contains(ctx, "fallback"):
		p = models.PriorityLow
	default:
		return nil
	}
	return &p
}
