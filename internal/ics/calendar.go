// Package ics reads busy time from iCalendar files on disk or published feed URLs.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"

	"slotcheck/internal/models"
	"slotcheck/internal/recurrence"
	"slotcheck/internal/source"
)

// Calendar is one .ics file or feed exposed as a calendar source.
type Calendar struct {
	location   string
	name       string
	provider   models.Provider
	loc        *time.Location
	logger     *slog.Logger
	httpClient *http.Client
}

// New creates a source for location, a file path or an http(s) URL. provider
// tags the events; exported Outlook or Apple calendars keep their origin.
func New(logger *slog.Logger, location, name string, provider models.Provider, loc *time.Location) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	if provider == "" {
		provider = models.ProviderOther
	}
	return &Calendar{
		location:   location,
		name:       name,
		provider:   provider,
		loc:        loc,
		logger:     logger.With("provider", provider, "ics", redact(location)),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient replaces the client used for feed URLs.
func (c *Calendar) WithHTTPClient(client *http.Client) *Calendar {
	c.httpClient = client
	return c
}

// Provider implements source.Adapter.
func (c *Calendar) Provider() models.Provider {
	return c.provider
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "webcal://")
}

// redact drops query strings, which often carry a private feed token.
func redact(location string) string {
	if i := strings.IndexByte(location, '?'); i >= 0 && isURL(location) {
		return location[:i] + "?..."
	}
	return location
}

func (c *Calendar) read(ctx context.Context) ([]byte, error) {
	if !isURL(c.location) {
		return os.ReadFile(c.location)
	}

	url := c.location
	if strings.HasPrefix(url, "webcal://") {
		url = "https://" + strings.TrimPrefix(url, "webcal://")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Calendar) parse(ctx context.Context) (*ical.Calendar, error) {
	body, err := c.read(ctx)
	if err != nil {
		reason := "calendar file not readable"
		if isURL(c.location) {
			reason = "calendar feed not reachable"
		}
		return nil, source.Unavailable(c.provider, reason, err)
	}
	if len(body) == 0 {
		return nil, source.Unavailable(c.provider, "calendar file is empty", nil)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, source.Unavailable(c.provider, "calendar file is not valid iCalendar", err)
	}
	return cal, nil
}

// FetchBusyEvents returns the events in [start, end), with repeating events expanded.
func (c *Calendar) FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error) {
	cal, err := c.parse(ctx)
	if err != nil {
		return nil, err
	}
	label := c.label(cal)

	type entry struct {
		title  string
		allDay bool
		series *recurrence.Series
	}
	var (
		entries    []entry
		masters    = make(map[string]*recurrence.Series)
		exceptions = make(map[string][]time.Time)
	)

	for _, ve := range cal.Events() {
		uid := value(ve, ical.ComponentPropertyUniqueId)
		if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
			if t, _, err := propTime(rid, c.loc); err == nil {
				exceptions[uid] = append(exceptions[uid], t)
			}
		}
		if strings.EqualFold(value(ve, "STATUS"), "CANCELLED") || strings.EqualFold(value(ve, "TRANSP"), "TRANSPARENT") {
			continue
		}

		series, allDay, err := c.seriesOf(ve)
		if err != nil {
			c.logger.Debug("ics vevent skipped", "uid", uid, "error", err)
			continue
		}
		if ve.GetProperty("RECURRENCE-ID") == nil && series.Set != nil {
			masters[uid] = series
		}
		entries = append(entries, entry{title: value(ve, ical.ComponentPropertySummary), allDay: allDay, series: series})
	}

	for uid, times := range exceptions {
		if master, ok := masters[uid]; ok {
			for _, t := range times {
				master.Override(t)
			}
		}
	}

	var out []models.BusyEvent
	for _, e := range entries {
		for _, iv := range e.series.Occurrences(start, end) {
			ev := models.NewBusyEvent(c.provider, c.location, label, e.title, iv)
			ev.AllDay = e.allDay
			out = append(out, ev)
		}
	}
	c.logger.Info("ics parse completed", "event_count", len(out))
	return out, nil
}

func (c *Calendar) seriesOf(ve *ical.VEvent) (*recurrence.Series, bool, error) {
	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return nil, false, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtstart, c.loc)
	if err != nil {
		return nil, false, err
	}

	var end time.Time
	if dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); dtend != nil {
		if end, _, err = propTime(dtend, c.loc); err != nil {
			return nil, false, err
		}
	} else if dur := value(ve, "DURATION"); dur != "" {
		d, err := parseDuration(dur)
		if err != nil {
			return nil, false, err
		}
		end = start.Add(d)
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return nil, false, errors.New("event has no duration")
	}

	rule := value(ve, ical.ComponentPropertyRrule)
	if rule == "" || ve.GetProperty("RECURRENCE-ID") != nil {
		return &recurrence.Series{Start: start, Duration: end.Sub(start)}, allDay, nil
	}

	var exdates []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(strings.TrimSpace(part), tzid(p), c.loc); err == nil {
				exdates = append(exdates, t)
			}
		}
	}
	series, err := recurrence.FromRule(start, end.Sub(start), rule, nil, exdates)
	if err != nil {
		return nil, false, err
	}
	return series, allDay, nil
}

// ListCalendars reports the file or feed as a single calendar.
func (c *Calendar) ListCalendars(ctx context.Context) ([]models.CalendarInfo, error) {
	cal, err := c.parse(ctx)
	if err != nil {
		return nil, err
	}
	return []models.CalendarInfo{{ID: c.location, Name: c.label(cal), Provider: c.provider}}, nil
}

// label prefers the configured name, then the feed's X-WR-CALNAME.
func (c *Calendar) label(cal *ical.Calendar) string {
	if c.name != "" {
		return c.name
	}
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "X-WR-CALNAME" && p.Value != "" {
			return p.Value
		}
	}
	return redact(c.location)
}

func value(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// parseDuration reads an RFC 5545 DURATION value such as "PT1H30M" or "P1D".
func parseDuration(v string) (time.Duration, error) {
	p := goical.NewProp(goical.PropDuration)
	p.Value = strings.TrimSpace(v)
	d, err := p.Duration()
	if err != nil {
		return 0, fmt.Errorf("invalid DURATION %q: %w", v, err)
	}
	return d, nil
}

func tzid(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// propTime reads a DATE or DATE-TIME property. Floating values and dates are
// placed in loc.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	t, err := parseTime(v, tzid(p), loc)
	return t, allDay, err
}

func parseTime(v, tz string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
