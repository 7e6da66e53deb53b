package icloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"slotcheck/internal/models"
	"slotcheck/internal/recurrence"
	"slotcheck/internal/source"
)

const (
	iCloudCalDAVEndpoint = "https://caldav.icloud.com/"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "slotcheck/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient reads busy time from a CalDAV server (iCloud).
type CalDAVClient struct {
	caldavClient  *caldav.Client
	logger        *slog.Logger
	calendarNames []string
	loc           *time.Location

	mu        sync.Mutex
	calendars []caldav.Calendar
}

// NewClient creates a CalDAVClient for iCloud using an app-specific password.
// calendarNames restricts the calendars read; empty means all of them.
func NewClient(logger *slog.Logger, username, password string, calendarNames []string, loc *time.Location) (*CalDAVClient, error) {
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	return NewClientWithEndpoint(logger, &http.Client{Transport: transport}, iCloudCalDAVEndpoint, calendarNames, loc)
}

// NewClientWithEndpoint creates a CalDAVClient against any CalDAV server.
// Calendar discovery happens on first use.
func NewClientWithEndpoint(logger *slog.Logger, httpClient webdav.HTTPClient, endpoint string, calendarNames []string, loc *time.Location) (*CalDAVClient, error) {
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalDAVClient{
		caldavClient:  caldavClient,
		logger:        logger.With("provider", models.ProviderApple),
		calendarNames: calendarNames,
		loc:           loc,
	}, nil
}

// Provider implements source.Adapter.
func (c *CalDAVClient) Provider() models.Provider {
	return models.ProviderApple
}

// FetchBusyEvents returns the events in [start, end) across the selected
// calendars, with repeating events expanded.
func (c *CalDAVClient) FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error) {
	calendars, err := c.discover(ctx)
	if err != nil {
		return nil, source.Unavailable(models.ProviderApple, "calendar discovery failed", err)
	}

	var (
		all      []models.BusyEvent
		failures int
		lastErr  error
	)
	for _, cal := range calendars {
		events, err := c.fetchCalendar(ctx, cal, start, end)
		if err != nil {
			c.logger.Error("Could not query iCloud calendar", "calendar", cal.Name, "error", err)
			failures++
			lastErr = err
			continue
		}
		all = append(all, events...)
	}
	if len(calendars) > 0 && failures == len(calendars) {
		return nil, source.Unavailable(models.ProviderApple, "calendar query failed", lastErr)
	}
	return all, nil
}

func (c *CalDAVClient) fetchCalendar(ctx context.Context, cal caldav.Calendar, start, end time.Time) ([]models.BusyEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{Name: "VEVENT", AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT", Start: start, End: end}},
		},
	}
	objects, err := c.caldavClient.QueryCalendar(ctx, cal.Path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var events []models.BusyEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events = append(events, BusyEvents(obj.Data, cal.Path, labelOf(cal), start, end, c.loc, c.logger)...)
	}
	c.logger.Info("Successfully fetched events from iCloud", "count", len(events), "calendar", cal.Name)
	return events, nil
}

// ListCalendars returns the calendars visible to the account.
func (c *CalDAVClient) ListCalendars(ctx context.Context) ([]models.CalendarInfo, error) {
	calendars, err := c.discover(ctx)
	if err != nil {
		return nil, source.Unavailable(models.ProviderApple, "calendar discovery failed", err)
	}
	out := make([]models.CalendarInfo, 0, len(calendars))
	for _, cal := range calendars {
		out = append(out, models.CalendarInfo{ID: cal.Path, Name: labelOf(cal), Provider: models.ProviderApple})
	}
	return out, nil
}

// discover finds the selected calendars once and caches them.
func (c *CalDAVClient) discover(ctx context.Context) ([]caldav.Calendar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calendars != nil {
		return c.calendars, nil
	}

	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}

	selected := make([]caldav.Calendar, 0, len(calendars))
	for _, cal := range calendars {
		if !supportsEvents(cal) || !c.wants(cal) {
			continue
		}
		selected = append(selected, cal)
	}
	if len(c.calendarNames) > 0 && len(selected) == 0 {
		return nil, fmt.Errorf("no calendar found named %s", strings.Join(c.calendarNames, ", "))
	}
	c.logger.Debug("Discovered iCloud calendars", "count", len(selected))
	c.calendars = selected
	return selected, nil
}

func (c *CalDAVClient) wants(cal caldav.Calendar) bool {
	if len(c.calendarNames) == 0 {
		return true
	}
	for _, name := range c.calendarNames {
		if strings.EqualFold(cal.Name, name) {
			return true
		}
	}
	return false
}

// supportsEvents filters out reminder lists, which iCloud exposes as VTODO-only calendars.
func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}

func labelOf(cal caldav.Calendar) string {
	if cal.Name != "" {
		return cal.Name
	}
	return cal.Path
}

// BusyEvents converts the VEVENTs of one calendar object into busy events
// overlapping [from, to). Cancelled and transparent events are dropped and
// repeating events are expanded, honouring RECURRENCE-ID exceptions.
// Floating times are read in loc.
func BusyEvents(cal *ical.Calendar, calendarID, label string, from, to time.Time, loc *time.Location, logger *slog.Logger) []models.BusyEvent {
	type entry struct {
		title  string
		allDay bool
		series *recurrence.Series
	}

	var (
		entries []entry
		masters = make(map[string]*recurrence.Series)
		// Exceptions are applied after every master is known.
		exceptions = make(map[string][]time.Time)
	)

	for _, ev := range cal.Events() {
		uid, _ := ev.Props.Text(ical.PropUID)
		if rid := ev.Props.Get(ical.PropRecurrenceID); rid != nil {
			if t, err := rid.DateTime(loc); err == nil {
				exceptions[uid] = append(exceptions[uid], t)
			}
		}
		if !blocksTime(ev) {
			continue
		}

		series, allDay, err := seriesOf(ev, loc)
		if err != nil {
			logger.Debug("Skipping event with unusable times", "uid", uid, "error", err)
			continue
		}
		if ev.Props.Get(ical.PropRecurrenceID) == nil && series.Set != nil {
			masters[uid] = series
		}
		title, _ := ev.Props.Text(ical.PropSummary)
		entries = append(entries, entry{title: title, allDay: allDay, series: series})
	}

	for uid, times := range exceptions {
		master, ok := masters[uid]
		if !ok {
			continue
		}
		for _, t := range times {
			master.Override(t)
		}
	}

	var out []models.BusyEvent
	for _, e := range entries {
		for _, iv := range e.series.Occurrences(from, to) {
			ev := models.NewBusyEvent(models.ProviderApple, calendarID, label, e.title, iv)
			ev.AllDay = e.allDay
			out = append(out, ev)
		}
	}
	return out
}

func blocksTime(ev ical.Event) bool {
	if status, _ := ev.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
		return false
	}
	if transp, _ := ev.Props.Text(ical.PropTransparency); strings.EqualFold(transp, "TRANSPARENT") {
		return false
	}
	return true
}

func seriesOf(ev ical.Event, loc *time.Location) (*recurrence.Series, bool, error) {
	dtstart := ev.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil, false, errors.New("event has no DTSTART")
	}
	allDay := dtstart.ValueType() == ical.ValueDate

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, false, err
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return nil, false, err
	}
	if !end.After(start) {
		return nil, false, fmt.Errorf("event ends at or before its start")
	}

	series := &recurrence.Series{Start: start, Duration: end.Sub(start)}
	if ev.Props.Get(ical.PropRecurrenceID) == nil {
		set, err := ev.RecurrenceSet(loc)
		if err != nil {
			return nil, false, fmt.Errorf("invalid recurrence: %w", err)
		}
		series.Set = set
	}
	return series, allDay, nil
}
