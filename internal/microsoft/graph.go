// Package microsoft reads busy time from Outlook calendars through the
// Microsoft Graph REST API.
package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"slotcheck/internal/auth"
	"slotcheck/internal/models"
	"slotcheck/internal/source"
)

const (
	// GraphEndpoint is the Microsoft Graph v1.0 base URL.
	GraphEndpoint = "https://graph.microsoft.com/v1.0"

	redirectURL = "http://localhost:5000/auth/microsoft/callback"
	pageSize    = 250
)

// Tokens is where Microsoft account tokens live: msgraph-token-<account>.json.
var Tokens = auth.TokenStore{Prefix: "msgraph-token-"}

// Scopes requested during the auth flow. offline_access yields a refresh token.
var Scopes = []string{"offline_access", "Calendars.Read"}

// OAuthConfig returns the Graph OAuth config for tenant; an empty tenant
// means "common" (any work or personal account).
func OAuthConfig(clientID, clientSecret, tenant string) (*oauth2.Config, error) {
	if clientID == "" {
		return nil, errors.New("MICROSOFT_CLIENT_ID is not set")
	}
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}, nil
}

// Client reads one Microsoft account's calendars.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	logger      *slog.Logger
	calendarIDs []string
	loc         *time.Location
}

// NewClient creates a Graph client for account using its stored token.
// Refreshed tokens are written back to store.
func NewClient(ctx context.Context, logger *slog.Logger, store auth.TokenStore, config *oauth2.Config, account string, calendarIDs []string, loc *time.Location) (*Client, error) {
	ts, err := store.TokenSource(ctx, logger, config, account)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", account, err)
	}
	return NewClientWithHTTP(logger, oauth2.NewClient(ctx, ts), GraphEndpoint, account, calendarIDs, loc), nil
}

// NewClientWithHTTP creates a client that sends requests through httpClient
// to baseURL. No calendar IDs means the account's default calendar.
func NewClientWithHTTP(logger *slog.Logger, httpClient *http.Client, baseURL, account string, calendarIDs []string, loc *time.Location) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		logger:      logger.With("provider", models.ProviderMicrosoft, "account", account),
		calendarIDs: calendarIDs,
		loc:         loc,
	}
}

// Provider implements source.Adapter.
func (c *Client) Provider() models.Provider {
	return models.ProviderMicrosoft
}

// FetchBusyEvents returns the events in [start, end). A calendar that fails is
// skipped; the call only fails when every calendar does.
func (c *Client) FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error) {
	ids := c.calendarIDs
	if len(ids) == 0 {
		ids = []string{""}
	}

	var (
		all      []models.BusyEvent
		failures int
		lastErr  error
	)
	for _, id := range ids {
		events, err := c.fetchCalendar(ctx, id, start, end)
		if err != nil {
			c.logger.Error("Could not fetch events for an outlook calendar", "calendarID", id, "error", err)
			failures++
			lastErr = err
			continue
		}
		all = append(all, events...)
	}
	if failures == len(ids) {
		return nil, source.Unavailable(models.ProviderMicrosoft, failureReason(lastErr), lastErr)
	}
	return all, nil
}

func (c *Client) fetchCalendar(ctx context.Context, calendarID string, start, end time.Time) ([]models.BusyEvent, error) {
	path := "/me/calendarView"
	label := "Calendar"
	if calendarID != "" {
		path = "/me/calendars/" + url.PathEscape(calendarID) + "/calendarView"
		label = calendarID
	}

	params := url.Values{}
	params.Set("startDateTime", start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", end.UTC().Format(time.RFC3339))
	params.Set("$select", "subject,start,end,isAllDay,isCancelled,showAs")
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", fmt.Sprint(pageSize))

	var events []models.BusyEvent
	next := c.baseURL + path + "?" + params.Encode()
	for next != "" {
		var page graphEventsResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			ev, ok, err := c.toBusyEvent(item, calendarID, label)
			if err != nil {
				c.logger.Debug("Skipping event with unusable times", "subject", item.Subject, "error", err)
				continue
			}
			if ok {
				events = append(events, ev)
			}
		}
		next = page.NextLink
	}

	c.logger.Info("Successfully fetched events from Outlook", "count", len(events), "calendarID", calendarID)
	return events, nil
}

// toBusyEvent converts a Graph event. Cancelled and free events do not block time.
func (c *Client) toBusyEvent(g graphEvent, calendarID, label string) (models.BusyEvent, bool, error) {
	if g.IsCancelled || g.ShowAs == "free" {
		return models.BusyEvent{}, false, nil
	}

	start, err := parseGraphDateTime(g.Start)
	if err != nil {
		return models.BusyEvent{}, false, err
	}
	end, err := parseGraphDateTime(g.End)
	if err != nil {
		return models.BusyEvent{}, false, err
	}
	if g.IsAllDay {
		// All-day events carry midnight dates; they belong to the user's days.
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.loc)
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, c.loc)
	}

	iv, err := models.NewInterval(start, end)
	if err != nil {
		return models.BusyEvent{}, false, err
	}
	if calendarID == "" {
		calendarID = "default"
	}
	ev := models.NewBusyEvent(models.ProviderMicrosoft, calendarID, label, g.Subject, iv)
	ev.AllDay = g.IsAllDay
	return ev, true, nil
}

// ListCalendars returns the account's calendars.
func (c *Client) ListCalendars(ctx context.Context) ([]models.CalendarInfo, error) {
	var cals []models.CalendarInfo
	next := c.baseURL + "/me/calendars?$select=id,name,isDefaultCalendar"
	for next != "" {
		var page graphCalendarsResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, source.Unavailable(models.ProviderMicrosoft, failureReason(err), err)
		}
		for _, cal := range page.Value {
			name := cal.Name
			if name == "" {
				name = "Unnamed Calendar"
			}
			cals = append(cals, models.CalendarInfo{
				ID:        cal.ID,
				Name:      name,
				Provider:  models.ProviderMicrosoft,
				IsPrimary: cal.IsDefaultCalendar,
			})
		}
		next = page.NextLink
	}
	return cals, nil
}

// apiError is a non-2xx Graph response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("graph API error %d: %s", e.Status, e.Body)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &apiError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func failureReason(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return "token expired or revoked, run the auth command again"
	}
	var ae *apiError
	if errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden) {
		return "access denied, run the auth command again"
	}
	return "graph API request failed"
}

// Microsoft Graph API response types.
type graphEventsResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphEvent struct {
	Subject     string        `json:"subject"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	IsAllDay    bool          `json:"isAllDay"`
	IsCancelled bool          `json:"isCancelled"`
	ShowAs      string        `json:"showAs"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphCalendarsResponse struct {
	Value    []graphCalendar `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

type graphCalendar struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
}

// parseGraphDateTime parses a Graph dateTime. With the UTC preference header
// the value has no offset and is read as UTC.
func parseGraphDateTime(dt graphDateTime) (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return models.Normalize(dt.DateTime, loc, loc)
}
