package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"slotcheck/internal/auth"
	"slotcheck/internal/models"
	"slotcheck/internal/source"
)

const (
	credentialsFile = "credentials.json"
	oobRedirectURL  = "urn:ietf:wg:oauth:2.0:oob"
)

// Tokens is where Google account tokens live: token-<account>.json.
var Tokens = auth.TokenStore{Prefix: "token-"}

// CalendarClient reads busy time from the Google Calendar API for one account.
type CalendarClient struct {
	service     *calendar.Service
	logger      *slog.Logger
	account     string
	calendarIDs []string
	loc         *time.Location
}

// NewClient creates a new Google Calendar client.
// It handles loading credentials and setting up an authenticated HTTP client.
// It supports multiple accounts by looking for token files like token-user1.json, token-user2.json, etc.
// The accountName is used to find the correct token file. Refreshed tokens are
// written back to the same file.
func NewClient(ctx context.Context, logger *slog.Logger, store auth.TokenStore, clientID, clientSecret, accountName string, calendarIDs []string, loc *time.Location) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	ts, err := store.TokenSource(ctx, logger, config, accountName)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	return NewClientWithOptions(ctx, logger, accountName, calendarIDs, loc, option.WithTokenSource(ts))
}

// NewClientWithOptions creates a client with explicit API options, such as a
// custom endpoint and HTTP client.
func NewClientWithOptions(ctx context.Context, logger *slog.Logger, accountName string, calendarIDs []string, loc *time.Location, opts ...option.ClientOption) (*CalendarClient, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(calendarIDs) == 0 {
		calendarIDs = []string{"primary"}
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalendarClient{
		service:     service,
		logger:      logger.With("provider", models.ProviderGoogle, "account", accountName),
		account:     accountName,
		calendarIDs: calendarIDs,
		loc:         loc,
	}, nil
}

// Provider implements source.Adapter.
func (c *CalendarClient) Provider() models.Provider {
	return models.ProviderGoogle
}

// FetchBusyEvents returns the events in [start, end) across the configured
// calendars. A calendar that fails is skipped; the call only fails when every
// calendar does.
func (c *CalendarClient) FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error) {
	var (
		all      []models.BusyEvent
		failures int
		lastErr  error
	)
	for _, calID := range c.calendarIDs {
		events, err := c.fetchCalendar(ctx, calID, start, end)
		if err != nil {
			c.logger.Error("Could not fetch events for a google calendar", "calendarID", calID, "error", err)
			failures++
			lastErr = err
			continue
		}
		all = append(all, events...)
	}
	if failures == len(c.calendarIDs) {
		return nil, source.Unavailable(models.ProviderGoogle, failureReason(lastErr), lastErr)
	}
	return all, nil
}

func (c *CalendarClient) fetchCalendar(ctx context.Context, calendarID string, start, end time.Time) ([]models.BusyEvent, error) {
	c.logger.Debug("Fetching busy events", "calendarID", calendarID, "start", start, "end", end)

	var events []models.BusyEvent
	err := c.service.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		OrderBy("startTime").
		MaxResults(250).
		Pages(ctx, func(page *calendar.Events) error {
			label := page.Summary
			if label == "" {
				label = calendarID
			}
			events = append(events, c.toBusyEvents(page.Items, calendarID, label)...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", calendarID)
	return events, nil
}

// toBusyEvents converts Google Calendar events to busy events. Cancelled,
// transparent and declined events do not block time.
func (c *CalendarClient) toBusyEvents(items []*calendar.Event, calendarID, label string) []models.BusyEvent {
	var out []models.BusyEvent
	for _, item := range items {
		if item.Status == "cancelled" || item.Transparency == "transparent" || declinedBySelf(item) {
			continue
		}
		if item.Start == nil || item.End == nil {
			continue
		}

		interval, allDay, err := c.eventInterval(item)
		if err != nil {
			c.logger.Debug("Skipping event with unusable times", "title", item.Summary, "error", err)
			continue
		}
		ev := models.NewBusyEvent(models.ProviderGoogle, calendarID, label, item.Summary, interval)
		ev.AllDay = allDay
		out = append(out, ev)
	}
	return out
}

func (c *CalendarClient) eventInterval(item *calendar.Event) (models.Interval, bool, error) {
	if item.Start.Date != "" {
		loc := c.loc
		if item.Start.TimeZone != "" {
			if l, err := time.LoadLocation(item.Start.TimeZone); err == nil {
				loc = l
			}
		}
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
		if err != nil {
			return models.Interval{}, false, err
		}
		end, err := time.ParseInLocation("2006-01-02", item.End.Date, loc)
		if err != nil {
			return models.Interval{}, false, err
		}
		iv, err := models.NewInterval(start, end)
		return iv, true, err
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return models.Interval{}, false, err
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return models.Interval{}, false, err
	}
	iv, err := models.NewInterval(start, end)
	return iv, false, err
}

func declinedBySelf(item *calendar.Event) bool {
	for _, a := range item.Attendees {
		if a.Self && a.ResponseStatus == "declined" {
			return true
		}
	}
	return false
}

// ListCalendars finds all calendars associated with the authenticated account.
func (c *CalendarClient) ListCalendars(ctx context.Context) ([]models.CalendarInfo, error) {
	var cals []models.CalendarInfo
	err := c.service.CalendarList.List().Pages(ctx, func(list *calendar.CalendarList) error {
		for _, item := range list.Items {
			name := item.SummaryOverride
			if name == "" {
				name = item.Summary
			}
			cals = append(cals, models.CalendarInfo{
				ID:        item.Id,
				Name:      name,
				Provider:  models.ProviderGoogle,
				IsPrimary: item.Primary,
			})
		}
		return nil
	})
	if err != nil {
		return nil, source.Unavailable(models.ProviderGoogle, failureReason(err), err)
	}
	return cals, nil
}

func failureReason(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return "token expired or revoked, run the auth command again"
	}
	return "calendar API request failed"
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  oobRedirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = oobRedirectURL // For desktop app flow
	return config, nil
}
