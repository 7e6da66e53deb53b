// Package thunderbird reads busy time straight from a Thunderbird profile's
// local calendar database.
package thunderbird

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"slotcheck/internal/models"
	"slotcheck/internal/recurrence"
	"slotcheck/internal/source"
)

// DriverName is the database/sql driver used to open profile databases.
const DriverName = "sqlite3"

// Item flags stored in cal_events.flags.
const (
	flagAllDay        = 8
	flagHasRecurrence = 16
)

// Floating times are stored as wall clock encoded as UTC, so candidates are
// fetched with this much slack and filtered after conversion.
const floatingSlack = 14 * time.Hour

var databaseCandidates = []string{
	filepath.Join("calendar-data", "local.sqlite"),
	filepath.Join("calendar-data", "cache.sqlite"),
	filepath.Join("calendar-data", "storage.sqlite"),
	"storage.sdb",
}

var registryName = regexp.MustCompile(`user_pref\("calendar\.registry\.([^."]+)\.name",\s*"((?:[^"\\]|\\.)*)"\);`)

// Storage reads events from one Thunderbird calendar database.
type Storage struct {
	dbPath      string
	profileDir  string
	logger      *slog.Logger
	calendarIDs []string
	loc         *time.Location
}

// New creates a Storage for path, which is either a profile directory or the
// database file itself. calendarIDs restricts the calendars read.
func New(logger *slog.Logger, path string, calendarIDs []string, loc *time.Location) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("thunderbird profile %s: %w", path, err)
	}

	s := &Storage{
		logger:      logger.With("provider", models.ProviderThunderbird),
		calendarIDs: calendarIDs,
		loc:         loc,
	}
	if info.IsDir() {
		s.profileDir = path
		s.dbPath, err = FindDatabase(path)
		if err != nil {
			return nil, err
		}
	} else {
		s.dbPath = path
		s.profileDir = filepath.Dir(filepath.Dir(path))
	}
	return s, nil
}

// FindProfile returns the first Thunderbird profile under home/.thunderbird.
func FindProfile(home string) (string, error) {
	for _, pattern := range []string{"*.default", "*.default-release", "*.default-esr", "*.default-nightly"} {
		matches, err := filepath.Glob(filepath.Join(home, ".thunderbird", pattern))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no thunderbird profile found in %s", filepath.Join(home, ".thunderbird"))
}

// FindDatabase returns the calendar database inside profileDir.
func FindDatabase(profileDir string) (string, error) {
	for _, rel := range databaseCandidates {
		p := filepath.Join(profileDir, rel)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no calendar database found in %s", filepath.Join(profileDir, "calendar-data"))
}

// Provider implements source.Adapter.
func (s *Storage) Provider() models.Provider {
	return models.ProviderThunderbird
}

type eventRow struct {
	CalendarID   string         `db:"cal_id"`
	ID           string         `db:"id"`
	Title        sql.NullString `db:"title"`
	Status       sql.NullString `db:"ical_status"`
	Flags        int64          `db:"flags"`
	Start        int64          `db:"event_start"`
	StartTZ      sql.NullString `db:"event_start_tz"`
	End          int64          `db:"event_end"`
	EndTZ        sql.NullString `db:"event_end_tz"`
	RecurrenceID sql.NullInt64  `db:"recurrence_id"`
	RecurrenceTZ sql.NullString `db:"recurrence_id_tz"`
	Transparency sql.NullString `db:"transp"`
}

type ruleRow struct {
	CalendarID string `db:"cal_id"`
	ItemID     string `db:"item_id"`
	ICal       string `db:"icalString"`
}

func (s *Storage) open() (*sqlx.DB, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, err
	}
	// Thunderbird keeps the file open while running; read-only avoids contention.
	return sqlx.Open(DriverName, "file:"+s.dbPath+"?mode=ro&_busy_timeout=2000")
}

// FetchBusyEvents returns the events in [start, end), with repeating events expanded.
func (s *Storage) FetchBusyEvents(ctx context.Context, start, end time.Time) ([]models.BusyEvent, error) {
	db, err := s.open()
	if err != nil {
		return nil, source.Unavailable(models.ProviderThunderbird, "calendar database not readable", err)
	}
	defer db.Close()

	var rows []eventRow
	err = db.SelectContext(ctx, &rows, `
		SELECT e.cal_id, e.id, e.title, e.ical_status, e.flags,
			e.event_start, e.event_start_tz, e.event_end, e.event_end_tz,
			e.recurrence_id, e.recurrence_id_tz,
			(SELECT p.value FROM cal_properties p
				WHERE p.item_id = e.id AND p.cal_id = e.cal_id AND p.key = 'TRANSP'
				LIMIT 1) AS transp
		FROM cal_events e
		WHERE (e.event_start < ? AND e.event_end > ?)
			OR (e.flags & ?) != 0
			OR e.recurrence_id IS NOT NULL
	`, end.Add(floatingSlack).UnixMicro(), start.Add(-floatingSlack).UnixMicro(), flagHasRecurrence)
	if err != nil {
		return nil, source.Unavailable(models.ProviderThunderbird, "calendar query failed", err)
	}

	rules, err := s.rules(ctx, db)
	if err != nil {
		return nil, source.Unavailable(models.ProviderThunderbird, "calendar query failed", err)
	}

	events := s.toBusyEvents(rows, rules, start, end)
	s.logger.Info("Successfully read events from Thunderbird", "count", len(events), "db", s.dbPath)
	return events, nil
}

func (s *Storage) rules(ctx context.Context, db *sqlx.DB) (map[string][]string, error) {
	var rows []ruleRow
	err := db.SelectContext(ctx, &rows, `SELECT cal_id, item_id, icalString FROM cal_recurrence`)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, r := range rows {
		key := r.CalendarID + "/" + r.ItemID
		out[key] = append(out[key], strings.TrimSpace(r.ICal))
	}
	return out, nil
}

func (s *Storage) wants(calendarID string) bool {
	if len(s.calendarIDs) == 0 {
		return true
	}
	for _, id := range s.calendarIDs {
		if id == calendarID {
			return true
		}
	}
	return false
}

func (s *Storage) toBusyEvents(rows []eventRow, rules map[string][]string, from, to time.Time) []models.BusyEvent {
	type entry struct {
		row    eventRow
		series *recurrence.Series
	}
	var (
		entries []entry
		masters = make(map[string]*recurrence.Series)
		// Exceptions replace one occurrence of their master and are applied
		// once every master is known.
		exceptions = make(map[string][]time.Time)
	)

	for _, row := range rows {
		if !s.wants(row.CalendarID) {
			continue
		}
		key := row.CalendarID + "/" + row.ID
		if row.RecurrenceID.Valid {
			exceptions[key] = append(exceptions[key], s.instant(row.RecurrenceID.Int64, row.RecurrenceTZ.String))
		}
		if strings.EqualFold(row.Status.String, "CANCELLED") || strings.EqualFold(row.Transparency.String, "TRANSPARENT") {
			continue
		}

		start := s.instant(row.Start, row.StartTZ.String)
		end := s.instant(row.End, row.EndTZ.String)
		if !end.After(start) {
			continue
		}
		series := &recurrence.Series{Start: start, Duration: end.Sub(start)}
		if !row.RecurrenceID.Valid && row.Flags&flagHasRecurrence != 0 {
			if err := s.attachRules(series, rules[key]); err != nil {
				s.logger.Debug("Skipping event with unusable recurrence", "id", row.ID, "error", err)
				continue
			}
			masters[key] = series
		}
		entries = append(entries, entry{row: row, series: series})
	}

	for key, times := range exceptions {
		if master, ok := masters[key]; ok {
			for _, t := range times {
				master.Override(t)
			}
		}
	}

	names := s.calendarNames()
	var out []models.BusyEvent
	for _, e := range entries {
		label := names[e.row.CalendarID]
		if label == "" {
			label = e.row.CalendarID
		}
		for _, iv := range e.series.Occurrences(from, to) {
			ev := models.NewBusyEvent(models.ProviderThunderbird, e.row.CalendarID, label, e.row.Title.String, iv)
			ev.AllDay = e.row.Flags&flagAllDay != 0
			out = append(out, ev)
		}
	}
	return out
}

// attachRules parses the RRULE and EXDATE lines stored for a repeating item.
func (s *Storage) attachRules(series *recurrence.Series, lines []string) error {
	var (
		rule    string
		exdates []time.Time
	)
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(name, "RRULE"):
			rule = value
		case strings.HasPrefix(strings.ToUpper(name), "EXDATE"):
			for _, v := range strings.Split(value, ",") {
				if t, err := parseICalTime(v, s.loc); err == nil {
					exdates = append(exdates, t)
				}
			}
		}
	}
	if rule == "" {
		return errors.New("recurring item has no RRULE")
	}
	parsed, err := recurrence.FromRule(series.Start, series.Duration, rule, nil, exdates)
	if err != nil {
		return err
	}
	series.Set = parsed.Set
	return nil
}

// instant converts a stored microsecond timestamp. Floating values hold the
// wall clock as if it were UTC and are placed in the user's zone.
func (s *Storage) instant(micros int64, tz string) time.Time {
	t := time.UnixMicro(micros).UTC()
	switch tz {
	case "floating":
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, s.loc)
	case "", "UTC":
		return t
	default:
		if loc, err := time.LoadLocation(tz); err == nil {
			return t.In(loc)
		}
		return t
	}
}

func parseICalTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if len(v) == len("20060102") {
		return time.ParseInLocation("20060102", v, loc)
	}
	return time.ParseInLocation("20060102T150405", v, loc)
}

// calendarNames reads display names from the profile's prefs.js registry.
func (s *Storage) calendarNames() map[string]string {
	names := make(map[string]string)
	b, err := os.ReadFile(filepath.Join(s.profileDir, "prefs.js"))
	if err != nil {
		return names
	}
	for _, m := range registryName.FindAllStringSubmatch(string(b), -1) {
		names[m[1]] = strings.ReplaceAll(m[2], `\"`, `"`)
	}
	return names
}

// ListCalendars returns the calendars that hold events in the database.
func (s *Storage) ListCalendars(ctx context.Context) ([]models.CalendarInfo, error) {
	db, err := s.open()
	if err != nil {
		return nil, source.Unavailable(models.ProviderThunderbird, "calendar database not readable", err)
	}
	defer db.Close()

	var ids []string
	if err := db.SelectContext(ctx, &ids, `SELECT DISTINCT cal_id FROM cal_events`); err != nil {
		return nil, source.Unavailable(models.ProviderThunderbird, "calendar query failed", err)
	}

	names := s.calendarNames()
	for id := range names {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]models.CalendarInfo, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		out = append(out, models.CalendarInfo{ID: id, Name: name, Provider: models.ProviderThunderbird})
	}
	return out, nil
}
