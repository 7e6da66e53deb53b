package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotcheck/internal/config"
	"slotcheck/internal/extract"
	"slotcheck/internal/models"
	"slotcheck/internal/source"
)

const holidays = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:standup\r\nDTSTAMP:20261001T000000Z\r\nSUMMARY:Standup\r\n" +
	"DTSTART:20261020T090000Z\r\nDTEND:20261020T093000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

func TestReadInput(t *testing.T) {
	b, err := readInput("", "meet tomorrow at 3pm?", strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "meet tomorrow at 3pm?", string(b))

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"time_slots": []}`), 0o600))
	b, err = readInput(path, "", strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, `{"time_slots": []}`, string(b))

	b, err = readInput("", "", strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(b))

	_, err = readInput("", "", strings.NewReader("  \n"))
	assert.Error(t, err)

	_, err = readInput(filepath.Join(t.TempDir(), "missing.json"), "", nil)
	assert.Error(t, err)
}

func TestBuildAdapters_LocalSources(t *testing.T) {
	dir := t.TempDir()
	icsPath := filepath.Join(dir, "work.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(holidays), 0o600))

	cfg := config.DefaultConfig()
	cfg.TokenDir = dir
	cfg.ICS = []config.ICSConfig{
		{Location: icsPath, Name: "Work export", Provider: "microsoft"},
		{Location: filepath.Join(dir, "other.ics"), Provider: "nonsense"},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapters := buildAdapters(context.Background(), logger, cfg, time.UTC)
	require.Len(t, adapters, 2, "no tokens, no icloud credentials and no thunderbird profile")
	assert.Equal(t, models.ProviderMicrosoft, adapters[0].Provider())
	assert.Equal(t, models.ProviderOther, adapters[1].Provider())
}

func TestBuildAdapters_BrokenSourcesReportUnavailable(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.TokenDir = dir
	cfg.Google.Accounts = []string{"work"}
	cfg.Microsoft.Accounts = []string{"office"}
	cfg.ICloud.Username = "me@icloud.com"
	cfg.Thunderbird.Profile = filepath.Join(dir, "no-such-profile")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapters := buildAdapters(context.Background(), logger, cfg, time.UTC)

	var providers []models.Provider
	for _, a := range adapters {
		providers = append(providers, a.Provider())
		_, err := a.FetchBusyEvents(context.Background(), time.Now(), time.Now().Add(time.Hour))
		assert.True(t, errors.Is(err, source.ErrUnavailable), "%s: %v", a.Provider(), err)
	}
	assert.Equal(t, []models.Provider{
		models.ProviderGoogle,
		models.ProviderMicrosoft,
		models.ProviderApple,
		models.ProviderThunderbird,
	}, providers)
}

func TestCheckPipeline_WarnsAboutSourcesNotSetUp(t *testing.T) {
	dir := t.TempDir()
	icsPath := filepath.Join(dir, "work.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(holidays), 0o600))

	cfg := config.DefaultConfig()
	cfg.TokenDir = dir
	cfg.ICS = []config.ICSConfig{{Location: icsPath, Name: "Work"}}
	cfg.Google.Accounts = []string{"work"}
	cfg.Thunderbird.Profile = filepath.Join(dir, "no-such-profile")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chk, err := newChecker(context.Background(), logger, cfg)
	require.NoError(t, err)
	chk.WithClock(func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) })

	payload, err := extract.Default(logger).Extract(context.Background(), []byte(`{
		"is_suggestion": true,
		"time_slots": [{"start": "2026-10-20T11:00:00Z", "end": "2026-10-20T11:30:00Z"}]
	}`))
	require.NoError(t, err)

	r, err := chk.Check(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, r.Slots, 1)
	assert.True(t, r.Slots[0].Available)
	assert.False(t, r.CalendarDataMissing)
	require.Len(t, r.Warnings, 2)
	assert.True(t, strings.HasPrefix(r.Warnings[0], "[google]"), r.Warnings[0])
	assert.True(t, strings.HasPrefix(r.Warnings[1], "[thunderbird]"), r.Warnings[1])
}

func TestCheckPipeline_WithICSSource(t *testing.T) {
	dir := t.TempDir()
	icsPath := filepath.Join(dir, "work.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(holidays), 0o600))

	cfg := config.DefaultConfig()
	cfg.TokenDir = dir
	cfg.ICS = []config.ICSConfig{{Location: icsPath, Name: "Work"}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chk, err := newChecker(context.Background(), logger, cfg)
	require.NoError(t, err)

	payload, err := extract.Default(logger).Extract(context.Background(), []byte(`{
		"is_suggestion": true,
		"time_slots": [
			{"start": "2026-10-20T09:15:00Z", "end": "2026-10-20T09:45:00Z"},
			{"start": "2026-10-20T11:00:00Z", "end": "2026-10-20T11:30:00Z"}
		]
	}`))
	require.NoError(t, err)

	chk.WithClock(func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) })
	r, err := chk.Check(context.Background(), payload)
	require.NoError(t, err)

	require.Len(t, r.Slots, 2)
	assert.False(t, r.Slots[0].Available)
	require.Len(t, r.Slots[0].Conflicts, 1)
	assert.Equal(t, "Standup", r.Slots[0].Conflicts[0].Title)
	assert.True(t, r.Slots[1].Available)
	assert.False(t, r.CalendarDataMissing)
	assert.Empty(t, r.Warnings)
}
