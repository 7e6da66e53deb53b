package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotcheck/internal/availability"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "slotcheck.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
workday_start: "09:30"
max_alternatives: 3
exclude_weekends: true
ics:
  - location: /home/me/holidays.ics
    provider: other
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "09:30", cfg.WorkdayStart)
	assert.Equal(t, "20:00", cfg.WorkdayEnd)
	assert.Equal(t, 30, cfg.MinSlotMinutes)
	assert.Equal(t, []string{"primary"}, cfg.Google.CalendarIDs)
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "/home/me/holidays.ics", cfg.ICS[0].Location)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timezone: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PRIMARY_TIMEZONE":             "America/New_York",
		"GOOGLE_CALENDAR_IDS":          "primary, team@group.calendar.google.com",
		"ICLOUD_USERNAME":              "me@icloud.com",
		"ICLOUD_APP_SPECIFIC_PASSWORD": "abcd-efgh",
		"ICLOUD_CALENDAR_NAME":         "Home",
		"THUNDERBIRD_DB":               "auto",
		"SLOTCHECK_ADAPTER_TIMEOUT":    "9",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, []string{"primary", "team@group.calendar.google.com"}, cfg.Google.CalendarIDs)
	assert.Equal(t, "me@icloud.com", cfg.ICloud.Username)
	assert.Equal(t, []string{"Home"}, cfg.ICloud.CalendarNames)
	assert.Equal(t, "auto", cfg.Thunderbird.Profile)
	assert.Equal(t, 9*time.Second, cfg.AdapterTimeout())
	assert.Empty(t, cfg.Microsoft.ClientID)
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.WorkdayStart = "09:00"
	cfg.WorkdayEnd = "17:30"
	cfg.MinSlotMinutes = 45
	cfg.MaxAlternatives = 5
	cfg.IncludeAllDay = true

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", opts.Location.String())
	assert.Equal(t, availability.ClockTime{Hour: 9}, opts.WorkdayStart)
	assert.Equal(t, availability.ClockTime{Hour: 17, Minute: 30}, opts.WorkdayEnd)
	assert.Equal(t, 45*time.Minute, opts.MinSlotDuration)
	assert.Equal(t, 7, opts.SearchWindowDays)
	assert.Equal(t, 5, opts.MaxAlternatives)
	assert.True(t, opts.IncludeAllDay)
	assert.Equal(t, 30*time.Minute, cfg.DefaultDuration())
}

func TestEngineOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"bad clock", func(c *Config) { c.WorkdayStart = "nine" }},
		{"end before start", func(c *Config) { c.WorkdayStart, c.WorkdayEnd = "18:00", "09:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			_, err := cfg.EngineOptions()
			assert.Error(t, err)
		})
	}
}
