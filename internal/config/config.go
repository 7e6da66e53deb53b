package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"slotcheck/internal/availability"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "slotcheck.yaml"

// GoogleConfig selects the Google accounts and calendars to read.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	// Accounts restricts which token-<account>.json files are used. Empty means all.
	Accounts    []string `yaml:"accounts"`
	CalendarIDs []string `yaml:"calendar_ids"`
}

// MicrosoftConfig selects the Outlook accounts and calendars to read.
type MicrosoftConfig struct {
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Tenant       string   `yaml:"tenant"`
	Accounts     []string `yaml:"accounts"`
	CalendarIDs  []string `yaml:"calendar_ids"`
}

// ICloudConfig holds CalDAV credentials. Use an app-specific password.
type ICloudConfig struct {
	Username      string   `yaml:"username,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	CalendarNames []string `yaml:"calendar_names"`
}

// ThunderbirdConfig points at a profile directory or its calendar database.
// "auto" looks for the default profile in the home directory.
type ThunderbirdConfig struct {
	Profile     string   `yaml:"profile,omitempty"`
	CalendarIDs []string `yaml:"calendar_ids"`
}

// ICSConfig describes one .ics file or feed.
type ICSConfig struct {
	// Location is a file path or an http(s)/webcal URL.
	Location string `yaml:"location"`
	Name     string `yaml:"name,omitempty"`
	// Provider tags the events, e.g. "microsoft" for an exported Outlook calendar.
	Provider string `yaml:"provider,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone all results are expressed in.
	Timezone string `yaml:"timezone"`

	WorkdayStart           string `yaml:"workday_start"`
	WorkdayEnd             string `yaml:"workday_end"`
	MinSlotMinutes         int    `yaml:"min_slot_minutes"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	SearchWindowDays       int    `yaml:"search_window_days"`
	MaxAlternatives        int    `yaml:"max_alternatives"`
	ExcludeWeekends        bool   `yaml:"exclude_weekends"`
	IncludeAllDay          bool   `yaml:"include_all_day"`
	AdapterTimeoutSeconds  int    `yaml:"adapter_timeout_seconds"`

	// TokenDir holds the OAuth token files.
	TokenDir string `yaml:"token_dir"`

	Google      GoogleConfig      `yaml:"google"`
	Microsoft   MicrosoftConfig   `yaml:"microsoft"`
	ICloud      ICloudConfig      `yaml:"icloud"`
	Thunderbird ThunderbirdConfig `yaml:"thunderbird"`
	ICS         []ICSConfig       `yaml:"ics"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:               "UTC",
		WorkdayStart:           "08:00",
		WorkdayEnd:             "20:00",
		MinSlotMinutes:         30,
		DefaultDurationMinutes: 30,
		SearchWindowDays:       7,
		AdapterTimeoutSeconds:  5,
		TokenDir:               ".",
		Google:                 GoogleConfig{Accounts: []string{}, CalendarIDs: []string{"primary"}},
		Microsoft:              MicrosoftConfig{Tenant: "common", Accounts: []string{}, CalendarIDs: []string{}},
		ICloud:                 ICloudConfig{CalendarNames: []string{}},
		Thunderbird:            ThunderbirdConfig{CalendarIDs: []string{}},
		ICS:                    []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.WorkdayStart == "" {
		c.WorkdayStart = def.WorkdayStart
	}
	if c.WorkdayEnd == "" {
		c.WorkdayEnd = def.WorkdayEnd
	}
	if c.MinSlotMinutes <= 0 {
		c.MinSlotMinutes = def.MinSlotMinutes
	}
	if c.DefaultDurationMinutes <= 0 {
		c.DefaultDurationMinutes = def.DefaultDurationMinutes
	}
	if c.SearchWindowDays <= 0 {
		c.SearchWindowDays = def.SearchWindowDays
	}
	if c.MaxAlternatives < 0 {
		c.MaxAlternatives = 0
	}
	if c.AdapterTimeoutSeconds <= 0 {
		c.AdapterTimeoutSeconds = def.AdapterTimeoutSeconds
	}
	if c.TokenDir == "" {
		c.TokenDir = def.TokenDir
	}
	if len(c.Google.CalendarIDs) == 0 {
		c.Google.CalendarIDs = def.Google.CalendarIDs
	}
	if c.Google.Accounts == nil {
		c.Google.Accounts = []string{}
	}
	if c.Microsoft.Tenant == "" {
		c.Microsoft.Tenant = def.Microsoft.Tenant
	}
	if c.Microsoft.Accounts == nil {
		c.Microsoft.Accounts = []string{}
	}
	if c.Microsoft.CalendarIDs == nil {
		c.Microsoft.CalendarIDs = []string{}
	}
	if c.ICloud.CalendarNames == nil {
		c.ICloud.CalendarNames = []string{}
	}
	if c.Thunderbird.CalendarIDs == nil {
		c.Thunderbird.CalendarIDs = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// ApplyEnv overrides file settings with environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	list := func(dst *[]string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}

	set(&c.Timezone, "PRIMARY_TIMEZONE")
	set(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	list(&c.Google.CalendarIDs, "GOOGLE_CALENDAR_IDS")
	set(&c.Microsoft.ClientID, "MICROSOFT_CLIENT_ID")
	set(&c.Microsoft.ClientSecret, "MICROSOFT_CLIENT_SECRET")
	set(&c.Microsoft.Tenant, "MICROSOFT_TENANT")
	set(&c.ICloud.Username, "ICLOUD_USERNAME")
	set(&c.ICloud.Password, "ICLOUD_APP_SPECIFIC_PASSWORD")
	list(&c.ICloud.CalendarNames, "ICLOUD_CALENDAR_NAMES")
	set(&c.Thunderbird.Profile, "THUNDERBIRD_DB")
	set(&c.TokenDir, "SLOTCHECK_TOKEN_DIR")

	// Kept for the older single-calendar variable.
	if v := strings.TrimSpace(getenv("ICLOUD_CALENDAR_NAME")); v != "" && len(c.ICloud.CalendarNames) == 0 {
		c.ICloud.CalendarNames = []string{v}
	}
	if v := strings.TrimSpace(getenv("SLOTCHECK_ADAPTER_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AdapterTimeoutSeconds = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Location loads the configured zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// EngineOptions converts the working-hours policy for the availability engine.
func (c *Config) EngineOptions() (availability.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return availability.Options{}, err
	}
	start, err := availability.ParseClock(c.WorkdayStart)
	if err != nil {
		return availability.Options{}, fmt.Errorf("workday_start: %w", err)
	}
	end, err := availability.ParseClock(c.WorkdayEnd)
	if err != nil {
		return availability.Options{}, fmt.Errorf("workday_end: %w", err)
	}

	opts := availability.Options{
		Location:         loc,
		WorkdayStart:     start,
		WorkdayEnd:       end,
		MinSlotDuration:  time.Duration(c.MinSlotMinutes) * time.Minute,
		SearchWindowDays: c.SearchWindowDays,
		MaxAlternatives:  c.MaxAlternatives,
		ExcludeWeekends:  c.ExcludeWeekends,
		IncludeAllDay:    c.IncludeAllDay,
	}
	if err := opts.Validate(); err != nil {
		return availability.Options{}, err
	}
	return opts, nil
}

// DefaultDuration is the length assumed for slots that give only a start.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationMinutes) * time.Minute
}

// AdapterTimeout bounds each calendar source call.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path. A missing file is created
// with the defaults (mode 0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The final
// file is readable only by its owner since it may hold credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".slotcheck-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
