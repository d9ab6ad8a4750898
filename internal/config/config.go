package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tourcal/internal/agenda"
)

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Local"
	defaultLeadMinutes = 15
	defaultLookahead   = 3
	defaultPoll        = "@every 1m"
	defaultHorizonDays = 30
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone itinerary times are read in ("Europe/Rome").
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ReminderLeadMinutes is how long before an item its reminder fires.
	ReminderLeadMinutes int `yaml:"reminder_lead_minutes" json:"reminder_lead_minutes"`

	// Lookahead is how many upcoming items are shown after the current one.
	Lookahead int `yaml:"lookahead" json:"lookahead"`

	// Poll is the cron schedule of the reminder poller ("@every 30s",
	// "* * * * *").
	Poll string `yaml:"poll" json:"poll"`

	// ImportHorizonDays bounds recurrence expansion on calendar import.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// Keywords replaces the classification keywords of the named activity
	// types. Types not listed keep their built-in keywords.
	Keywords map[string][]string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              defaultListen,
		Timezone:            defaultTimezone,
		ReminderLeadMinutes: defaultLeadMinutes,
		Lookahead:           defaultLookahead,
		Poll:                defaultPoll,
		ImportHorizonDays:   defaultHorizonDays,
	}
}

// Normalize fills in missing or out-of-range values with defaults so that
// partially-filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.ReminderLeadMinutes < 0 {
		c.ReminderLeadMinutes = defaultLeadMinutes
	}
	if c.Lookahead <= 0 {
		c.Lookahead = defaultLookahead
	}
	if c.Poll == "" {
		c.Poll = defaultPoll
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultHorizonDays
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Validate checks the values Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Classifier(); err != nil {
		return fmt.Errorf("config: keywords: %w", err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ImportHorizon returns ImportHorizonDays as a duration.
func (c *Config) ImportHorizon() time.Duration {
	return time.Duration(c.ImportHorizonDays) * 24 * time.Hour
}

// Classifier builds the activity classifier, applying Keywords on top of
// the built-in rules.
func (c *Config) Classifier() (*agenda.Classifier, error) {
	if len(c.Keywords) == 0 {
		return agenda.DefaultClassifier(), nil
	}
	return agenda.ClassifierFromKeywords(c.Keywords)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still hand back the defaults; the caller decides.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".tourcal-config-*.tmp")
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

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
