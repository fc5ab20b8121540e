// Package config loads the sundial service configuration from a YAML
// file, with environment-variable fallbacks for secrets so API keys
// stay out of config files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sundial-dev/sundial/pkg/icsfeed"
	"github.com/sundial-dev/sundial/pkg/recur"
)

// Holiday is a closed calendar-date range during which recurring series
// skip occurrences.
type Holiday struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"` // YYYY-MM-DD
	End   string `yaml:"end"`   // YYYY-MM-DD, inclusive
}

// Config is the full service configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Timezone string `yaml:"timezone"`

	Calendar struct {
		ID          string `yaml:"id"`
		SecretsPath string `yaml:"secrets_path"`
		TokenPath   string `yaml:"token_path"`
	} `yaml:"calendar"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`

	Feeds struct {
		CacheTTLMinutes int              `yaml:"cache_ttl_minutes"`
		Sources         []icsfeed.Source `yaml:"sources"`
	} `yaml:"feeds"`

	ProposalTTLMinutes int       `yaml:"proposal_ttl_minutes"`
	Holidays           []Holiday `yaml:"holidays"`
}

// Default returns a Config with sane defaults applied.
func Default() *Config {
	cfg := &Config{
		Listen:   ":8080",
		Timezone: "UTC",
	}
	cfg.Calendar.ID = "primary"
	cfg.Feeds.CacheTTLMinutes = 60
	cfg.ProposalTTLMinutes = 30
	return cfg
}

// Load reads and validates a YAML config file. An empty path returns
// the defaults; a missing file is created with the defaults so a fresh
// install has something to edit.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		switch {
		case errors.Is(err, os.ErrNotExist):
			if werr := cfg.Save(path); werr != nil {
				return nil, werr
			}
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, readable only by the owner since it
// may carry an API key.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if v := os.Getenv("SUNDIAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SUNDIAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Feeds.Sources))
	for _, src := range c.Feeds.Sources {
		if src.ID == "" || src.URL == "" {
			return fmt.Errorf("config: feed source needs both id and url (id=%q)", src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("config: duplicate feed source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	for _, h := range c.Holidays {
		if _, _, err := h.dates(); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the configured timezone. Callers should Load first,
// which validates the name.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FeedCacheTTL returns the feed cache TTL as a duration.
func (c *Config) FeedCacheTTL() time.Duration {
	if c.Feeds.CacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Feeds.CacheTTLMinutes) * time.Minute
}

// ProposalTTL returns the proposal session TTL as a duration.
func (c *Config) ProposalTTL() time.Duration {
	if c.ProposalTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.ProposalTTLMinutes) * time.Minute
}

// HolidayExceptions converts the configured holidays into recurrence
// exceptions applied to every series the service expands.
func (c *Config) HolidayExceptions() ([]recur.Exception, error) {
	exceptions := make([]recur.Exception, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		start, end, err := h.dates()
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, recur.Exception{Start: start, End: end})
	}
	return exceptions, nil
}

func (h Holiday) dates() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", h.Start)
	if err != nil {
		return start, end, fmt.Errorf("config: holiday %q start: %w", h.Name, err)
	}
	end, err = time.Parse("2006-01-02", h.End)
	if err != nil {
		return start, end, fmt.Errorf("config: holiday %q end: %w", h.Name, err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("config: holiday %q ends before it starts", h.Name)
	}
	return start, end, nil
}
