// Package config loads the business configuration injected into the bot.
//
// Company identity, helpline details, and staffed hours live in a YAML file
// rather than compile-time constants so deployments for different companies
// need no code changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Business holds the tenant-specific settings consumed by the bot.
type Business struct {
	CompanyName string `yaml:"company_name"`
	Helpline    string `yaml:"helpline"`
	Email       string `yaml:"email"`
	Website     string `yaml:"website"`
	Address     string `yaml:"address"`

	// Timezone is an IANA zone name, e.g. "Asia/Karachi".
	Timezone string `yaml:"timezone"`
	// OpenHour and CloseHour bound the staffed window. The bot is staffed
	// from OpenHour:00 up to but excluding CloseHour:00, Monday-Saturday.
	OpenHour  int `yaml:"open_hour"`
	CloseHour int `yaml:"close_hour"`

	loc *time.Location
}

// Defaults for a config file that omits fields.
const (
	DefaultTimezone  = "Asia/Karachi"
	DefaultOpenHour  = 8
	DefaultCloseHour = 20
)

// Load reads a Business config from a YAML file. A missing path returns the
// built-in defaults so local development works without a config file.
func Load(path string) (*Business, error) {
	b := &Business{
		CompanyName: "Tasker Company",
		Helpline:    "",
		Timezone:    DefaultTimezone,
		OpenHour:    DefaultOpenHour,
		CloseHour:   DefaultCloseHour,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read business config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, b); err != nil {
			return nil, fmt.Errorf("failed to parse business config %s: %w", path, err)
		}
		slog.Debug("Business config loaded from file", "path", path, "company", b.CompanyName)
	} else {
		slog.Debug("No business config path set, using defaults", "company", b.CompanyName)
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q in business config: %w", b.Timezone, err)
	}
	b.loc = loc
	return b, nil
}

// Validate checks field ranges after loading.
func (b *Business) Validate() error {
	if b.CompanyName == "" {
		return fmt.Errorf("business config: company_name is required")
	}
	if b.OpenHour < 0 || b.OpenHour > 23 {
		return fmt.Errorf("business config: open_hour %d out of range", b.OpenHour)
	}
	if b.CloseHour < 1 || b.CloseHour > 24 {
		return fmt.Errorf("business config: close_hour %d out of range", b.CloseHour)
	}
	if b.OpenHour >= b.CloseHour {
		return fmt.Errorf("business config: open_hour %d must be before close_hour %d", b.OpenHour, b.CloseHour)
	}
	return nil
}

// Location returns the configured time zone.
func (b *Business) Location() *time.Location {
	if b.loc != nil {
		return b.loc
	}
	return time.UTC
}
