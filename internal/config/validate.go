package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults applied where the file leaves fields unset.
const (
	DefaultTelegramTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = int64(50 * 1000 * 1000)
	DefaultRetention       = 168 * time.Hour
	DefaultSweepSchedule   = "@every 1h"
)

// Validate checks a parsed config for startup and for hot-reload commits.
// It only inspects; defaults are resolved by the consumers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("listen is required")
	}
	if strings.TrimSpace(cfg.Telegram.Secret) == "" {
		return fmt.Errorf("telegram.secret is required")
	}
	if _, err := ParseDurationField("telegram.timeout", cfg.Telegram.Timeout); err != nil {
		return err
	}
	if cfg.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}
	if cfg.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	for _, f := range []struct{ path, raw string }{
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
		{"journal.retention", cfg.Journal.Retention},
		{"journal.busy_timeout", cfg.Journal.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	switch cfg.Policy.AuthFailure {
	case "", AuthFailureNotFound, AuthFailureForbidden:
	default:
		return fmt.Errorf("policy.auth_failure: unknown value %q", cfg.Policy.AuthFailure)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", cfg.Journal.Driver)
	}
	if d := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)); d != "" && d != "none" {
		if strings.TrimSpace(cfg.Journal.Path) == "" {
			return fmt.Errorf("journal.path is required for driver %q", cfg.Journal.Driver)
		}
	}
	if s := strings.TrimSpace(cfg.Journal.SweepSchedule); s != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(s); err != nil {
			return fmt.Errorf("journal.sweep_schedule: %w", err)
		}
	}

	for name, t := range cfg.Topics {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("topics: empty topic name")
		}
		if strings.ContainsAny(name, "/ ") {
			return fmt.Errorf("topics.%s: name must not contain '/' or spaces", name)
		}
		for i, r := range t.Recipients {
			if strings.TrimSpace(r) == "" {
				return fmt.Errorf("topics.%s.recipients[%d]: empty recipient", name, i)
			}
		}
		for i, cidr := range t.AllowList {
			if _, err := netip.ParsePrefix(cidr); err != nil {
				return fmt.Errorf("topics.%s.allow_list[%d]: invalid CIDR %q: %w", name, i, cidr, err)
			}
		}
	}
	return nil
}

// ParseDurationField parses an optional Go duration string; empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault parses an optional duration, falling back to def
// when empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
