package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the studenthub service.
type Config struct {
	HTTPPort   int
	SQLiteDSN  string
	SessionTTL time.Duration
	Timezone   string
	DigestHour int
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields while validating the rest
// and reporting every offending variable in one pass.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:   8080,
		SQLiteDSN:  "file:studenthub.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		SessionTTL: 24 * time.Hour,
		Timezone:   "Local",
		DigestHour: 23,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("STUDENTHUB_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "STUDENTHUB_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("STUDENTHUB_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if ttlValue := strings.TrimSpace(os.Getenv("STUDENTHUB_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "STUDENTHUB_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if tz := strings.TrimSpace(os.Getenv("STUDENTHUB_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "STUDENTHUB_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if hourValue := strings.TrimSpace(os.Getenv("STUDENTHUB_DIGEST_HOUR")); hourValue != "" {
		hour, err := strconv.Atoi(hourValue)
		if err != nil || hour < 0 || hour > 23 {
			invalid = append(invalid, "STUDENTHUB_DIGEST_HOUR")
		} else {
			cfg.DigestHour = hour
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
