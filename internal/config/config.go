package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the app.
type Config struct {
	DatabaseURL    string
	Location       *time.Location
	SweepInterval  time.Duration
	SweepTimeout   time.Duration
	CatchUpPolicy  string
	MaxCatchUp     int
	AgendaAt       string
	TelegramToken  string
	TelegramChatID int64
}

// TelegramEnabled reports whether both bot settings are present.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SweepInterval: parseHours(strings.TrimSpace(os.Getenv("SWEEP_INTERVAL_HOURS"))),
		SweepTimeout:  2 * time.Minute,
		CatchUpPolicy: strings.ToLower(strings.TrimSpace(os.Getenv("CATCH_UP_POLICY"))),
		AgendaAt:      strings.TrimSpace(os.Getenv("AGENDA_AT")),
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "diligence.db"
	}

	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 6 * time.Hour
	}

	switch cfg.CatchUpPolicy {
	case "":
		cfg.CatchUpPolicy = "skip"
	case "skip", "full":
	default:
		return cfg, fmt.Errorf("CATCH_UP_POLICY must be skip or full, got %q", cfg.CatchUpPolicy)
	}

	cfg.MaxCatchUp = 366
	if raw := strings.TrimSpace(os.Getenv("MAX_CATCH_UP")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("MAX_CATCH_UP must be a positive integer, got %q", raw)
		}
		cfg.MaxCatchUp = n
	}

	cfg.Location = time.Local
	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TELEGRAM_CHAT_ID must be numeric, got %q", raw)
		}
		cfg.TelegramChatID = id
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return cfg, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
