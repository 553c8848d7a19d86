package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration, read from the environment.
// All timing knobs live here so none of the portal quirks are compiled in.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	PortalBaseURL  string
	PortalUsername string
	PortalPassword string

	// Timezone the portal releases slots in. All window math happens here.
	Timezone string
	Location *time.Location

	SessionHashKey  []byte // base64
	SessionBlockKey []byte // base64

	// Booking windows open BookAheadDays before the target date at
	// ReleaseClock (minutes after local midnight).
	BookAheadDays int
	ReleaseClock  int

	// Recurring pattern defaults, seeded into the settings row on first run.
	RecurWeekdays  []time.Weekday
	RecurEarliest  int // minute of day
	RecurLatest    int
	MaxOutstanding int
	MinRoster      int

	SchedTick     time.Duration
	SweepInterval time.Duration
	Prewarm       time.Duration
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       envDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PortalBaseURL:  strings.TrimRight(strings.TrimSpace(os.Getenv("PORTAL_BASE_URL")), "/"),
		PortalUsername: strings.TrimSpace(os.Getenv("PORTAL_USERNAME")),
		PortalPassword: os.Getenv("PORTAL_PASSWORD"),
		Timezone:       envDefault("TIMEZONE", "America/New_York"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PortalBaseURL == "" {
		return cfg, fmt.Errorf("PORTAL_BASE_URL is required")
	}
	if cfg.PortalUsername == "" || cfg.PortalPassword == "" {
		return cfg, fmt.Errorf("PORTAL_USERNAME and PORTAL_PASSWORD are required")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.SessionHashKey, err = mustB64("SESSION_HASH_KEY")
	if err != nil {
		return cfg, err
	}
	cfg.SessionBlockKey, err = mustB64("SESSION_BLOCK_KEY")
	if err != nil {
		return cfg, err
	}

	if cfg.BookAheadDays, err = envInt("BOOK_AHEAD_DAYS", 7); err != nil {
		return cfg, err
	}
	if cfg.ReleaseClock, err = envClock("RELEASE_TIME", "18:00"); err != nil {
		return cfg, err
	}
	if cfg.RecurEarliest, err = envClock("RECUR_EARLIEST", "07:50"); err != nil {
		return cfg, err
	}
	if cfg.RecurLatest, err = envClock("RECUR_LATEST", "13:00"); err != nil {
		return cfg, err
	}
	if cfg.RecurLatest < cfg.RecurEarliest {
		return cfg, fmt.Errorf("RECUR_LATEST must not be earlier than RECUR_EARLIEST")
	}
	if cfg.MaxOutstanding, err = envInt("MAX_OUTSTANDING", 4); err != nil {
		return cfg, err
	}
	if cfg.MinRoster, err = envInt("MIN_ROSTER", 3); err != nil {
		return cfg, err
	}

	cfg.RecurWeekdays, err = parseWeekdays(envDefault("RECUR_WEEKDAYS", "Saturday,Sunday"))
	if err != nil {
		return cfg, err
	}

	tick, err := envInt("SCHED_TICK_SECONDS", 60)
	if err != nil {
		return cfg, err
	}
	cfg.SchedTick = time.Duration(tick) * time.Second

	sweep, err := envInt("SWEEP_INTERVAL_MINUTES", 30)
	if err != nil {
		return cfg, err
	}
	cfg.SweepInterval = time.Duration(sweep) * time.Minute

	prewarm, err := envInt("PREWARM_SECONDS", 90)
	if err != nil {
		return cfg, err
	}
	cfg.Prewarm = time.Duration(prewarm) * time.Second

	return cfg, nil
}

func envDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func envInt(k string, d int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

// envClock parses HH:MM into a minute-of-day.
func envClock(k, d string) (int, error) {
	v := envDefault(k, d)
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid %s: %q (want HH:MM)", k, v)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid %s: %q (want HH:MM)", k, v)
	}
	return h*60 + m, nil
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	var out []time.Weekday
	seen := map[time.Weekday]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		wd, ok := names[p]
		if !ok {
			return nil, fmt.Errorf("invalid RECUR_WEEKDAYS entry %q", p)
		}
		if !seen[wd] {
			seen[wd] = true
			out = append(out, wd)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("RECUR_WEEKDAYS is empty")
	}
	return out, nil
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
