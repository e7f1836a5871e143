package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarsync/libs/config"
	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/browser"
)

const (
	driverMongo    = "mongo"
	driverPostgres = "postgres"
)

type appConfig struct {
	Service  string
	Port     string
	LogLevel string

	StoreDriver string
	MongoURI    string
	DBName      string
	Collection  string
	DatabaseURL string

	Site     string
	Owner    string
	Location *time.Location

	Interval time.Duration
	LockTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	KafkaBrokers  string
	KafkaTopic    string

	Browser browser.Config
}

// loadConfig reads the environment once. Every missing required key and every
// malformed value is reported in a single error.
func loadConfig() (appConfig, error) {
	cfg := appConfig{
		Service:       config.String("SERVICE_NAME", "sync-service"),
		LogLevel:      config.String("LOG_LEVEL", "info"),
		StoreDriver:   strings.ToLower(config.String("STORE_DRIVER", driverMongo)),
		MongoURI:      config.String("MONGO_URI", ""),
		DBName:        config.String("DB_NAME", ""),
		Collection:    config.String("APPOINTMENTS_COL", ""),
		DatabaseURL:   config.String("DATABASE_URL", ""),
		Site:          config.String("DEFAULT_SEDE", "Marquetalia"),
		Owner:         config.String("DEFAULT_USUARIO", "Leslie gutierrez"),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		RedisPassword: config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:  config.String("KAFKA_BROKERS", ""),
		KafkaTopic:    config.String("KAFKA_TOPIC", "calendar.appointment.synced.v1"),
		Browser: browser.Config{
			BaseURL:  strings.TrimRight(config.String("LIZTO_BASE_URL", "https://app.lizto.co"), "/"),
			Email:    config.String("LIZTO_EMAIL", ""),
			Password: config.String("LIZTO_PASSWORD", ""),
			ExecPath: config.String("CHROME_PATH", ""),
		},
	}

	required := []string{"APPOINTMENTS_COL", "LIZTO_EMAIL", "LIZTO_PASSWORD"}
	var errs []error
	switch cfg.StoreDriver {
	case driverMongo:
		required = append(required, "MONGO_URI", "DB_NAME")
	case driverPostgres:
		required = append(required, "DATABASE_URL")
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q (got %q)", driverMongo, driverPostgres, cfg.StoreDriver))
	}
	if err := config.Missing(required...); err != nil {
		errs = append(errs, err)
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8090"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Interval, err = config.Duration("SYNC_INTERVAL", time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.LockTTL, err = config.Duration("SYNC_LOCK_TTL", 30*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.OverlaySettle, err = config.Duration("OVERLAY_SETTLE_DELAY", 250*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.NavigationSettle, err = config.Duration("NAV_SETTLE_DELAY", 2*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.CalendarSettle, err = config.Duration("CALENDAR_SETTLE_DELAY", 3*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.WaitTimeout, err = config.Duration("BROWSER_WAIT_TIMEOUT", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.Browser.Headless, err = config.Bool("HEADLESS", true); err != nil {
		errs = append(errs, err)
	}

	cfg.Location = time.Local
	if tz := config.String("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
		} else {
			cfg.Location = loc
		}
	}

	return cfg, errors.Join(errs...)
}
