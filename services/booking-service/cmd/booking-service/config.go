package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/barberline/barbershop/libs/config"
	"github.com/barberline/barbershop/libs/kafkax"
	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type appConfig struct {
	Service       string
	Port          string
	LogLevel      string
	StorageDriver string
	DatabaseURL   string
	AutoMigrate   bool

	Catalog slots.Config
	Policy  availability.Policy
	Strict  bool

	JWTSecret string
	TokenTTL  time.Duration

	KafkaBrokers []string
	RedisAddr    string
	RateLimit    int
	CORSOrigins  []string
}

func loadConfig() (appConfig, error) {
	cfg := appConfig{
		Service:       config.String("SERVICE_NAME", "booking-service"),
		LogLevel:      config.String("LOG_LEVEL", "info"),
		StorageDriver: strings.ToLower(config.String("STORAGE_DRIVER", driverPostgres)),
		AutoMigrate:   config.Bool("AUTO_MIGRATE", true),
		Strict:        config.Bool("STRICT_STATUS_TRANSITIONS", false),
		KafkaBrokers:  kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		CORSOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	switch cfg.StorageDriver {
	case driverPostgres:
		if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return cfg, err
		}
	case driverMemory:
	default:
		return cfg, fmt.Errorf("STORAGE_DRIVER must be %q or %q (got %q)", driverPostgres, driverMemory, cfg.StorageDriver)
	}

	def := slots.DefaultConfig()
	step, err := config.Minutes("SLOT_STEP_MINUTES", def.Step)
	if err != nil {
		return cfg, err
	}
	cfg.Catalog = slots.Config{
		First: config.String("SLOT_FIRST", def.First),
		Last:  config.String("SLOT_LAST", def.Last),
		Step:  step,
	}

	loc, err := config.Location("SHOP_TIMEZONE", "UTC")
	if err != nil {
		return cfg, err
	}
	maxAdvance, err := config.Int("BOOKING_MAX_ADVANCE_DAYS", 30)
	if err != nil {
		return cfg, err
	}
	if maxAdvance < 0 {
		return cfg, fmt.Errorf("BOOKING_MAX_ADVANCE_DAYS must not be negative")
	}
	closedNames := config.List("CLOSED_WEEKDAYS", "sunday")
	if len(closedNames) == 1 && strings.EqualFold(closedNames[0], "none") {
		closedNames = nil
	}
	closed, err := availability.ParseWeekdays(closedNames)
	if err != nil {
		return cfg, fmt.Errorf("CLOSED_WEEKDAYS: %w", err)
	}
	cfg.Policy = availability.Policy{Location: loc, MaxAdvanceDays: maxAdvance, ClosedWeekdays: closed}

	if cfg.JWTSecret, err = config.RequiredString("JWT_SECRET"); err != nil {
		return cfg, err
	}
	if cfg.TokenTTL, err = config.Minutes("ADMIN_TOKEN_TTL_MINUTES", 12*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return cfg, err
	}
	return cfg, nil
}
