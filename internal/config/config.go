package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the process configuration of the economy daemon.
type Config struct {
	Environment       string        `validate:"required,oneof=development test staging production"`
	StoreDriver       string        `validate:"required,oneof=sqlite postgres"`
	DatabaseURL       string        `validate:"required_if=StoreDriver postgres"`
	SQLitePath        string        `validate:"required_if=StoreDriver sqlite"`
	DefaultCurrency   string        `validate:"required,uppercase,alphanum,min=2,max=10"`
	RealMoneyCurrency string        `validate:"required,uppercase,alphanum,min=2,max=10"`
	KafkaBrokers      []string      `validate:"dive,hostname_port"`
	KafkaTopic        string        `validate:"required_with=KafkaBrokers"`
	AuditLogPath      string        `validate:"required_if=Environment production,required_if=Environment staging"`
	InterestInterval  time.Duration `validate:"min=1s"`
	ExchangeRates     []RateSeed    `validate:"dive"`

	// Newcomer bonus experience is published to KafkaExperienceTopic when
	// NewcomerBonusPoints is positive.
	NewcomerBonusPoints     int    `validate:"min=0"`
	NewcomerBonusMaxBalance int64  `validate:"min=0"`
	KafkaExperienceTopic    string `validate:"required_with=KafkaBrokers"`
}

// RateSeed is an exchange rate applied at startup.
type RateSeed struct {
	Base   string `validate:"required,uppercase,alphanum"`
	Target string `validate:"required,uppercase,alphanum,nefield=Base"`
	Rate   decimal.Decimal
}

var validate = validator.New()

// Load reads an optional .env file, then builds the configuration from the
// environment and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Environment:       getenv("APP_ENV", "development"),
		StoreDriver:       getenv("STORE_DRIVER", "sqlite"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getenv("SQLITE_PATH", "economy.db"),
		DefaultCurrency:   strings.ToUpper(getenv("DEFAULT_CURRENCY", "USD")),
		RealMoneyCurrency: strings.ToUpper(getenv("REAL_MONEY_CURRENCY", "USD")),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getenv("KAFKA_TOPIC", "transaction_committed"),
		AuditLogPath:      os.Getenv("AUDIT_LOG_PATH"),

		KafkaExperienceTopic: getenv("KAFKA_EXPERIENCE_TOPIC", "experience_granted"),
	}

	points, err := strconv.Atoi(getenv("NEWCOMER_BONUS_POINTS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid NEWCOMER_BONUS_POINTS: %w", err)
	}
	cfg.NewcomerBonusPoints = points

	maxBalance, err := strconv.ParseInt(getenv("NEWCOMER_BONUS_MAX_BALANCE", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NEWCOMER_BONUS_MAX_BALANCE: %w", err)
	}
	cfg.NewcomerBonusMaxBalance = maxBalance

	interval, err := time.ParseDuration(getenv("INTEREST_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid INTEREST_INTERVAL: %w", err)
	}
	cfg.InterestInterval = interval

	rates, err := ParseExchangeRates(os.Getenv("EXCHANGE_RATES"))
	if err != nil {
		return nil, err
	}
	cfg.ExchangeRates = rates

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return errors.New("invalid configuration: " + strings.Join(fields, ", "))
		}
		return err
	}
	if c.NewcomerBonusPoints > 0 && len(c.KafkaBrokers) == 0 {
		return errors.New("invalid configuration: NEWCOMER_BONUS_POINTS needs KAFKA_BROKERS")
	}
	for _, r := range c.ExchangeRates {
		if !r.Rate.IsPositive() {
			return fmt.Errorf("invalid configuration: exchange rate %s->%s must be positive", r.Base, r.Target)
		}
	}
	return nil
}

// ParseExchangeRates parses a comma-separated list of BASE:TARGET=RATE
// pairs, e.g. "USD:EUR=0.92,USD:GEM=100".
func ParseExchangeRates(s string) ([]RateSeed, error) {
	var seeds []RateSeed
	for _, item := range splitList(s) {
		pair, rate, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("invalid EXCHANGE_RATES entry %q: want BASE:TARGET=RATE", item)
		}
		base, target, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid EXCHANGE_RATES entry %q: want BASE:TARGET=RATE", item)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(rate))
		if err != nil {
			return nil, fmt.Errorf("invalid EXCHANGE_RATES rate in %q: %w", item, err)
		}
		seeds = append(seeds, RateSeed{
			Base:   strings.ToUpper(strings.TrimSpace(base)),
			Target: strings.ToUpper(strings.TrimSpace(target)),
			Rate:   d,
		})
	}
	return seeds, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
