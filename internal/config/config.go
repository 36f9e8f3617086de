package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	Location    *time.Location
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	JWTSecret   string

	DBTimeout     time.Duration
	LockTimeout   time.Duration
	TxRetries     uint64
	StatsInterval time.Duration

	// DefaultInitialDebt: стартовый долг студента без графика (legacy).
	DefaultInitialDebt decimal.Decimal

	TelegramToken string
	FinanceChatID int64

	RatesFile string
	Rates     ledger.Rates
}

var ErrMissing = errors.New("required env is empty")

// Load reads the environment; DATABASE_URL is required.
func Load() (*Config, error) { return load(true) }

// LoadInMemory is Load for runs against the in-memory store.
func LoadInMemory() (*Config, error) { return load(false) }

func load(requireDB bool) (*Config, error) {
	tz := getenv("TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		Location:      loc,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Env:           getenv("ENV", "dev"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		RatesFile:     os.Getenv("RATES_FILE"),
		Rates:         ledger.DefaultRates(),
	}
	if requireDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL: %w", ErrMissing)
	}

	if cfg.DBTimeout, err = duration("DB_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = duration("LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.StatsInterval, err = duration("STATS_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.StatsInterval <= 0 {
		return nil, fmt.Errorf("STATS_INTERVAL: must be positive")
	}
	retries, err := strconv.ParseUint(getenv("TX_RETRIES", "3"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("TX_RETRIES: %w", err)
	}
	cfg.TxRetries = retries

	if cfg.DefaultInitialDebt, err = decimal.NewFromString(getenv("DEFAULT_INITIAL_DEBT", "0")); err != nil {
		return nil, fmt.Errorf("DEFAULT_INITIAL_DEBT: %w", err)
	}
	if cfg.DefaultInitialDebt.IsNegative() {
		return nil, fmt.Errorf("DEFAULT_INITIAL_DEBT: must not be negative")
	}

	if s := strings.TrimSpace(os.Getenv("FINANCE_CHAT_ID")); s != "" {
		if cfg.FinanceChatID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("FINANCE_CHAT_ID: %w", err)
		}
	}

	if cfg.RatesFile != "" {
		if cfg.Rates, err = LoadRates(cfg.RatesFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ratesFile: формат TOML-файла со ставками; пустые поля берутся из ledger.DefaultRates.
type ratesFile struct {
	TuitionShare      string `toml:"tuition_share"`
	MonthlyStipend    string `toml:"monthly_stipend"`
	MonthsPerSemester int    `toml:"months_per_semester"`
	YearlyMedical     string `toml:"yearly_medical"`
}

// LoadRates reads cost-sharing rates from a TOML file.
func LoadRates(path string) (ledger.Rates, error) {
	var f ratesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return ledger.Rates{}, fmt.Errorf("rates %s: %w", path, err)
	}
	return f.rates()
}

func (f ratesFile) rates() (ledger.Rates, error) {
	r := ledger.DefaultRates()
	for _, fld := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"tuition_share", f.TuitionShare, &r.TuitionShare},
		{"monthly_stipend", f.MonthlyStipend, &r.MonthlyStipend},
		{"yearly_medical", f.YearlyMedical, &r.YearlyMedical},
	} {
		if fld.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return ledger.Rates{}, fmt.Errorf("rates %s: %w", fld.name, err)
		}
		if d.IsNegative() {
			return ledger.Rates{}, fmt.Errorf("rates %s: must not be negative", fld.name)
		}
		*fld.dst = d
	}
	if f.MonthsPerSemester < 0 {
		return ledger.Rates{}, fmt.Errorf("rates months_per_semester: must not be negative")
	}
	if f.MonthsPerSemester > 0 {
		r.MonthsPerSemester = f.MonthsPerSemester
	}
	return r, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
