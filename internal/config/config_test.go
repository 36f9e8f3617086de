package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	for _, k := range []string{"HTTP_ADDR", "LOCK_TIMEOUT", "TX_RETRIES", "RATES_FILE", "FINANCE_CHAT_ID", "DEFAULT_INITIAL_DEBT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LockTimeout != 5*time.Second || cfg.TxRetries != 3 {
		t.Fatalf("lock timeout %v retries %d", cfg.LockTimeout, cfg.TxRetries)
	}
	if !cfg.Rates.TuitionShare.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("tuition share %s", cfg.Rates.TuitionShare)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
	cfg, err := LoadInMemory()
	if err != nil || cfg.DatabaseURL != "" {
		t.Fatalf("in-memory cfg=%+v err=%v", cfg, err)
	}
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x")
	cases := map[string]string{
		"LOCK_TIMEOUT":         "soon",
		"TX_RETRIES":           "-1",
		"FINANCE_CHAT_ID":      "chat",
		"DEFAULT_INITIAL_DEBT": "-5",
		"STATS_INTERVAL":       "0s",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", k, v)
			}
		})
	}
}

func TestLoadRates_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.toml")
	body := "tuition_share = \"0.20\"\nmonths_per_semester = 4\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRates(path)
	if err != nil {
		t.Fatalf("LoadRates: %v", err)
	}
	if !r.TuitionShare.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("share %s", r.TuitionShare)
	}
	if r.MonthsPerSemester != 4 {
		t.Fatalf("months %d", r.MonthsPerSemester)
	}
	if !r.MonthlyStipend.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("stipend should keep default, got %s", r.MonthlyStipend)
	}
}

func TestLoadRates_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.toml")
	if err := os.WriteFile(path, []byte("yearly_medical = \"lots\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRates(path); err == nil {
		t.Fatal("expected error")
	}
}
