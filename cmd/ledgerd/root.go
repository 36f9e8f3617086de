package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/config"
	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/db"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/logging"
	"github.com/Spok95/student-debt-ledger/internal/memstore"
	"github.com/Spok95/student-debt-ledger/internal/notify"
	"github.com/Spok95/student-debt-ledger/internal/observability"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "ledgerd",
	Short:         "Student debt ledger service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Загрузка переменных окружения
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file, using process environment")
		}
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd, migrateCmd, importCmd, exportCmd, tokenCmd)
}

// runtime is everything a command needs: config, logger, store and service.
type runtime struct {
	cfg   *config.Config
	log   *logging.Log
	db    *sql.DB
	svc   *ledger.Service
	close []func()
}

func (rt *runtime) Close() {
	for i := len(rt.close) - 1; i >= 0; i-- {
		rt.close[i]()
	}
}

// setup builds the runtime. inMemory swaps Postgres for the in-memory store.
func setup(ctx context.Context, inMemory bool) (*runtime, error) {
	load := config.Load
	if inMemory {
		load = config.LoadInMemory
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	rt := &runtime{cfg: cfg, log: lg}
	rt.close = append(rt.close, lg.Closer)

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry init failed", zap.Error(err))
	} else {
		rt.close = append(rt.close, flush)
	}

	ctxutil.DefaultDBTimeout = cfg.DBTimeout

	var store ledger.Store
	if inMemory {
		store = memstore.New(memstore.WithLockTimeout(cfg.LockTimeout))
		lg.Base.Warn("using in-memory store, data is lost on exit")
	} else {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.db = conn
		rt.close = append(rt.close, func() { _ = conn.Close() })
		store = db.NewStore(conn, cfg.LockTimeout)
	}

	opts := []ledger.Option{
		ledger.WithRates(cfg.Rates),
		ledger.WithLogger(lg.Base),
		ledger.WithRetries(cfg.TxRetries, 50*time.Millisecond),
		ledger.WithDefaultLegacyDebt(cfg.DefaultInitialDebt),
		ledger.WithClock(func() time.Time { return time.Now().In(cfg.Location) }),
	}
	n, err := notify.Dial(cfg.TelegramToken, cfg.FinanceChatID, lg.Base)
	if err != nil {
		lg.Base.Warn("telegram notifications disabled", zap.Error(err))
	} else if n != nil {
		opts = append(opts, ledger.WithNotifier(n))
	}
	rt.svc = ledger.New(store, opts...)
	return rt, nil
}
