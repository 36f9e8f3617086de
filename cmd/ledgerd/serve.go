package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/app"
	"github.com/Spok95/student-debt-ledger/internal/db"
	"github.com/Spok95/student-debt-ledger/internal/jobs"
	"github.com/Spok95/student-debt-ledger/internal/sisimport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("memory", false, "Use the in-memory store instead of Postgres")
	serveCmd.Flags().Bool("skip-migrate", false, "Do not apply migrations on start")
}

func runServe(cmd *cobra.Command, _ []string) error {
	inMemory, _ := cmd.Flags().GetBool("memory")
	skipMigrate, _ := cmd.Flags().GetBool("skip-migrate")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, inMemory)
	if err != nil {
		return err
	}
	defer rt.Close()
	lg := rt.log.Base

	if rt.cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve the API")
	}

	var ping func(context.Context) error
	if rt.db != nil {
		if !skipMigrate {
			if err := db.Migrate(ctx, rt.db); err != nil {
				return err
			}
		}
		ping = rt.db.PingContext
	}

	runner := jobs.New(ctx, lg)
	runner.Every(rt.cfg.StatsInterval, "ledger_stats", jobs.LedgerStats(rt.svc))

	api := app.NewAPI(rt.svc, sisimport.NewImporter(rt.svc, lg), app.NewAuthenticator(rt.cfg.JWTSecret), ping, lg)
	srv := app.StartHTTP(ctx, rt.cfg.HTTPAddr, api.Handler(), lg)

	<-ctx.Done()
	lg.Info("shutting down", zap.Error(context.Cause(ctx)))
	srv.Wait()
	return nil
}
