package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/student-debt-ledger/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the debt report workbook",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output path (default: dated file name in the current directory)")
	exportCmd.Flags().Int64("user", 0, "Admin user id")
}

func runExport(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	rows, err := rt.svc.DebtReport(ctx, cliAdmin(cmd))
	if err != nil {
		return err
	}
	stats, err := rt.svc.Stats(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(rt.cfg.Location)
	wb, err := export.DebtReport(rows, stats, now)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = export.BuildDebtReportFilename(now)
	}
	if err := wb.SaveAs(out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d students written to %s\n", len(rows), out)
	return nil
}
