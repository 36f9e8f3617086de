package jobs

import (
	"context"

	"github.com/Spok95/student-debt-ledger/internal/ctxutil"
	"github.com/Spok95/student-debt-ledger/internal/metrics"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

type StatsSource interface {
	Stats(ctx context.Context) (models.LedgerStats, error)
}

// LedgerStats refreshes the outstanding debt, collections and queue gauges.
func LedgerStats(src StatsSource) Job {
	return func(ctx context.Context) error {
		ctx, cancel := ctxutil.WithDBTimeout(ctx)
		defer cancel()
		st, err := src.Stats(ctx)
		if err != nil {
			return err
		}
		debt, _ := st.OutstandingDebt.Float64()
		paid, _ := st.TotalCollections.Float64()
		metrics.OutstandingDebt.Set(debt)
		metrics.TotalCollections.Set(paid)
		metrics.PendingRequests.Set(float64(st.PendingRequests))
		return nil
	}
}
