//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/db"
	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
	"github.com/Spok95/student-debt-ledger/internal/testutil/testdb"
)

var (
	admin   = models.Principal{UserID: 1, Role: models.RoleAdmin}
	finance = models.Principal{UserID: 2, Role: models.RoleFinance}
)

func startService(t *testing.T) *ledger.Service {
	t.Helper()
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return ledger.New(db.NewStore(h.DB, 2*time.Second), ledger.WithRetries(5, 10*time.Millisecond))
}

func register(t *testing.T, svc *ledger.Service, number string) int64 {
	t.Helper()
	st, err := svc.RegisterStudent(context.Background(), admin, ledger.Enrollment{
		Student: models.Student{StudentNumber: number, FullName: "Студент " + number},
		Schedule: &ledger.ScheduleParams{
			Semesters: 2, StartYear: 2024, TuitionBaseAnnual: decimal.NewFromInt(20000), LivingStipend: true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st.ID
}

func TestStore_FullWorkflow(t *testing.T) {
	svc := startService(t)
	ctx := context.Background()
	id := register(t, svc, "PG-1")

	bal, err := svc.Balance(ctx, id)
	if err != nil || !bal.Equal(decimal.NewFromInt(34000)) {
		t.Fatalf("balance=%s err=%v", bal, err)
	}

	me := models.Principal{UserID: 50, Role: models.RoleStudent, StudentID: &id}
	req, err := svc.RequestPayment(ctx, me, ledger.SubmitInput{StudentID: id, Amount: decimal.NewFromInt(15500)})
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Verify(ctx, finance, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Lines) != 2 || !res.Balance.Equal(decimal.NewFromInt(18500)) {
		t.Fatalf("lines=%d balance=%s", len(res.Lines), res.Balance)
	}

	st, err := svc.Statement(ctx, me, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Payments) != 1 || st.Payments[0].TransactionRef == "" || st.RecentRequests[0].Status != models.Verified {
		t.Fatalf("statement %+v", st)
	}
	if _, err := svc.IssueClearance(ctx, admin, id, ""); !errors.Is(err, ledger.ErrOutstandingBalance) {
		t.Fatalf("err=%v", err)
	}

	rows, err := svc.DebtReport(ctx, admin)
	if err != nil || len(rows) != 1 || !rows[0].CurrentBalance.Equal(decimal.NewFromInt(18500)) {
		t.Fatalf("report %+v err=%v", rows, err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil || !stats.TotalCollections.Equal(decimal.NewFromInt(15500)) {
		t.Fatalf("stats %+v err=%v", stats, err)
	}
}

func TestStore_ParallelVerifyAppliesOnce(t *testing.T) {
	svc := startService(t)
	ctx := context.Background()
	id := register(t, svc, "PG-2")
	me := models.Principal{UserID: 51, Role: models.RoleStudent, StudentID: &id}
	req, err := svc.Submit(ctx, me, ledger.SubmitInput{StudentID: id, Amount: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Verify(ctx, finance, req.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("verified %d times", ok)
	}
	bal, _ := svc.Balance(ctx, id)
	if !bal.Equal(decimal.NewFromInt(33000)) {
		t.Fatalf("balance=%s", bal)
	}
}

func TestStore_EnrollBatchRollsBack(t *testing.T) {
	svc := startService(t)
	ctx := context.Background()
	_, err := svc.EnrollBatch(ctx, admin, models.ImportBatch{ID: "9b2e3c1e-6a51-4f5c-9d87-0c7f2b1d8a11"}, []ledger.Enrollment{
		{Student: models.Student{StudentNumber: "B-1", FullName: "B"}},
		{Student: models.Student{StudentNumber: "B-2"}},
	})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("err=%v", err)
	}
	rows, err := svc.DebtReport(ctx, admin)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%d err=%v", len(rows), err)
	}
}
