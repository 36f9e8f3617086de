package export

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// DebtReport builds the admin workbook: one line per student plus totals.
func DebtReport(rows []models.StudentDebtRow, stats models.LedgerStats, at time.Time) (*Workbook, error) {
	debts := Sheet{
		Title:  "Debts",
		Header: []string{"Student number", "Full name", "Department", "Batch", "Total debt", "Paid", "Current balance", "Clearance eligible"},
	}
	for _, r := range rows {
		batch := ""
		if r.Batch != nil {
			batch = strconv.Itoa(*r.Batch)
		}
		paid := decimal.Max(decimal.Zero, r.TotalDebt.Sub(r.CurrentBalance))
		debts.Rows = append(debts.Rows, []any{
			r.StudentNumber, r.FullName, r.Department, batch,
			money(r.TotalDebt), money(paid), money(r.CurrentBalance),
			yesNo(r.CurrentBalance.Sign() <= 0),
		})
	}

	summary := Sheet{
		Title:  "Summary",
		Header: []string{"Metric", "Value"},
		Rows: [][]any{
			{"Generated at", at.Format(time.RFC3339)},
			{"Students", len(rows)},
			{"Total collections", money(stats.TotalCollections)},
			{"Outstanding debt", money(stats.OutstandingDebt)},
			{"Pending requests", stats.PendingRequests},
		},
	}
	return NewWorkbook([]Sheet{debts, summary})
}

// Statement exports a single student's components and payments.
func Statement(st *ledger.Statement) (*Workbook, error) {
	comps := Sheet{
		Title:  "Components",
		Header: []string{"Semester", "Academic year", "Type", "Remaining", "Status", "Due date", "Description"},
	}
	for _, c := range st.Components {
		comps.Rows = append(comps.Rows, []any{
			c.Semester, c.AcademicYear, string(c.Type), money(c.Amount), string(c.Status), formatDate(c.DueDate), c.Description,
		})
	}
	pays := Sheet{
		Title:  "Payments",
		Header: []string{"Date", "Amount", "Method", "Reference", "Notes"},
	}
	for _, p := range st.Payments {
		d := p.PaymentDate
		pays.Rows = append(pays.Rows, []any{formatDate(&d), money(p.Amount), p.PaymentMethod, p.TransactionRef, p.Notes})
	}
	summary := Sheet{
		Title:  "Summary",
		Header: []string{"Field", "Value"},
		Rows: [][]any{
			{"Student number", st.Student.StudentNumber},
			{"Full name", st.Student.FullName},
			{"Initial amount", money(st.InitialAmount)},
			{"Total paid", money(st.TotalPaid)},
			{"Current balance", money(st.CurrentBalance)},
			{"Next due date", formatDate(st.NextDueDate)},
		},
	}
	return NewWorkbook([]Sheet{summary, comps, pays})
}
