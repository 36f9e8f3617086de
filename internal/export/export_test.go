package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

func TestDebtReport_Workbook(t *testing.T) {
	batch := 2024
	rows := []models.StudentDebtRow{
		{StudentID: 1, StudentNumber: "S-1", FullName: "Abebe", Department: "Physics", Batch: &batch,
			TotalDebt: decimal.NewFromInt(17000), CurrentBalance: decimal.RequireFromString("1400.50")},
		{StudentID: 2, StudentNumber: "S-2", FullName: "Hana", TotalDebt: decimal.NewFromInt(500), CurrentBalance: decimal.Zero},
	}
	at := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	wb, err := DebtReport(rows, models.LedgerStats{PendingRequests: 3}, at)
	if err != nil {
		t.Fatalf("DebtReport: %v", err)
	}
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatal(err)
	}
	_ = wb.Close()

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if got := f.GetSheetList(); len(got) != 2 || got[0] != "Debts" || got[1] != "Summary" {
		t.Fatalf("sheets %v", got)
	}
	got, err := f.GetRows("Debts")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows=%d", len(got))
	}
	if got[1][0] != "S-1" || got[1][3] != "2024" || got[1][7] != "no" {
		t.Fatalf("row 1 %v", got[1])
	}
	if got[2][7] != "yes" {
		t.Fatalf("row 2 %v", got[2])
	}
	raw, err := f.GetCellValue("Debts", "G2", excelize.Options{RawCellValue: true})
	if err != nil || raw != "1400.5" {
		t.Fatalf("balance cell %q err=%v", raw, err)
	}
}

func TestFilenames(t *testing.T) {
	if got := BuildStatementFilename("S/1", " "); got != "Statement S_1 -.xlsx" {
		t.Fatalf("got %q", got)
	}
	if got := BuildDebtReportFilename(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)); got != "Debt report 2024-01-02.xlsx" {
		t.Fatalf("got %q", got)
	}
}

func TestCellWidth(t *testing.T) {
	if got := cellWidth("Ёлка"); got != 4*1.1 {
		t.Fatalf("width %v", got)
	}
}
