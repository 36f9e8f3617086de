package sisimport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/memstore"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

const sample = `Student Number,Full Name,E-mail,Dept,Semesters,Start Year,Living Stipend,Tuition Base,Total Tuition,Total Living,Total Medical,Total Other
S-001,Abebe Kebede,ABEBE@uni.test,Physics,1,2024,yes,"20,000",1500,15000,500,250
S-002,Hana Tesfaye,,Chemistry,2,,no,18000,2700,0,1000,0
,,,,,,,,,,,
S-003,,,History,0,2024,,,,,,
`

func TestParseCSV_AliasesAndErrors(t *testing.T) {
	rows, err := Parse(strings.NewReader(sample), "students.CSV")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3 (blank line skipped)", len(rows))
	}

	a := rows[0].Data
	if !rows[0].OK() || a.StudentNumber != "S-001" || a.Email != "abebe@uni.test" || a.Department != "Physics" {
		t.Fatalf("row 1 %+v %v", a, rows[0].Errors)
	}
	if !a.TuitionBase.Equal(decimal.NewFromInt(20000)) || !a.LivingStipend || a.StartYear != 2024 {
		t.Fatalf("row 1 numbers %+v", a)
	}
	if rows[1].Data.LivingStipend {
		t.Fatal("row 2 opted out of living stipend")
	}

	bad := rows[2]
	if bad.OK() || bad.Line != 3 {
		t.Fatalf("row 3 should fail: %+v", bad)
	}
	want := []string{"Missing full name.", "Semesters is required."}
	if strings.Join(bad.Errors, "|") != strings.Join(want, "|") {
		t.Fatalf("errors=%v", bad.Errors)
	}

	sum := Summarize(rows)
	if sum.TotalStudents != 2 || len(sum.Errors) != 1 {
		t.Fatalf("summary %+v", sum)
	}
	if !sum.TotalDebt.Equal(decimal.NewFromInt(1500 + 15000 + 500 + 250 + 2700 + 1000)) {
		t.Fatalf("total debt %s", sum.TotalDebt)
	}
}

func TestParseBool_DefaultsToTrue(t *testing.T) {
	for in, want := range map[string]bool{"": true, "maybe": true, "N": false, "0": false, "Y": true} {
		if got := parseBool(in, true); got != want {
			t.Fatalf("parseBool(%q)=%v", in, got)
		}
	}
}

func TestParse_Unsupported(t *testing.T) {
	if _, err := Parse(strings.NewReader(""), "students.pdf"); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("err=%v", err)
	}
}

func xlsxOf(t *testing.T, table [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	for i, row := range table {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestParseXLSX(t *testing.T) {
	buf := xlsxOf(t, [][]any{
		{"student_id", "name", "department_name", "semester_count", "startyear", "tuition_base_annual", "other_total"},
		{"X-1", "Selam", "Biology", 2, 2023, 16000, 0},
	})
	rows, err := Parse(buf, "export.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].OK() {
		t.Fatalf("rows %+v", rows)
	}
	r := rows[0].Data
	if r.StudentNumber != "X-1" || r.Semesters != 2 || r.StartYear != 2023 || !r.TuitionBase.Equal(decimal.NewFromInt(16000)) {
		t.Fatalf("record %+v", r)
	}
}

var admin = models.Principal{UserID: 1, Role: models.RoleAdmin}

func TestImporter_PreviewAndCommit(t *testing.T) {
	svc := ledger.New(memstore.New())
	im := NewImporter(svc, nil)
	ctx := context.Background()

	p, err := im.Preview(strings.NewReader(sample), "students.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Rows) != 2 || len(p.Summary.Errors) != 1 {
		t.Fatalf("preview %+v", p)
	}

	_, err = im.Commit(ctx, admin, strings.NewReader(sample), "students.csv", "")
	var re *RowsError
	if !errors.As(err, &re) || !errors.Is(err, ledger.ErrValidation) || re.Rows[0].Row != 3 {
		t.Fatalf("err=%v", err)
	}

	good := strings.Join(strings.Split(sample, "\n")[:3], "\n") + "\n"
	batch, err := im.Commit(ctx, admin, strings.NewReader(good), "students.csv", "fall intake")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if batch.ID == "" || batch.StudentCount != 2 || batch.Notes != "fall intake" {
		t.Fatalf("batch %+v", batch)
	}

	rows, err := svc.DebtReport(ctx, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("students=%d", len(rows))
	}
	// S-001: 15000 living + 1500 tuition + 500 medical + 250 other.
	if !rows[0].CurrentBalance.Equal(decimal.NewFromInt(17250)) {
		t.Fatalf("S-001 balance %s", rows[0].CurrentBalance)
	}
}

func TestImporter_RequiresAdmin(t *testing.T) {
	im := NewImporter(ledger.New(memstore.New()), nil)
	good := strings.Join(strings.Split(sample, "\n")[:2], "\n") + "\n"
	_, err := im.Commit(context.Background(), models.Principal{UserID: 9, Role: models.RoleFinance}, strings.NewReader(good), "s.csv", "")
	if !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("err=%v", err)
	}
}
