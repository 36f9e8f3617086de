package ledger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/ledger"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTerms_AlternateAndAdvanceYear(t *testing.T) {
	got := ledger.Terms(2023, 4)
	want := []struct{ sem, ay string }{
		{"2023-FALL", "2023/2024"},
		{"2023-SPRING", "2023/2024"},
		{"2024-FALL", "2024/2025"},
		{"2024-SPRING", "2024/2025"},
	}
	if len(got) != len(want) {
		t.Fatalf("terms=%d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Semester != w.sem || got[i].AcademicYear != w.ay {
			t.Fatalf("term %d = %s %s, want %s %s", i, got[i].Semester, got[i].AcademicYear, w.sem, w.ay)
		}
	}
}

func TestGenerateSchedule_Pricing(t *testing.T) {
	comps, err := ledger.GenerateSchedule(7, ledger.ScheduleParams{
		Semesters:         2,
		StartYear:         2023,
		TuitionBaseAnnual: dec("20000"),
		LivingStipend:     true,
	}, ledger.DefaultRates())
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(comps) != 6 {
		t.Fatalf("components=%d, want 6", len(comps))
	}

	wantAmount := map[models.ComponentType]string{
		models.LivingStipend: "15000",
		models.Tuition:       "1500",
		models.Medical:       "500",
	}
	for _, c := range comps {
		if c.StudentID != 7 || c.Status != models.Unpaid {
			t.Fatalf("bad component %+v", c)
		}
		if !c.Amount.Equal(dec(wantAmount[c.Type])) {
			t.Fatalf("%s amount=%s, want %s", c.Type, c.Amount, wantAmount[c.Type])
		}
		if c.DueDate == nil {
			t.Fatalf("%s %s has no due date", c.Type, c.Semester)
		}
	}

	fall := comps[0]
	if fall.Semester != "2023-FALL" || !fall.DueDate.Equal(time.Date(2023, time.October, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("fall component %s due %v", fall.Semester, fall.DueDate)
	}
	spring := comps[3]
	if spring.Semester != "2023-SPRING" || !spring.DueDate.Equal(time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("spring component %s due %v", spring.Semester, spring.DueDate)
	}
	if comps[1].Description != "Tuition cost sharing (15%)" {
		t.Fatalf("tuition description %q", comps[1].Description)
	}
}

func TestGenerateSchedule_DropsZeroPriced(t *testing.T) {
	comps, err := ledger.GenerateSchedule(1, ledger.ScheduleParams{
		Semesters: 1, StartYear: 2024, TuitionBaseAnnual: decimal.Zero,
	}, ledger.DefaultRates())
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 1 || comps[0].Type != models.Medical {
		t.Fatalf("want only medical, got %+v", comps)
	}
}

func TestGenerateSchedule_Invalid(t *testing.T) {
	for name, p := range map[string]ledger.ScheduleParams{
		"no semesters":  {Semesters: 0, StartYear: 2024},
		"no start year": {Semesters: 2},
		"negative base": {Semesters: 2, StartYear: 2024, TuitionBaseAnnual: dec("-1")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.GenerateSchedule(1, p, ledger.DefaultRates())
			if !errors.Is(err, ledger.ErrValidation) {
				t.Fatalf("err=%v, want validation", err)
			}
		})
	}
}
