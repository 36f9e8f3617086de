package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

// Rates are the cost-sharing figures used to price a term.
type Rates struct {
	TuitionShare      decimal.Decimal // fraction of the annual tuition base the student owes
	MonthlyStipend    decimal.Decimal
	MonthsPerSemester int
	YearlyMedical     decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		TuitionShare:      decimal.RequireFromString("0.15"),
		MonthlyStipend:    decimal.NewFromInt(3000),
		MonthsPerSemester: 5,
		YearlyMedical:     decimal.NewFromInt(1000),
	}
}

// ScheduleParams are the enrollment facts a schedule is derived from.
type ScheduleParams struct {
	Semesters         int             `json:"semesters"`
	StartYear         int             `json:"start_year"`
	TuitionBaseAnnual decimal.Decimal `json:"tuition_base_annual"`
	LivingStipend     bool            `json:"living_stipend"`
}

func (p ScheduleParams) validate() error {
	if p.Semesters <= 0 {
		return validationf("semesters must be positive, got %d", p.Semesters)
	}
	if p.StartYear <= 0 {
		return validationf("start year must be positive, got %d", p.StartYear)
	}
	if p.TuitionBaseAnnual.IsNegative() {
		return validationf("tuition base must not be negative")
	}
	return nil
}

const (
	fall   = "FALL"
	spring = "SPRING"

	dueDay = 15
)

// Term is one semester of a schedule.
type Term struct {
	Semester     string
	AcademicYear string
	StartYear    int
	Kind         string
}

// Terms lists n terms alternating FALL/SPRING from startYear. The year
// advances after each SPRING term.
func Terms(startYear, n int) []Term {
	out := make([]Term, 0, n)
	year := startYear
	isFall := true
	for i := 0; i < n; i++ {
		kind := spring
		if isFall {
			kind = fall
		}
		out = append(out, Term{
			Semester:     fmt.Sprintf("%d-%s", year, kind),
			AcademicYear: academicYear(year),
			StartYear:    year,
			Kind:         kind,
		})
		if !isFall {
			year++
		}
		isFall = !isFall
	}
	return out
}

func academicYear(y int) string { return fmt.Sprintf("%d/%d", y, y+1) }

// dueDate: 15 октября для осеннего семестра, 15 марта для весеннего; год: начало учебного года.
func (t Term) dueDate() time.Time {
	month := time.March
	if t.Kind == fall {
		month = time.October
	}
	return time.Date(t.StartYear, month, dueDay, 0, 0, 0, 0, time.UTC)
}

// GenerateSchedule derives the owed components for studentID. Components
// priced at zero or less are left out.
func GenerateSchedule(studentID int64, p ScheduleParams, r Rates) ([]models.DebtComponent, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	two := decimal.NewFromInt(2)
	tuition := models.Round2(p.TuitionBaseAnnual.Mul(r.TuitionShare).Div(two))
	living := decimal.Zero
	if p.LivingStipend {
		living = models.Round2(r.MonthlyStipend.Mul(decimal.NewFromInt(int64(r.MonthsPerSemester))))
	}
	medical := models.Round2(r.YearlyMedical.Div(two))
	tuitionDesc := fmt.Sprintf("Tuition cost sharing (%s%%)", r.TuitionShare.Shift(2).String())

	var out []models.DebtComponent
	for _, t := range Terms(p.StartYear, p.Semesters) {
		due := t.dueDate()
		for _, c := range []struct {
			typ    models.ComponentType
			amount decimal.Decimal
			desc   string
		}{
			{models.LivingStipend, living, "Living stipend (food & accommodation)"},
			{models.Tuition, tuition, tuitionDesc},
			{models.Medical, medical, "Medical cost sharing"},
		} {
			if c.amount.Sign() <= 0 {
				continue
			}
			d := due
			out = append(out, models.DebtComponent{
				StudentID:    studentID,
				Semester:     t.Semester,
				AcademicYear: t.AcademicYear,
				Type:         c.typ,
				Amount:       c.amount,
				Status:       models.Unpaid,
				DueDate:      &d,
				Description:  c.desc,
			})
		}
	}
	return out, nil
}

// Generate prices the schedule for a student, upserts it and seeds the debt
// record from the student's open components. Running it twice with the same
// params leaves the same set of components.
func (s *Service) Generate(ctx context.Context, p models.Principal, studentID int64, params ScheduleParams) ([]models.DebtComponent, error) {
	if err := requireRole(p, models.RoleAdmin); err != nil {
		return nil, err
	}
	var (
		out []models.DebtComponent
		rec models.DebtRecord
	)
	err := s.withTx(ctx, "generate", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return err
		}
		var err error
		out, err = s.upsertSchedule(ctx, tx, studentID, params)
		if err != nil {
			return err
		}
		rec, err = s.reseed(ctx, tx, studentID, decimal.Zero)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("schedule generated",
		zap.Int64("student_id", studentID),
		zap.Int("components", len(out)),
		zap.String("debt", rec.CurrentBalance.StringFixed(2)),
	)
	return out, nil
}

func (s *Service) upsertSchedule(ctx context.Context, tx Tx, studentID int64, p ScheduleParams) ([]models.DebtComponent, error) {
	comps, err := GenerateSchedule(studentID, p, s.rates)
	if err != nil {
		return nil, err
	}
	out := make([]models.DebtComponent, 0, len(comps))
	for _, c := range comps {
		saved, err := tx.UpsertComponent(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("upsert %s %s: %w", c.Type, c.Semester, err)
		}
		out = append(out, saved)
	}
	return out, nil
}
