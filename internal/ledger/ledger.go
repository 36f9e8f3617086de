package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

// openSum is the remaining debt over non-PAID components.
func openSum(comps []models.DebtComponent) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range comps {
		if c.Status.Open() {
			sum = sum.Add(c.Amount)
		}
	}
	return models.Round2(sum)
}

// balanceOf applies the dual-representation rule: components are
// authoritative when any exist, the record balance otherwise.
func balanceOf(comps []models.DebtComponent, rec *models.DebtRecord) decimal.Decimal {
	if len(comps) > 0 {
		return openSum(comps)
	}
	if rec != nil {
		return rec.CurrentBalance
	}
	return decimal.Zero
}

// recomputeAggregate rewrites the record balance from the components. A
// student without components keeps the balance the legacy path maintains.
func recomputeAggregate(ctx context.Context, tx Tx, studentID int64, by *int64) error {
	comps, err := tx.ListComponents(ctx, studentID)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		return nil
	}
	rec, err := tx.GetDebtRecord(ctx, studentID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return tx.SetBalance(ctx, studentID, openSum(comps), by)
}

func currentBalance(ctx context.Context, tx Tx, studentID int64) (decimal.Decimal, *models.DebtRecord, error) {
	comps, err := tx.ListComponents(ctx, studentID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	rec, err := tx.GetDebtRecord(ctx, studentID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return balanceOf(comps, rec), rec, nil
}

// Balance returns what the student still owes. It reads under the student
// lock, so an in-flight payment on the same student is never half seen.
func (s *Service) Balance(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.withTx(ctx, "balance", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return err
		}
		var err error
		bal, _, err = currentBalance(ctx, tx, studentID)
		return err
	})
	return bal, err
}

// Seed sets initial amount and balance to total, updating an existing record in place.
func (s *Service) Seed(ctx context.Context, studentID int64, total decimal.Decimal) (models.DebtRecord, error) {
	var rec models.DebtRecord
	err := s.withTx(ctx, "seed", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return err
		}
		var err error
		rec, err = s.seed(ctx, tx, studentID, total)
		return err
	})
	return rec, err
}

func (s *Service) seed(ctx context.Context, tx Tx, studentID int64, total decimal.Decimal) (models.DebtRecord, error) {
	if total.IsNegative() {
		return models.DebtRecord{}, validationf("total debt must not be negative")
	}
	total = models.Round2(total)
	rec, err := tx.GetDebtRecord(ctx, studentID)
	if err != nil {
		return models.DebtRecord{}, err
	}
	if rec == nil {
		rec = &models.DebtRecord{StudentID: studentID}
	}
	rec.InitialAmount = total
	rec.CurrentBalance = total
	rec.LastUpdated = s.now()
	return tx.SaveDebtRecord(ctx, *rec)
}

// reseed seeds the record from every open component the student has, not
// only the ones just written. A student without components is seeded with
// fallback.
func (s *Service) reseed(ctx context.Context, tx Tx, studentID int64, fallback decimal.Decimal) (models.DebtRecord, error) {
	comps, err := tx.ListComponents(ctx, studentID)
	if err != nil {
		return models.DebtRecord{}, err
	}
	total := fallback
	if len(comps) > 0 {
		total = openSum(comps)
	}
	return s.seed(ctx, tx, studentID, total)
}

// Enrollment describes a student to create or refresh together with the debt they start with.
type Enrollment struct {
	Student models.Student
	// Schedule prices per-semester components. Without it the student is
	// kept in legacy mode with OpeningDebt (or the service default).
	Schedule    *ScheduleParams
	OtherFees   decimal.Decimal
	OpeningDebt *decimal.Decimal
}

func (e Enrollment) validate() error {
	var missing []string
	if strings.TrimSpace(e.Student.StudentNumber) == "" {
		missing = append(missing, "student number")
	}
	if strings.TrimSpace(e.Student.FullName) == "" {
		missing = append(missing, "full name")
	}
	if len(missing) > 0 {
		return validationf("missing %s", strings.Join(missing, ", "))
	}
	if e.OtherFees.IsNegative() {
		return validationf("other fees must not be negative")
	}
	if e.OpeningDebt != nil && e.OpeningDebt.IsNegative() {
		return validationf("opening debt must not be negative")
	}
	if e.Schedule != nil {
		return e.Schedule.validate()
	}
	return nil
}

const otherFeesDescription = "Imported SIS other fees"

func (s *Service) enroll(ctx context.Context, tx Tx, e Enrollment) (models.Student, decimal.Decimal, error) {
	if err := e.validate(); err != nil {
		return models.Student{}, decimal.Zero, err
	}
	if e.Student.EnrollmentStatus == "" {
		e.Student.EnrollmentStatus = models.Active
	}
	st, err := tx.UpsertStudent(ctx, e.Student)
	if err != nil {
		return models.Student{}, decimal.Zero, err
	}
	if err := tx.LockStudent(ctx, st.ID); err != nil {
		return models.Student{}, decimal.Zero, err
	}

	opening := s.legacyDebt
	if e.OpeningDebt != nil {
		opening = *e.OpeningDebt
	}
	if e.Schedule != nil {
		if _, err := s.upsertSchedule(ctx, tx, st.ID, *e.Schedule); err != nil {
			return models.Student{}, decimal.Zero, err
		}
		if e.OtherFees.Sign() > 0 {
			first := Terms(e.Schedule.StartYear, 1)[0]
			_, err := tx.UpsertComponent(ctx, models.DebtComponent{
				StudentID:    st.ID,
				Semester:     first.Semester,
				AcademicYear: first.AcademicYear,
				Type:         models.Other,
				Amount:       models.Round2(e.OtherFees),
				Status:       models.Unpaid,
				Description:  otherFeesDescription,
			})
			if err != nil {
				return models.Student{}, decimal.Zero, fmt.Errorf("upsert other fees: %w", err)
			}
		}
	}
	// Components from an earlier import stay authoritative even when this
	// enrollment carries fewer terms or no schedule at all.
	rec, err := s.reseed(ctx, tx, st.ID, opening)
	if err != nil {
		return models.Student{}, decimal.Zero, err
	}
	return st, rec.CurrentBalance, nil
}

// RegisterStudent creates (or refreshes) one student and seeds their ledger.
func (s *Service) RegisterStudent(ctx context.Context, p models.Principal, e Enrollment) (models.Student, error) {
	if err := requireRole(p, models.RoleAdmin); err != nil {
		return models.Student{}, err
	}
	var st models.Student
	var total decimal.Decimal
	err := s.withTx(ctx, "register_student", func(ctx context.Context, tx Tx) error {
		var err error
		st, total, err = s.enroll(ctx, tx, e)
		return err
	})
	if err != nil {
		return models.Student{}, err
	}
	s.log.Info("student registered",
		zap.Int64("student_id", st.ID),
		zap.String("student_number", st.StudentNumber),
		zap.String("debt", total.StringFixed(2)),
	)
	return st, nil
}

// EnrollBatch applies a whole SIS import in one transaction. Either every
// student is written together with the batch record or nothing is.
func (s *Service) EnrollBatch(ctx context.Context, p models.Principal, batch models.ImportBatch, es []Enrollment) (models.ImportBatch, error) {
	if err := requireRole(p, models.RoleAdmin); err != nil {
		return models.ImportBatch{}, err
	}
	var out models.ImportBatch
	err := s.withTx(ctx, "enroll_batch", func(ctx context.Context, tx Tx) error {
		b := batch
		b.ImportedBy = p.UserID
		b.ImportedAt = s.now()
		b.StudentCount = 0
		b.TotalDebt = decimal.Zero
		for i, e := range es {
			_, total, err := s.enroll(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("student %d (%s): %w", i+1, e.Student.StudentNumber, err)
			}
			b.StudentCount++
			b.TotalDebt = b.TotalDebt.Add(total)
		}
		if err := tx.InsertImportBatch(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return models.ImportBatch{}, err
	}
	s.log.Info("import batch committed",
		zap.String("batch_id", out.ID),
		zap.Int("students", out.StudentCount),
		zap.String("total_debt", out.TotalDebt.StringFixed(2)),
	)
	return out, nil
}

// DeleteStudent removes a student; the ledger rows go with it.
func (s *Service) DeleteStudent(ctx context.Context, p models.Principal, studentID int64) error {
	if err := requireRole(p, models.RoleAdmin); err != nil {
		return err
	}
	return s.withTx(ctx, "delete_student", func(ctx context.Context, tx Tx) error {
		if err := tx.LockStudent(ctx, studentID); err != nil {
			return err
		}
		return tx.DeleteStudent(ctx, studentID)
	})
}

// Statement is the student's view of their debt.
type Statement struct {
	Student         models.Student          `json:"student"`
	DebtID          *int64                  `json:"debt_id,omitempty"`
	InitialAmount   decimal.Decimal         `json:"initial_amount"`
	CurrentBalance  decimal.Decimal         `json:"current_balance"`
	TotalPaid       decimal.Decimal         `json:"total_paid"`
	LivingTotal     decimal.Decimal         `json:"living_stipend_total"`
	TuitionTotal    decimal.Decimal         `json:"tuition_total"`
	NextDueDate     *time.Time              `json:"next_due_date,omitempty"`
	Legacy          bool                    `json:"legacy"`
	Components      []models.DebtComponent  `json:"components"`
	OpenComponents  []models.DebtComponent  `json:"unpaid_components"`
	Payments        []models.PaymentHistory `json:"payment_history"`
	RecentRequests  []models.PaymentRequest `json:"recent_requests"`
	LastUpdated     *time.Time              `json:"last_updated,omitempty"`
	LastUpdatedByID *int64                  `json:"updated_by,omitempty"`
}

const statementRequests = 10

func canRead(p models.Principal, studentID int64) error {
	if p.Role == models.RoleStudent {
		if p.StudentID == nil || *p.StudentID != studentID {
			return fmt.Errorf("%w: students may only read their own ledger", ErrForbidden)
		}
		return nil
	}
	return requireRole(p, models.RoleFinance, models.RoleRegistrar, models.RoleAdmin)
}

func (s *Service) Statement(ctx context.Context, p models.Principal, studentID int64) (*Statement, error) {
	if err := canRead(p, studentID); err != nil {
		return nil, err
	}
	var st *Statement
	err := s.withTx(ctx, "statement", func(ctx context.Context, tx Tx) error {
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		comps, err := tx.ListComponents(ctx, studentID)
		if err != nil {
			return err
		}
		rec, err := tx.GetDebtRecord(ctx, studentID)
		if err != nil {
			return err
		}
		if rec == nil && len(comps) == 0 {
			return notFoundf("no debt record for student %d", studentID)
		}
		out := &Statement{
			Student:        *student,
			Components:     comps,
			OpenComponents: []models.DebtComponent{},
			Legacy:         len(comps) == 0,
			CurrentBalance: balanceOf(comps, rec),
		}
		original := decimal.Zero
		for _, c := range comps {
			original = original.Add(c.Amount)
			switch c.Type {
			case models.LivingStipend:
				out.LivingTotal = out.LivingTotal.Add(c.Amount)
			case models.Tuition:
				out.TuitionTotal = out.TuitionTotal.Add(c.Amount)
			}
			if c.Status.Open() {
				out.OpenComponents = append(out.OpenComponents, c)
				if c.DueDate != nil && (out.NextDueDate == nil || c.DueDate.Before(*out.NextDueDate)) {
					d := *c.DueDate
					out.NextDueDate = &d
				}
			}
		}
		out.InitialAmount = original
		if rec != nil {
			id := rec.ID
			out.DebtID = &id
			last := rec.LastUpdated
			out.LastUpdated = &last
			out.LastUpdatedByID = rec.UpdatedBy
			if rec.InitialAmount.Sign() > 0 || len(comps) == 0 {
				out.InitialAmount = rec.InitialAmount
			}
			if out.Payments, err = tx.ListPayments(ctx, rec.ID); err != nil {
				return err
			}
		}
		out.TotalPaid = decimal.Max(decimal.Zero, out.InitialAmount.Sub(out.CurrentBalance))
		out.RecentRequests, err = tx.ListRequests(ctx, RequestFilter{StudentID: &studentID, Limit: statementRequests})
		if err != nil {
			return err
		}
		st = out
		return nil
	})
	return st, err
}

// OpenComponents lists the student's unpaid components, optionally of one type.
func (s *Service) OpenComponents(ctx context.Context, p models.Principal, studentID int64, typ *models.ComponentType) ([]models.DebtComponent, error) {
	if err := canRead(p, studentID); err != nil {
		return nil, err
	}
	out := []models.DebtComponent{}
	err := s.withTx(ctx, "open_components", func(ctx context.Context, tx Tx) error {
		comps, err := tx.ListComponents(ctx, studentID)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, c := range comps {
			if c.Status.Open() && (typ == nil || c.Type == *typ) {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// Stats returns the admin dashboard figures.
func (s *Service) Stats(ctx context.Context) (models.LedgerStats, error) {
	var st models.LedgerStats
	err := s.withTx(ctx, "stats", func(ctx context.Context, tx Tx) error {
		var err error
		st, err = tx.Stats(ctx)
		return err
	})
	return st, err
}

// DebtReport lists every student with total and remaining debt.
func (s *Service) DebtReport(ctx context.Context, p models.Principal) ([]models.StudentDebtRow, error) {
	if err := requireRole(p, models.RoleAdmin, models.RoleFinance, models.RoleRegistrar); err != nil {
		return nil, err
	}
	var rows []models.StudentDebtRow
	err := s.withTx(ctx, "debt_report", func(ctx context.Context, tx Tx) error {
		var err error
		rows, err = tx.ListStudentBalances(ctx)
		return err
	})
	return rows, err
}
