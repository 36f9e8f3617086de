package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Spok95/student-debt-ledger/internal/models"
)

func (t *pgTx) GetDebtRecord(ctx context.Context, studentID int64) (*models.DebtRecord, error) {
	var (
		rec models.DebtRecord
		by  sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT debt_id, student_id, initial_amount, current_balance, updated_by, last_updated
		FROM student_debt_records WHERE student_id = $1
	`, studentID).Scan(&rec.ID, &rec.StudentID, &rec.InitialAmount, &rec.CurrentBalance, &by, &rec.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.UpdatedBy = ptrInt64(by)
	return &rec, nil
}

func (t *pgTx) SaveDebtRecord(ctx context.Context, rec models.DebtRecord) (models.DebtRecord, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO student_debt_records (student_id, initial_amount, current_balance, updated_by, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			initial_amount  = EXCLUDED.initial_amount,
			current_balance = EXCLUDED.current_balance,
			updated_by      = EXCLUDED.updated_by,
			last_updated    = EXCLUDED.last_updated
		RETURNING debt_id
	`, rec.StudentID, rec.InitialAmount, rec.CurrentBalance, nullInt64(rec.UpdatedBy), rec.LastUpdated).Scan(&rec.ID)
	return rec, err
}

func (t *pgTx) SetBalance(ctx context.Context, studentID int64, balance decimal.Decimal, by *int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE student_debt_records
		SET current_balance = $2, updated_by = $3, last_updated = now()
		WHERE student_id = $1
	`, studentID, balance, nullInt64(by))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("debt record for student %d", studentID)
	}
	return nil
}

const componentCols = `component_id, student_id, semester, academic_year, component_type, amount, status, due_date, description, accrued_at`

func scanComponents(rows *sql.Rows) ([]models.DebtComponent, error) {
	defer rows.Close()
	var out []models.DebtComponent
	for rows.Next() {
		var (
			c   models.DebtComponent
			due sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.StudentID, &c.Semester, &c.AcademicYear, &c.Type, &c.Amount, &c.Status, &due, &c.Description, &c.AccruedAt); err != nil {
			return nil, err
		}
		c.DueDate = ptrTime(due)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) ListComponents(ctx context.Context, studentID int64) ([]models.DebtComponent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+componentCols+`
		FROM debt_components WHERE student_id = $1
		ORDER BY due_date NULLS LAST, component_id
	`, studentID)
	if err != nil {
		return nil, err
	}
	return scanComponents(rows)
}

// LockOpenComponents: FOR UPDATE по всем неоплаченным компонентам студента.
func (t *pgTx) LockOpenComponents(ctx context.Context, studentID int64) ([]models.DebtComponent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+componentCols+`
		FROM debt_components
		WHERE student_id = $1 AND status <> 'PAID'
		ORDER BY due_date NULLS LAST, component_id
		FOR UPDATE
	`, studentID)
	if err != nil {
		return nil, err
	}
	return scanComponents(rows)
}

// UpsertComponent keys on (student, semester, academic year, type). A
// re-generated component starts over as UNPAID.
func (t *pgTx) UpsertComponent(ctx context.Context, c models.DebtComponent) (models.DebtComponent, error) {
	c.Status = models.Unpaid
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO debt_components (student_id, semester, academic_year, component_type, amount, status, due_date, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, semester, academic_year, component_type) DO UPDATE SET
			amount      = EXCLUDED.amount,
			status      = EXCLUDED.status,
			due_date    = EXCLUDED.due_date,
			description = EXCLUDED.description
		RETURNING component_id, accrued_at
	`, c.StudentID, c.Semester, c.AcademicYear, c.Type, c.Amount, c.Status, nullTime(c.DueDate), c.Description).Scan(&c.ID, &c.AccruedAt)
	return c, err
}

func (t *pgTx) UpdateComponent(ctx context.Context, componentID int64, amount decimal.Decimal, status models.ComponentStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE debt_components SET amount = $2, status = $3 WHERE component_id = $1`, componentID, amount, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("component %d", componentID)
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p models.PaymentHistory) (models.PaymentHistory, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payment_history (debt_id, amount, payment_method, transaction_ref, status, payment_date, verified_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING payment_id
	`, p.DebtID, p.Amount, p.PaymentMethod, p.TransactionRef, p.Status, p.PaymentDate, nullInt64(p.VerifiedBy), p.Notes).Scan(&p.ID)
	return p, err
}

func (t *pgTx) InsertAllocation(ctx context.Context, a models.PaymentAllocation) (models.PaymentAllocation, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO payment_allocations (payment_id, component_id, allocated_amount)
		VALUES ($1, $2, $3)
		RETURNING allocation_id
	`, a.PaymentID, a.ComponentID, a.Amount).Scan(&a.ID)
	return a, err
}

func (t *pgTx) ListPayments(ctx context.Context, debtID int64) ([]models.PaymentHistory, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT payment_id, debt_id, amount, payment_method, transaction_ref, status, payment_date, verified_by, notes
		FROM payment_history WHERE debt_id = $1
		ORDER BY payment_date DESC, payment_id DESC
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PaymentHistory
	for rows.Next() {
		var (
			p  models.PaymentHistory
			by sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.DebtID, &p.Amount, &p.PaymentMethod, &p.TransactionRef, &p.Status, &p.PaymentDate, &by, &p.Notes); err != nil {
			return nil, err
		}
		p.VerifiedBy = ptrInt64(by)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) ListAllocations(ctx context.Context, paymentID int64) ([]models.PaymentAllocation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT allocation_id, payment_id, component_id, allocated_amount
		FROM payment_allocations WHERE payment_id = $1 ORDER BY allocation_id
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PaymentAllocation
	for rows.Next() {
		var a models.PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.ComponentID, &a.Amount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
